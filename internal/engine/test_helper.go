package engine

import (
	"os"
	"testing"

	// Silences logging for this package's tests.
	_ "github.com/dojoai/dojo/internal/testhelper"
)

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}
