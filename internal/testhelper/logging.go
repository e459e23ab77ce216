package testhelper

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
)

// init silences zerolog for test runs unless DOJO_TEST_LOG is set.
func init() {
	if isTesting() && os.Getenv("DOJO_TEST_LOG") == "" {
		zerolog.SetGlobalLevel(zerolog.Disabled)
	}
}

func isTesting() bool {
	return testing.Testing() ||
		os.Getenv("GO_TEST") != "" ||
		os.Args[0] == "go test" ||
		(len(os.Args) > 0 && os.Args[0] == "test") ||
		(len(os.Args) > 1 && os.Args[1] == "test")
}
