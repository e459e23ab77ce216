package cli

import (
	"bytes"
	"context"
	"os"
	"regexp"
	"testing"

	"github.com/spf13/viper"

	"github.com/dojoai/dojo/internal/execcontext"
	// Silences logging for this package's tests.
	_ "github.com/dojoai/dojo/internal/testhelper"
)

const ansi = "[][[\\]()#;?]*(?:(?:(?:[a-zA-Z\\d]*(?:;[a-zA-Z\\d]*)*)?)|(?:(?:\\d{1,4}(?:;\\d{0,4})*)?[\\dA-PRZcf-ntqry=><~]))"

var (
	ansiRe = regexp.MustCompile(ansi)
	timeRe = regexp.MustCompile(`\(\d+\.?\d*[a-zA-Z]+\)`) // matches patterns like (6.81s), (123ms)
)

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}

// stripOutput removes ANSI codes and durations so captured command
// output compares stably across runs.
func stripOutput(s string) string {
	return timeRe.ReplaceAllString(ansiRe.ReplaceAllString(s, ""), "(DURATION)")
}

// testRunContext returns a RunContext wired to in-memory buffers.
func testRunContext() (execcontext.RunContext, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return execcontext.RunContext{Context: context.Background(), StdOut: out, StdErr: errOut}, out, errOut
}

// setOutput pins the viper output settings for a test and restores the
// defaults afterwards.
func setOutput(t *testing.T, format string, quiet bool) {
	t.Helper()
	viper.Set("output", format)
	viper.Set("quiet", quiet)
	t.Cleanup(func() {
		viper.Set("output", "pretty")
		viper.Set("quiet", false)
	})
}

// resetRunFlags restores the run command's package flag state.
func resetRunFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		runAgent = ""
		runAgentDirs = nil
		runToolDirs = nil
		runVars = nil
		runOutFile = ""
	})
}
