package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dojoai/dojo/internal/agent"
	"github.com/dojoai/dojo/internal/execcontext"
	"github.com/dojoai/dojo/internal/server"
	"github.com/dojoai/dojo/internal/session"
	"github.com/dojoai/dojo/internal/style"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve [modules...]",
	Short: "Serve modules over HTTP and WebSocket",
	Long: `Start the dojo server. Modules load once at startup; clients list
them over REST, start sessions, stream events over WebSocket, and feed
user input back in.

Examples:
  dojo serve refund.yaml                      # Serve a single module
  dojo serve refund.yaml outage.yaml          # Serve multiple modules
  dojo serve --module-dir ./modules           # Serve a whole directory
  dojo serve refund.yaml --port 3000 --host 0.0.0.0

The WebSocket endpoint speaks the interactive protocol: the client
sends {type: start, module, agent}, receives event frames, and may
send input, inject, pause, and resume frames while the run is live.`,
	Run: func(cmd *cobra.Command, args []string) {
		runCtx := execcontext.RunContext{
			Context: cmd.Context(),
			StdOut:  cmd.OutOrStdout(),
			StdErr:  cmd.OutOrStderr(),
		}

		moduleFiles := append(args, serveModules...)
		if len(moduleFiles) == 0 && serveModuleDir == "" {
			style.Error(runCtx.StdErr, "No module files specified. Pass files, --module, or --module-dir")
			os.Exit(1)
		}

		if err := startServer(runCtx, moduleFiles); err != nil {
			os.Exit(1)
		}
	},
}

var (
	serveHost                 string
	servePort                 int
	serveMaxSessions          int
	serveMetrics              bool
	serveCORS                 bool
	serveModules              []string
	serveModuleDir            string
	serveAgentDirs            []string
	serveRequestsPerMinute    int
	serveRequestsPerHour      int
	serveSessionStartsPerHour int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "localhost", "host to bind the server to")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "port to bind the server to")
	serveCmd.Flags().IntVar(&serveMaxSessions, "max-sessions", session.DefaultMaxSessions, "maximum concurrent sessions")
	serveCmd.Flags().BoolVar(&serveMetrics, "metrics", true, "expose Prometheus metrics on /metrics")
	serveCmd.Flags().BoolVar(&serveCORS, "cors", true, "enable CORS headers for browser clients")
	serveCmd.Flags().StringSliceVarP(&serveModules, "module", "m", nil, "module file to serve (repeatable)")
	serveCmd.Flags().StringVar(&serveModuleDir, "module-dir", "", "directory of module files to serve")
	serveCmd.Flags().StringSliceVar(&serveAgentDirs, "agent-dir", nil, "additional directories to search for agent specs")
	serveCmd.Flags().IntVar(&serveRequestsPerMinute, "requests-per-minute", 60, "per-client API rate limit (0 disables)")
	serveCmd.Flags().IntVar(&serveRequestsPerHour, "requests-per-hour", 500, "per-client hourly API rate limit (0 disables)")
	serveCmd.Flags().IntVar(&serveSessionStartsPerHour, "session-starts-per-hour", 20, "per-client session start limit (0 disables)")
}

func startServer(runCtx execcontext.RunContext, moduleFiles []string) error {
	cfg := server.DefaultConfig()
	cfg.Host = serveHost
	cfg.Port = servePort
	cfg.MaxSessions = serveMaxSessions
	cfg.EnableMetrics = serveMetrics
	cfg.EnableCORS = serveCORS
	cfg.ModuleFiles = moduleFiles
	cfg.ModuleDir = serveModuleDir
	cfg.AgentDirs = append(agent.DefaultDirs(), serveAgentDirs...)
	cfg.RequestsPerMinute = serveRequestsPerMinute
	cfg.RequestsPerHour = serveRequestsPerHour
	cfg.SessionStartsPerHour = serveSessionStartsPerHour
	cfg.Providers = defaultProviders()

	srv, err := server.New(cfg)
	if err != nil {
		style.Error(runCtx.StdErr, fmt.Sprintf("Failed to create server: %v", err))
		return err
	}

	if err := srv.LoadModules(); err != nil {
		style.Error(runCtx.StdErr, fmt.Sprintf("Failed to load modules: %v", err))
		return err
	}
	if err := srv.LoadAgents(); err != nil {
		style.Error(runCtx.StdErr, fmt.Sprintf("Failed to load agents: %v", err))
		return err
	}

	if !viper.GetBool("quiet") {
		base := fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
		style.Success(runCtx.StdOut, fmt.Sprintf("Dojo server listening on %s", base))
		fmt.Fprintf(runCtx.StdOut, "  REST API:   %s/api/v1\n", base)
		fmt.Fprintf(runCtx.StdOut, "  WebSocket:  ws://%s:%d/ws/session\n", cfg.Host, cfg.Port)
		fmt.Fprintf(runCtx.StdOut, "  Health:     %s/health\n", base)
		if cfg.EnableMetrics {
			fmt.Fprintf(runCtx.StdOut, "  Metrics:    %s/metrics\n", base)
		}
		fmt.Fprintf(runCtx.StdOut, "\nPress Ctrl+C to stop\n")
	}

	if err := srv.StartWithGracefulShutdown(); err != nil {
		style.Error(runCtx.StdErr, fmt.Sprintf("Server error: %v", err))
		return err
	}

	return nil
}
