package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gridharvest/internal/config"
	"github.com/3leaps/gridharvest/internal/observability"
	"github.com/3leaps/gridharvest/internal/server"
	"github.com/3leaps/gridharvest/internal/server/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the status HTTP server",
	Long: `Serve the local submission registry over HTTP.

Endpoints:
  /jobs            List tracked submissions
  /jobs/{testID}   One submission record
  /health          Aggregate health
  /version         Build information

Example:
  gridharvest serve
  gridharvest serve --host 0.0.0.0 --port 9000`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Bind address (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg := config.GetConfig()
	host := cfg.Server.Host
	port := cfg.Server.Port
	if serveHost != "" {
		host = serveHost
	}
	if servePort != 0 {
		port = servePort
	}

	handlers.InitHealthManager(versionInfo.Version)
	handlers.SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)

	srv := server.New(host, port).
		WithStore(registryStore()).
		WithLogger(observability.CLILogger)

	observability.CLILogger.Info("Starting status server",
		zap.String("host", host),
		zap.Int("port", port))

	if err := srv.Start(ctx); err != nil {
		observability.CLILogger.Error("Server failed", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
	}
	return nil
}
