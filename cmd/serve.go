package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/tdi/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Preview templates in the browser with live reload",
	Long: `Start the preview server. The index page lists every template under the
root; /t/<name> renders one with its model file. Open pages reload when a
template or model file changes.

Query parameters on /t/<name>:
  overlay=<name>   merge an overlay template (repeatable)
  start=<path>     render only the node at an address path

Examples:
  tdi serve                        # Serve the current directory
  tdi serve --root site -p 3000
  tdi serve --no-reload            # Disable file watching`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().Bool("no-reload", false, "Don't watch files for changes")

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if noReload, _ := cmd.Flags().GetBool("no-reload"); noReload {
		cfg.Loader.AutoReload = false
	}

	ldr, err := newLoader(cfg, logger)
	if err != nil {
		return err
	}

	srv := server.New(cfg, ldr, logger)
	addr, err := srv.Listen()
	if err != nil {
		_ = ldr.Close()
		return fmt.Errorf("failed to start server on port %d: %w", cfg.Server.Port, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s at http://%s\n", ldr.Root(), addr)
	return srv.Start(ctx)
}
