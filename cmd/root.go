// Package cmd provides the tdi command-line interface.
//
// Configuration is read from several sources with clear precedence:
//  1. Command-line flags (--root, --log-level, ...) - highest priority
//  2. Individual environment variables (TDI_LOADER_ROOT, TDI_SERVER_PORT, ...)
//  3. The configuration file named by --config or TDI_CONFIG_FILE
//  4. .tdi.yml in the current directory - lowest priority
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/tdi/internal/config"
	"github.com/conneroisu/tdi/internal/logging"
	"github.com/conneroisu/tdi/pkg/loader"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tdi",
	Short: "Render markup templates driven by a separate model",
	Long: `tdi renders HTML and text templates whose elements are addressed with
tdi attributes. Markup stays plain markup; a model decides at render time
what gets repeated, replaced or removed.

Quick Start:
  tdi render page.html              Render page.html with page.yaml as model
  tdi inspect page.html             Show addresses, scopes and overlays
  tdi lex page.html                 Dump the token stream
  tdi serve                         Preview templates with live reload`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .tdi.yml, can also use TDI_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("root", "", "template root directory")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "log level (debug, info, warn, error)")

	_ = viper.BindPFlag("loader.root", rootCmd.PersistentFlags().Lookup("root"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig points viper at the configuration file.
//
// Configuration file priority (highest to lowest):
//  1. --config flag
//  2. TDI_CONFIG_FILE environment variable
//  3. .tdi.yml in the current directory
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("TDI_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tdi")
	}

	config.BindEnv(viper.GetViper())

	// A missing file leaves the defaults in place.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig resolves the configuration and a logger writing to the
// command's error stream.
func loadConfig(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	lc := cfg.LoggerConfig()
	lc.Output = cmd.ErrOrStderr()
	lc.Component = cmd.Name()
	return cfg, logging.NewLogger(lc), nil
}

func newLoader(cfg *config.Config, logger logging.Logger) (*loader.Loader, error) {
	return loader.New(cfg.Loader.Root,
		loader.WithExtensions(cfg.Loader.Extensions...),
		loader.WithDialect(cfg.Parser.DialectValue()),
		loader.WithParseOptions(cfg.ParseOptions()...),
		loader.WithAutoReload(cfg.Loader.AutoReload),
		loader.WithDebounce(cfg.Loader.Debounce),
		loader.WithLogger(logger),
	)
}
