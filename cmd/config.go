package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/tdi/internal/config"
)

const defaultConfigFile = ".tdi.yml"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect tdi configuration",
	Long: `Show or validate tdi configuration.

Examples:
  tdi config show                        # Resolved configuration as YAML
  tdi config show --format json
  tdi config validate                    # Validate .tdi.yml
  tdi config validate --file other.yml --strict`,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file and report errors and warnings.
Warnings fail the command with --strict.`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	Long: `Display the configuration after applying the configuration file,
TDI_* environment variables, flags and defaults.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var (
	configFile   string
	configFormat string
	configStrict bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd, configShowCmd)

	vf := configValidateCmd.Flags()
	vf.StringVar(&configFile, "file", defaultConfigFile, "Configuration file to validate")
	vf.BoolVar(&configStrict, "strict", false, "Treat warnings as errors")

	configShowCmd.Flags().StringVar(&configFormat, "format", "yaml", "Output format (yaml, json)")
}

// readConfigFile decodes a single file over the defaults, without
// environment or flag overrides.
func readConfigFile(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("configuration file %s does not exist", path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	config.SetDefaults(v)

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &cfg, nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	path := configFile
	if path == "" {
		path = defaultConfigFile
	}

	cfg, err := readConfigFile(path)
	if err != nil {
		return err
	}

	result := config.ValidateConfigWithDetails(cfg)
	nErr, nWarn := len(result.Errors), len(result.Warnings)
	if nErr+nWarn == 0 {
		fmt.Fprintf(w, "%s is valid\n", path)
		return nil
	}

	writeIssues(w, path, result)

	switch {
	case nErr > 0:
		return fmt.Errorf("%s: %d errors", path, nErr)
	case configStrict:
		return fmt.Errorf("%s: %d warnings (strict)", path, nWarn)
	}
	fmt.Fprintf(w, "%s is valid with %d warnings\n", path, nWarn)
	return nil
}

func writeIssues(w io.Writer, path string, result *config.ValidationResult) {
	rows := make([][]string, 0, len(result.Errors)+len(result.Warnings))
	add := func(severity string, issues []config.ValidationError) {
		for _, issue := range issues {
			msg := issue.Message
			if len(issue.Suggestions) > 0 {
				msg += " (" + issue.Suggestions[0] + ")"
			}
			rows = append(rows, []string{severity, issue.Field, msg})
		}
	}
	add(errorStyle.Render("error"), result.Errors)
	add(warnStyle.Render("warning"), result.Warnings)

	renderTable(w, path, []string{"SEVERITY", "FIELD", "MESSAGE"}, rows)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return writeStructured(cmd.OutOrStdout(), configFormat, cfg)
}
