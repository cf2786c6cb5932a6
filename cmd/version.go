package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tdi/internal/version"
)

var (
	versionFormat   string
	versionShort    bool
	versionDetailed bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display the version, commit, build time, Go version and platform.

Examples:
  tdi version              # Show version
  tdi version --detailed   # Show detailed version info
  tdi version --format json`,
	Args: cobra.NoArgs,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json, yaml)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
	versionCmd.Flags().BoolVar(&versionDetailed, "detailed", false, "Show detailed version information")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	switch versionFormat {
	case "json", "yaml":
		return writeStructured(w, versionFormat, struct {
			version.BuildInfo `yaml:",inline"`
			IsRelease         bool `json:"is_release" yaml:"is_release"`
		}{*version.GetBuildInfo(), version.IsRelease()})
	case "text":
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json, yaml)", versionFormat)
	}

	switch {
	case versionShort:
		fmt.Fprintln(w, version.GetShortVersion())
	case versionDetailed:
		fmt.Fprintln(w, version.GetDetailedVersion())
		if version.IsRelease() {
			fmt.Fprintln(w, "Build type: release")
		} else {
			fmt.Fprintln(w, "Build type: development")
		}
	default:
		fmt.Fprintf(w, "tdi %s\n", version.GetShortVersion())
	}
	return nil
}
