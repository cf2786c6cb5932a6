package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tdi/pkg/tdi"
)

var inspectCmd = &cobra.Command{
	Use:     "inspect <template>",
	Aliases: []string{"i"},
	Short:   "Show the addresses, scopes and overlays of a template",
	Long: `Parse a template and list what a model can reach in it: addressed
nodes with their paths, scopes, overlay declarations and any diagnostics
recorded while building the tree.

Examples:
  tdi inspect page.html             # Tables
  tdi inspect page.html -f json     # Machine readable
  tdi inspect layout.html --overlay part.html`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var (
	inspectFlags    *StandardFlags
	inspectOverlays []string
)

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectFlags = AddStandardFlags(inspectCmd, "format")
	inspectCmd.Flags().StringSliceVar(&inspectOverlays, "overlay", nil, "Overlay template merged into the base (repeatable)")
}

// InspectReport is the inspect command's structured output.
type InspectReport struct {
	Template    string            `json:"template" yaml:"template"`
	Dialect     string            `json:"dialect" yaml:"dialect"`
	Encoding    string            `json:"encoding" yaml:"encoding"`
	Addresses   []tdi.AddressInfo `json:"addresses" yaml:"addresses"`
	Scopes      []string          `json:"scopes" yaml:"scopes"`
	Overlays    []tdi.OverlayInfo `json:"overlays" yaml:"overlays"`
	Diagnostics []DiagnosticInfo  `json:"diagnostics" yaml:"diagnostics"`
}

// DiagnosticInfo is a flattened tree diagnostic.
type DiagnosticInfo struct {
	Severity string `json:"severity" yaml:"severity"`
	Offset   int    `json:"offset" yaml:"offset"`
	Message  string `json:"message" yaml:"message"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ldr, err := newLoader(cfg, logger)
	if err != nil {
		return err
	}
	defer ldr.Close()

	tree, err := ldr.LoadOverlay(args[0], inspectOverlays...)
	if err != nil {
		return err
	}

	report := buildReport(tree)
	if strings.ToLower(inspectFlags.Format) == "table" {
		printReport(cmd, report)
		return nil
	}
	return writeStructured(cmd.OutOrStdout(), inspectFlags.Format, report)
}

func buildReport(tree *tdi.Tree) InspectReport {
	report := InspectReport{
		Template:    tree.Source(),
		Dialect:     tree.Dialect().String(),
		Encoding:    tree.Encoding(),
		Addresses:   tree.Addresses(),
		Scopes:      tree.Scopes(),
		Overlays:    tree.Overlays(),
		Diagnostics: []DiagnosticInfo{},
	}
	for _, d := range tree.Diagnostics() {
		msg := ""
		if d.Err != nil {
			msg = d.Err.Error()
		}
		report.Diagnostics = append(report.Diagnostics, DiagnosticInfo{
			Severity: d.Severity.String(),
			Offset:   d.Offset,
			Message:  msg,
		})
	}
	if report.Addresses == nil {
		report.Addresses = []tdi.AddressInfo{}
	}
	if report.Overlays == nil {
		report.Overlays = []tdi.OverlayInfo{}
	}
	return report
}

func printReport(cmd *cobra.Command, report InspectReport) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s %s\n\n",
		titleStyle.Render(report.Template),
		mutedStyle.Render(fmt.Sprintf("(%s, %s)", report.Dialect, report.Encoding)))

	rows := make([][]string, 0, len(report.Addresses))
	for _, a := range report.Addresses {
		sep := ""
		if a.Separator {
			sep = "yes"
		}
		rows = append(rows, []string{a.Path, a.Directive, a.Tag, a.Scope, sep, strconv.Itoa(a.Offset)})
	}
	renderTable(w, "Addresses", []string{"PATH", "DIRECTIVE", "TAG", "SCOPE", "SEPARATOR", "OFFSET"}, rows)

	rows = rows[:0]
	for _, s := range report.Scopes {
		rows = append(rows, []string{s})
	}
	renderTable(w, "Scopes", []string{"PATH"}, rows)

	rows = rows[:0]
	for _, o := range report.Overlays {
		rows = append(rows, []string{o.Name, o.Directive, o.Role, o.Placement, o.Tag, strconv.Itoa(o.Offset)})
	}
	renderTable(w, "Overlays", []string{"NAME", "DIRECTIVE", "ROLE", "PLACEMENT", "TAG", "OFFSET"}, rows)

	fmt.Fprintln(w, titleStyle.Render("Diagnostics"))
	if len(report.Diagnostics) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  (none)"))
		return
	}
	for _, d := range report.Diagnostics {
		style := warnStyle
		if d.Severity == "error" {
			style = errorStyle
		}
		fmt.Fprintf(w, "  %s @%d: %s\n", style.Render(d.Severity), d.Offset, d.Message)
	}
}
