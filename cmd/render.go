package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tdi/pkg/tdi"
)

var renderCmd = &cobra.Command{
	Use:     "render <template>",
	Aliases: []string{"r"},
	Short:   "Render a template with a model file",
	Long: `Render a template found under the template root. The model is read
from --model, or from a YAML or JSON file named after the template
(page.html uses page.yaml, page.yml or page.json).

Examples:
  tdi render page.html                         # Use page.yaml as model
  tdi render page --model data.json -o out.html
  tdi render layout.html --overlay part.html   # Merge overlays first
  tdi render page.html --start body.items      # Render one subtree
  tdi render page.html --prerender static.yaml # Two-phase rendering`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

var (
	renderFlags    *StandardFlags
	renderOverlays []string
	renderStart    string
)

func init() {
	rootCmd.AddCommand(renderCmd)

	renderFlags = AddStandardFlags(renderCmd, "model", "output")
	renderCmd.Flags().StringSliceVar(&renderOverlays, "overlay", nil, "Overlay template merged into the base (repeatable)")
	renderCmd.Flags().StringVar(&renderStart, "start", "", "Render only the node at this address path")
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ldr, err := newLoader(cfg, logger)
	if err != nil {
		return err
	}
	defer ldr.Close()

	name := args[0]
	tree, err := ldr.LoadOverlay(name, renderOverlays...)
	if err != nil {
		return err
	}

	var model tdi.Model
	if renderFlags.Model != "" {
		model, err = readModel(renderFlags.Model)
	} else {
		model, err = ldr.LoadData(name)
	}
	if err != nil {
		return err
	}

	opts := append(cfg.RenderOptions(),
		tdi.WithModel(model),
		tdi.WithLogger(logger),
		tdi.WithContext(cmd.Context()),
	)
	if renderFlags.Prerender != "" {
		pre, err := readModel(renderFlags.Prerender)
		if err != nil {
			return err
		}
		opts = append(opts, tdi.WithPrerender(pre, ldr.Cache()))
	}
	if renderStart != "" {
		opts = append(opts, tdi.WithStart(renderStart))
	}

	out, err := tree.Bytes(opts...)
	if err != nil {
		return err
	}
	return writeOutput(cmd, renderFlags.Output, out)
}

func readModel(path string) (*tdi.DataModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model %s: %w", path, err)
	}
	defer f.Close()

	model, err := tdi.LoadDataModel(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", path, err)
	}
	return model, nil
}

func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	var w io.Writer = cmd.OutOrStdout()
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		defer f.Close()
		w = f
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
