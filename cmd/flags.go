package cmd

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// StandardFlags provides consistent flag definitions across commands
type StandardFlags struct {
	// Output flags
	Format string
	Output string

	// Model flags
	Model     string
	Prerender string
}

var outputFormats = []string{"table", "json", "yaml"}

// AddStandardFlags adds standard flags to a command
func AddStandardFlags(cmd *cobra.Command, flagTypes ...string) *StandardFlags {
	flags := &StandardFlags{}

	for _, flagType := range flagTypes {
		switch flagType {
		case "format":
			cmd.Flags().StringVarP(&flags.Format, "format", "f", "table", "Output format (table|json|yaml)")
			AddFlagValidation(cmd, "format", ValidateFormat)
		case "output":
			cmd.Flags().StringVarP(&flags.Output, "output", "o", "", "Write output to this file instead of stdout")
		case "model":
			cmd.Flags().StringVarP(&flags.Model, "model", "m", "", "Model file (YAML or JSON), default <template>.yaml")
			cmd.Flags().StringVar(&flags.Prerender, "prerender", "", "Prerender model file; enables the prerender cache")
			AddFlagValidation(cmd, "model", ValidateFileExists)
			AddFlagValidation(cmd, "prerender", ValidateFileExists)
		}
	}

	return flags
}

// AddFlagValidation adds validation for a specific flag
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// ValidateFormat checks an output format name.
func ValidateFormat(format string) error {
	if !slices.Contains(outputFormats, strings.ToLower(format)) {
		return fmt.Errorf("invalid output format %s, must be one of: %s",
			format, strings.Join(outputFormats, ", "))
	}
	return nil
}

// ValidateFileExists checks that an optional file argument exists.
func ValidateFileExists(filename string) error {
	if filename == "" {
		return nil
	}
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", filename)
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", filename)
	}
	return nil
}
