package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tdi/pkg/markup"
)

var lexCmd = &cobra.Command{
	Use:   "lex <file|->",
	Short: "Dump the token stream of a markup file",
	Long: `Tokenize a file, or stdin when the argument is "-", and print one row
per token. Script and style contents are lexed as raw text the same way
the parser does it.

Examples:
  tdi lex page.html
  tdi lex page.html -f json
  echo '[list [item]]' | tdi lex - --dialect text`,
	Args: cobra.ExactArgs(1),
	RunE: runLex,
}

var (
	lexFlags   *StandardFlags
	lexDialect string
)

func init() {
	rootCmd.AddCommand(lexCmd)

	lexFlags = AddStandardFlags(lexCmd, "format")
	lexCmd.Flags().StringVar(&lexDialect, "dialect", "", "Dialect (html|text), default from configuration")
}

// TokenInfo is one row of the lex command's output.
type TokenInfo struct {
	Offset      int    `json:"offset" yaml:"offset"`
	Type        string `json:"type" yaml:"type"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Attrs       int    `json:"attrs,omitempty" yaml:"attrs,omitempty"`
	SelfClosing bool   `json:"self_closing,omitempty" yaml:"self_closing,omitempty"`
	Raw         string `json:"raw" yaml:"raw"`
}

func runLex(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	dialect := cfg.Parser.DialectValue()
	if lexDialect != "" {
		if dialect, err = markup.ParseDialect(lexDialect); err != nil {
			return err
		}
	}

	src, err := readSource(cmd, args[0])
	if err != nil {
		return err
	}

	tokens, lexErr := lexTokens(src, dialect, cfg.Parser.ConditionalComments)

	if strings.ToLower(lexFlags.Format) == "table" {
		rows := make([][]string, 0, len(tokens))
		for _, t := range tokens {
			name := t.Name
			if t.SelfClosing {
				name += " /"
			}
			rows = append(rows, []string{strconv.Itoa(t.Offset), t.Type, name, abbreviate(t.Raw, 48)})
		}
		renderTable(cmd.OutOrStdout(), fmt.Sprintf("%d tokens", len(tokens)), []string{"OFFSET", "TYPE", "NAME", "RAW"}, rows)
	} else if err := writeStructured(cmd.OutOrStdout(), lexFlags.Format, tokens); err != nil {
		return err
	}
	return lexErr
}

// lexTokens tokenizes src, switching the lexer to raw text after start tags
// the dialect's DTD declares CDATA.
func lexTokens(src []byte, dialect markup.Dialect, conditional bool) ([]TokenInfo, error) {
	dtd := markup.DefaultDTD(dialect)
	tokens := []TokenInfo{}

	var lexer *markup.Lexer
	lexer = markup.NewLexer(func(t markup.Token) error {
		tokens = append(tokens, TokenInfo{
			Offset:      t.Offset,
			Type:        t.Type.String(),
			Name:        t.Name,
			Attrs:       len(t.Attrs),
			SelfClosing: t.SelfClosing,
			Raw:         t.Raw,
		})
		if t.Type == markup.StartTagToken && !t.SelfClosing && dtd.IsCDATA(strings.ToLower(t.Name)) {
			lexer.SetCDATA(t.Name)
		}
		return nil
	}, markup.WithDialect(dialect), markup.WithConditionalComments(conditional))

	if err := lexer.Feed(src); err != nil {
		return tokens, err
	}
	return tokens, lexer.Finalize()
}

func readSource(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
