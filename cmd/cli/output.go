package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

func outputFormat(cmd *cobra.Command) string {
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return outputText
	}
	return strings.ToLower(output)
}

// render writes value in the requested machine format, or calls text for
// the human readable form.
func render(cmd *cobra.Command, value any, text func(w io.Writer)) error {
	w := cmd.OutOrStdout()

	switch outputFormat(cmd) {
	case outputJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(value)
	case outputYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(value)
	default:
		text(w)
		return nil
	}
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
