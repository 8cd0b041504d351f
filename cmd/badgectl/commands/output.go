package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

var (
	label = color.New(color.FgCyan)
	red   = color.New(color.FgRed, color.Bold)
)

// render writes v in the selected output format.
func render(w io.Writer, v any) error {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	case "text":
		return renderText(w, v)
	}
	return fmt.Errorf("unknown output format %q", outputFormat)
}

func renderText(w io.Writer, v any) error {
	switch out := v.(type) {
	case derivedOutput:
		label.Fprintf(w, "%-8s", out.Kind)
		fmt.Fprintf(w, " %s\n", out.Address)
		label.Fprintf(w, "%-8s", "did")
		fmt.Fprintf(w, " %s\n", out.DID)
		label.Fprintf(w, "%-8s", "nonce")
		fmt.Fprintf(w, " %d\n", out.Nonce)
	case tokenOutput:
		label.Fprintf(w, "%-8s", "wallet")
		fmt.Fprintf(w, " %s\n", out.Wallet)
		label.Fprintf(w, "%-8s", "scope")
		fmt.Fprintf(w, " %s\n", out.Scope)
		label.Fprintf(w, "%-8s", "expires")
		fmt.Fprintf(w, " %s\n", out.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
		fmt.Fprintln(w, out.Token)
	default:
		return fmt.Errorf("no text rendering for %T", v)
	}
	return nil
}

func printError(err error) {
	red.Fprintf(os.Stderr, "error: ")
	fmt.Fprintln(os.Stderr, err)
}
