package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/seanankenbruck/samarth-qa/internal/processor"
	"github.com/seanankenbruck/samarth-qa/internal/store"
)

// ValidFormats defines the allowed output formats for ask.
var ValidFormats = []string{"json", "table"}

// NewAskCommand creates the ask command, which runs one question through the
// same pipeline the API uses
func NewAskCommand(root *RootOptions) *cobra.Command {
	var (
		format  string
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question and print the result",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(format) {
				return fmt.Errorf("invalid format %q: must be one of %v", format, ValidFormats)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := root.loadConfig(ctx)
			if err != nil {
				return err
			}

			logger := newLogger(cfg, "samarth", os.Stderr)
			a, err := newApp(ctx, cfg, logger, appOptions{cache: !noCache})
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.processor.Answer(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == "table" {
				return renderTable(out, resp)
			}
			return renderJSON(out, resp)
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "output format (json|table)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "skip the Redis response cache")

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func renderJSON(w io.Writer, resp *processor.Response) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// renderTable prints the envelope header lines followed by the rows
func renderTable(w io.Writer, resp *processor.Response) error {
	fmt.Fprintf(w, "Query: %s\n", resp.Query)
	fmt.Fprintf(w, "SQL:   %s\n", resp.SQL)
	if resp.Note != "" {
		fmt.Fprintf(w, "Note:  %s\n", resp.Note)
	}
	if len(resp.Result) == 0 {
		return nil
	}
	fmt.Fprintln(w)

	columns := recordColumns(resp.Result)

	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader(columns)

	for _, rec := range resp.Result {
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = formatCell(rec[col])
		}
		table.Append(row)
	}
	table.Render()

	fmt.Fprintf(w, "%d row(s)\n", len(resp.Result))
	return nil
}

// recordColumns returns the union of record keys, sorted
func recordColumns(records []store.Record) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec {
			seen[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return columns
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case float64:
		return fmt.Sprintf("%.4g", val)
	case float32:
		return fmt.Sprintf("%.4g", val)
	default:
		return fmt.Sprint(val)
	}
}
