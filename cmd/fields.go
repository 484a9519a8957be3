package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/owlmanandy/superfund-counties/internal/dataset"
	"github.com/owlmanandy/superfund-counties/internal/fetcher"
	"github.com/owlmanandy/superfund-counties/internal/shapefile"
	"github.com/owlmanandy/superfund-counties/internal/tabular"
)

var fieldsCmd = &cobra.Command{
	Use:   "fields <dataset>",
	Short: "List the fields and row count of a shapefile or table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ref, table := tabular.SplitRef(args[0])
		resolver := fetcher.NewResolver(os.TempDir(), pipelineOptions(cfg).HTTP, pipelineOptions(cfg).FTP)
		path, err := resolver.Resolve(ctx, ref, tabular.Extensions...)
		if err != nil {
			return err
		}

		var (
			fields []dataset.Field
			rows   int
		)
		if strings.EqualFold(filepath.Ext(path), ".shp") {
			fields, rows, err = shapefile.Fields(path)
		} else {
			var t *dataset.Table
			t, err = tabular.Load(ctx, path, tabular.Options{Table: table, Encoding: cfg.Pipeline.Encoding})
			if t != nil {
				fields, rows = t.Fields, t.Len()
			}
		}
		if err != nil {
			return err
		}

		formatFields(cmd.OutOrStdout(), path, fields, rows)
		return nil
	},
}

func formatFields(out io.Writer, path string, fields []dataset.Field, rows int) {
	_, _ = fmt.Fprintf(out, "%s: %d rows\n\n", path, rows)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tTYPE\tWIDTH\tDECIMALS")
	_, _ = fmt.Fprintln(w, "----\t----\t-----\t--------")
	for _, f := range fields {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", f.Name, f.Type, f.Width, f.Decimals)
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(fieldsCmd)
}
