package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/owlmanandy/superfund-counties/internal/config"
	"github.com/owlmanandy/superfund-counties/internal/db"
	"github.com/owlmanandy/superfund-counties/internal/pipeline"
)

var (
	runPrefixLength int
	runFormats      []string
	runPublish      bool
	runMetricsFile  string
)

var runCmd = &cobra.Command{
	Use:   "run <workspace> <sites> <counties> <table> <code1> <code2> <code3> <operator> <compare> <value> <distance>",
	Short: "Run the county screening and proximity queries",
	Long: `Runs the five steps against the given inputs and writes Threshold_Counties,
Counties_with_Superfund and Superfund_near_Counties into the workspace.

Optional parameters (code2, code3, operator) may be passed as "" or "#".
Inputs may be local paths, http(s):// or ftp:// URLs, or .zip archives.
SQLite and GeoPackage tables are referenced as path#table.`,
	Example: `  superfund-counties run ./out sites.shp counties.shp acs.csv B17001e2 B17001e1 "#" / ">" 0.25 "10 Miles"`,
	Args:    cobra.ExactArgs(pipeline.NumArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		params, err := pipeline.ParseArgs(args)
		if err != nil {
			return err
		}

		applyRunFlags(cmd, cfg)
		mode := "run"
		if runPublish {
			mode = "run+publish"
		}
		if err := cfg.Validate(mode); err != nil {
			return err
		}

		var options []pipeline.Option
		if runPublish {
			pool, err := db.Connect(ctx, cfg.PostGIS.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			options = append(options, pipeline.WithPublisher(db.NewPublisher(pool, cfg.PostGIS.Schema, cfg.PostGIS.SRID)))
		}

		p := pipeline.New(pipelineOptions(cfg), options...)
		res, runErr := p.Run(ctx, params)

		if path := cfg.Metrics.Textfile; path != "" {
			if err := p.Metrics().WriteTextfile(path); err != nil {
				zap.L().Warn("run: failed to write metrics", zap.String("path", path), zap.Error(err))
			}
		}
		if runErr != nil {
			return eris.Wrap(runErr, "run")
		}

		formatReport(cmd.OutOrStdout(), res.Report)
		return nil
	},
}

// applyRunFlags lets explicitly set flags override configuration.
func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("prefix-length") {
		c.Pipeline.PrefixLength = runPrefixLength
	}
	if flags.Changed("format") {
		c.Output.Formats = runFormats
	}
	if flags.Changed("metrics-file") {
		c.Metrics.Textfile = runMetricsFile
	}
}

func formatReport(out io.Writer, r *pipeline.Report) {
	_, _ = fmt.Fprintf(out, "run %s finished in %s\n\n", r.RunID, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LAYER\tROWS\tFILES")
	_, _ = fmt.Fprintln(w, "-----\t----\t-----")
	for _, o := range r.Outputs {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\n", o.Layer, o.Rows, len(o.Files))
	}
	_ = w.Flush()
}

func init() {
	runCmd.Flags().IntVar(&runPrefixLength, "prefix-length", pipeline.DefaultPrefixLength, "characters stripped from table identifiers")
	runCmd.Flags().StringSliceVar(&runFormats, "format", []string{pipeline.FormatShapefile}, "output formats (shp, geojson)")
	runCmd.Flags().BoolVar(&runPublish, "publish", false, "publish outputs to PostGIS after the run")
	runCmd.Flags().StringVar(&runMetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	rootCmd.AddCommand(runCmd)
}
