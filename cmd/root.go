package main

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/owlmanandy/superfund-counties/internal/config"
	"github.com/owlmanandy/superfund-counties/internal/fetcher"
	"github.com/owlmanandy/superfund-counties/internal/pipeline"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "superfund-counties",
	Short: "Screen counties by ACS demographics and match them with Superfund sites",
	Long: "Joins American Community Survey tables to county polygons, computes an evaluation field, " +
		"keeps the counties passing a threshold, and finds which of them lie within a search distance of hazardous sites.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// pipelineOptions maps configuration onto pipeline options.
func pipelineOptions(c *config.Config) pipeline.Options {
	return pipeline.Options{
		PrefixLength:    c.Pipeline.PrefixLength,
		KeyField:        c.Pipeline.KeyField,
		NormalizedField: c.Pipeline.NormalizedField,
		EvalField:       c.Pipeline.EvalField,
		EvalWidth:       c.Pipeline.EvalWidth,
		EvalDecimals:    c.Pipeline.EvalDecimals,
		Encoding:        c.Pipeline.Encoding,
		Formats:         c.Output.Formats,
		HTTP: fetcher.HTTPOptions{
			UserAgent:  c.Fetch.UserAgent,
			Timeout:    time.Duration(c.Fetch.TimeoutSecs) * time.Second,
			MaxRetries: c.Fetch.MaxRetries,
		},
		FTP: fetcher.FTPOptions{
			Timeout: time.Duration(c.Fetch.TimeoutSecs) * time.Second,
		},
	}
}

// execute runs the command line and returns the exit code. Cobra prints any
// error.
func execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute())
}
