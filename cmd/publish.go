package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/owlmanandy/superfund-counties/internal/db"
	"github.com/owlmanandy/superfund-counties/internal/pipeline"
)

var publishCmd = &cobra.Command{
	Use:   "publish <workspace>",
	Short: "Load the output layers of a finished run into PostGIS",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("publish"); err != nil {
			return err
		}

		layers, err := pipeline.LoadOutputs(args[0])
		if err != nil {
			return err
		}

		pool, err := db.Connect(ctx, cfg.PostGIS.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := db.NewPublisher(pool, cfg.PostGIS.Schema, cfg.PostGIS.SRID).Publish(ctx, layers...); err != nil {
			return err
		}

		for _, l := range layers {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s.%s: %d rows\n", cfg.PostGIS.Schema, db.TableName(l.Name), l.Len())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
}
