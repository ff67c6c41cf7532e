package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alim08/coingraph/pkg/fetcher"
	"github.com/alim08/coingraph/pkg/ledger"
	"github.com/alim08/coingraph/pkg/pipeline"
	"github.com/alim08/coingraph/pkg/records"
	"github.com/alim08/coingraph/pkg/retention"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch one market sample and write it as a durable record",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cache, err := pipeline.OpenCache(ctx, cfg)
		if err != nil {
			return err
		}
		var pub fetcher.Publisher
		if cache != nil {
			defer cache.Close()
			pub = cache
		}

		f := fetcher.New(fetcher.Options{
			URL:     cfg.SourceURL,
			APIKey:  cfg.SourceAPIKey,
			Timeout: cfg.HTTPTimeout,
		}, records.New(cfg.DataDir), pub)
		sample, err := f.Run(ctx)
		if err != nil {
			return err
		}
		if sample == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "no sample recorded (fetch failed, see log)")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "recorded %s\n", sample.RecordName())
		return nil
	},
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upsert every record not yet in the ledger into the graph",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), func(p *pipeline.Pipeline) error {
			res, err := p.Pusher.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pending=%d pushed=%d failed=%d\n", res.Pending, res.Pushed, res.Failed)
			return nil
		})
	},
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Link every unlinked transaction to synthetic wallets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), func(p *pipeline.Pipeline) error {
			res, err := p.Synthesizer.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unlinked=%d linked=%d failed=%d\n", res.Unlinked, res.Linked, res.Failed)
			return nil
		})
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete records past the retention window and prune the ledger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s := retention.New(records.New(cfg.DataDir), ledger.New(cfg.LedgerPath), cfg.RetentionWindow)
		res, err := s.Run(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, name := range res.Deleted {
			fmt.Fprintf(out, "deleted %s\n", name)
		}
		fmt.Fprintf(out, "deleted=%d pruned=%d\n", len(res.Deleted), len(res.Pruned))
		return nil
	},
}
