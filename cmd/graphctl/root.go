package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alim08/coingraph/pkg/config"
	"github.com/alim08/coingraph/pkg/logger"
	"github.com/alim08/coingraph/pkg/pipeline"
)

var (
	configFile string
	storeKind  string
	dataDir    string
)

var rootCmd = &cobra.Command{
	Use:   "graphctl",
	Short: "Run pipeline stages once and inspect the transaction graph",
	Long: `graphctl runs a single unit of any pipeline stage (fetch, push, simulate,
sweep) for cron-driven or manual operation, and reads the transaction graph
(stats, query). Configuration comes from the same environment, .env and YAML
sources as the pipeline service.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logger.Init()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Log.Sync()
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (default $CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&storeKind, "store", "", "Graph store backend: neo4j or memory (default $STORE)")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "Durable record directory (default $DATA_DIR)")

	rootCmd.AddCommand(fetchCmd, pushCmd, simulateCmd, sweepCmd, statsCmd, queryCmd, latestCmd)
}

// loadConfig maps the persistent flags onto config.LoadArgs so flag
// precedence matches the pipeline service.
func loadConfig() (*config.Config, error) {
	var args []string
	if configFile != "" {
		args = append(args, "-config", configFile)
	}
	if storeKind != "" {
		args = append(args, "-store", storeKind)
	}
	if dataDir != "" {
		args = append(args, "-data-dir", dataDir)
	}
	return config.LoadArgs(args)
}

// withPipeline opens the configured store and runs fn against the assembled
// pipeline, closing everything afterwards.
func withPipeline(ctx context.Context, fn func(p *pipeline.Pipeline) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := pipeline.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close(context.Background())
	return fn(p)
}
