package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alim08/coingraph/pkg/models"
	"github.com/alim08/coingraph/pkg/pipeline"
)

var (
	topLimit     int
	recentWindow time.Duration
	dailyDays    int
	queryParams  []string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print graph counts, the busiest wallets and recent activity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withPipeline(ctx, func(p *pipeline.Pipeline) error {
			stats, err := p.Store.Stats(ctx)
			if err != nil {
				return err
			}
			senders, err := p.Store.TopWallets(ctx, models.DirectionSent, topLimit)
			if err != nil {
				return err
			}
			receivers, err := p.Store.TopWallets(ctx, models.DirectionReceived, topLimit)
			if err != nil {
				return err
			}
			recent, err := p.Store.RecentTransactionCount(ctx, recentWindow)
			if err != nil {
				return err
			}
			daily, err := p.Store.DailyTransactionCounts(ctx, dailyDays)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "wallets\t%d\n", stats.Wallets)
			fmt.Fprintf(w, "transactions\t%d\n", stats.Transactions)
			fmt.Fprintf(w, "edges\t%d\t(sent %d, received %d)\n", stats.Edges, stats.Sent, stats.Received)
			fmt.Fprintf(w, "last %s\t%d\n", recentWindow, recent)
			fmt.Fprintln(w)
			writeActivity(w, "top senders", senders)
			writeActivity(w, "top receivers", receivers)
			fmt.Fprintln(w, "daily\ttransactions")
			for _, d := range daily {
				fmt.Fprintf(w, "%s\t%d\n", d.Day, d.Count)
			}
			return w.Flush()
		})
	},
}

var queryCmd = &cobra.Command{
	Use:   "query CYPHER",
	Short: "Run a read-only Cypher query and print rows as JSON lines",
	Example: `  graphctl query 'MATCH (w:Wallet)-[:SENT]->(t) RETURN w.address AS wallet, count(t) AS n ORDER BY n DESC LIMIT $k' --param k=5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(queryParams)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		return withPipeline(ctx, func(p *pipeline.Pipeline) error {
			rows, err := p.Store.Query(ctx, args[0], params)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, row := range rows {
				if err := enc.Encode(row); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Print the most recent sample from the Redis snapshot cache",
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
		if cache == nil {
			return fmt.Errorf("snapshot cache disabled, set REDIS_URL")
		}
		defer cache.Close()

		fields, err := cache.Latest(ctx)
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no sample cached")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, k := range []string{"timestamp", "price_usd", "market_cap", "volume_24h"} {
			fmt.Fprintf(w, "%s\t%s\n", k, fields[k])
		}
		return w.Flush()
	},
}

func init() {
	statsCmd.Flags().IntVarP(&topLimit, "top", "n", 5, "Number of wallets per ranking")
	statsCmd.Flags().DurationVar(&recentWindow, "window", time.Hour, "Window for the recent transaction count")
	statsCmd.Flags().IntVar(&dailyDays, "days", 7, "Days of daily transaction counts")
	queryCmd.Flags().StringArrayVarP(&queryParams, "param", "p", nil, "Query parameter as key=value (repeatable)")
}

func writeActivity(w *tabwriter.Writer, title string, rows []models.WalletActivity) {
	fmt.Fprintf(w, "%s\tcount\n", title)
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%d\n", r.Address, r.Count)
	}
	fmt.Fprintln(w)
}

// parseParams turns key=value pairs into query parameters. Values that parse
// as integers, floats or booleans are passed typed; the rest stay strings.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid param %q, want key=value", pair)
		}
		params[key] = typedValue(value)
	}
	return params, nil
}

func typedValue(v string) any {
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}
