package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/agentuity/tiercache/cache"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/spf13/cobra"
)

type benchOptions struct {
	keys      int
	ops       int
	workers   int
	skew      float64
	valueSize int
}

// runBench drives a Zipf distributed GetOrSet load, the shape of real cache
// traffic, against e.
func runBench(ctx context.Context, e *cache.Engine, opts benchOptions) time.Duration {
	value := strings.Repeat("x", opts.valueSize)
	perWorker := opts.ops / opts.workers
	var wg sync.WaitGroup
	started := time.Now()
	for w := 0; w < opts.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(w) + 1))
			zipf := rand.NewZipf(r, opts.skew, 1, uint64(opts.keys-1))
			for i := 0; i < perWorker; i++ {
				if ctx.Err() != nil {
					return
				}
				key := "bench:" + strconv.FormatUint(zipf.Uint64(), 10)
				_, _ = e.GetOrSet(ctx, key, func(context.Context) (any, error) {
					return value, nil
				})
			}
		}()
	}
	wg.Wait()
	return time.Since(started)
}

func rss() string {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return "n/a"
	}
	mi, err := p.MemoryInfo()
	if err != nil {
		return "n/a"
	}
	return humanize.Bytes(mi.RSS)
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run a synthetic load through the configured cache and report tier statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts benchOptions
		opts.keys, _ = cmd.Flags().GetInt("keys")
		opts.ops, _ = cmd.Flags().GetInt("ops")
		opts.workers, _ = cmd.Flags().GetInt("workers")
		opts.skew, _ = cmd.Flags().GetFloat64("skew")
		opts.valueSize, _ = cmd.Flags().GetInt("value-size")
		if opts.keys < 2 || opts.workers < 1 || opts.ops < opts.workers || opts.skew <= 1 {
			return errors.New("need keys >= 2, workers >= 1, ops >= workers and skew > 1")
		}

		e, _, done, err := openEngine(cmd, prometheus.NewRegistry())
		if err != nil {
			return err
		}
		defer done()

		var elapsed time.Duration
		err = withSpinner(cmd.Context(), fmt.Sprintf("running %s operations", humanize.Comma(int64(opts.ops))), func() {
			elapsed = runBench(cmd.Context(), e, opts)
		})
		if err != nil {
			return err
		}

		stats := e.Stats()
		rows := make([][]string, 0, len(stats.Tiers))
		for _, t := range stats.Tiers {
			rows = append(rows, []string{
				t.Name,
				humanize.Comma(int64(t.Items)),
				humanize.Comma(t.Hits),
				humanize.Comma(t.Misses),
				humanize.Comma(t.Evictions),
			})
		}
		showTable([]string{"Tier", "Items", "Hits", "Misses", "Evictions"}, rows)
		showTable([]string{"Metric", "Value"}, [][]string{
			{"hit ratio", fmt.Sprintf("%.2f%%", stats.HitRatio()*100)},
			{"promotions", humanize.Comma(stats.Promotions)},
			{"store hits", humanize.Comma(stats.StoreHits)},
			{"store errors", humanize.Comma(stats.StoreErrors)},
			{"dropped writes", humanize.Comma(stats.DroppedWrites)},
			{"elapsed", elapsed.Round(time.Millisecond).String()},
			{"ops/sec", humanize.Comma(int64(float64(opts.ops) / elapsed.Seconds()))},
			{"rss", rss()},
		})
		return nil
	},
}

func init() {
	benchCmd.Flags().Int("keys", 10_000, "number of distinct keys")
	benchCmd.Flags().Int("ops", 200_000, "total GetOrSet calls")
	benchCmd.Flags().Int("workers", 8, "concurrent callers")
	benchCmd.Flags().Float64("skew", 1.1, "Zipf exponent, must be > 1")
	benchCmd.Flags().Int("value-size", 64, "bytes per value")
	rootCmd.AddCommand(benchCmd)
}
