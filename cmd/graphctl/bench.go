package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	goGraph "github.com/MrEthical07/goGraph"
	"github.com/MrEthical07/goGraph/session"
)

type benchOptions struct {
	sessions    int
	concurrency int
	ops         int
	redisAddr   string
	prefix      string
}

func newBenchCmd(root *rootOptions) *cobra.Command {
	o := benchOptions{}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Load-test the Redis session backend (seed, load and save phases)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.sessions <= 0 || o.concurrency <= 0 || o.ops <= 0 {
				return fmt.Errorf("%w: sessions, concurrency and ops must be > 0", goGraph.ErrInvalidArgument)
			}
			if o.redisAddr == "" {
				fc, err := loadConfig(root.configPath, lookupEnv)
				if err != nil {
					return err
				}
				o.redisAddr = fc.Redis.Addr
			}
			return runBench(cmd.Context(), o, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&o.sessions, "sessions", 10000, "number of sessions to seed")
	cmd.Flags().IntVar(&o.concurrency, "concurrency", 64, "number of concurrent workers")
	cmd.Flags().IntVar(&o.ops, "ops", 50000, "operations per phase (load + save)")
	cmd.Flags().StringVar(&o.redisAddr, "redis-addr", "", "redis address; empty uses the config, then miniredis")
	cmd.Flags().StringVar(&o.prefix, "prefix", "gsbench", "session key prefix")
	return cmd
}

type benchState struct {
	id      string
	version int64
	mu      sync.Mutex
}

func runBench(ctx context.Context, o benchOptions, out io.Writer) error {
	client, cleanup, err := openRedis(o.redisAddr, out)
	if err != nil {
		return err
	}
	defer cleanup()

	backend := session.NewRedisBackend(client, o.prefix)
	if _, err := backend.Ping(ctx); err != nil {
		return err
	}

	states := make([]benchState, o.sessions)
	fmt.Fprintf(out, "seeding %d sessions...\n", o.sessions)
	startSeed := time.Now()
	for i := range states {
		states[i].id = uuid.NewString()
		if err := backend.Set(ctx, states[i].id, benchSession(i, 0), time.Hour); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	loadStats := runPhase(o.ops, o.concurrency, len(states), 7919, func(worker, _, idx int) error {
		_, err := backend.Get(ctx, states[idx].id)
		return err
	})
	saveStats := runPhase(o.ops, o.concurrency, len(states), 6151, func(worker, i, idx int) error {
		state := &states[idx]
		state.mu.Lock()
		defer state.mu.Unlock()
		next := state.version + 1
		if err := backend.Set(ctx, state.id, benchSession(idx, next), time.Hour); err != nil {
			return err
		}
		state.version = next
		return nil
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "load", loadStats)
	printStats(out, "save", saveStats)
	return nil
}

// runPhase runs ops calls of op spread over concurrency workers, each picking a random
// session index, and times every call.
func runPhase(ops, concurrency, n int, seed int64, op func(worker, i, idx int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(worker, i, r.Intn(n))
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

// percentile expects sorted samples.
func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(w io.Writer, name string, s phaseStats) {
	fmt.Fprintf(w, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func benchSession(i int, version int64) *session.Session {
	return &session.Session{
		UserID:      int64(100000 + i),
		AccessToken: "bench|" + strconv.Itoa(i) + "|" + strconv.FormatInt(version, 10),
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}
