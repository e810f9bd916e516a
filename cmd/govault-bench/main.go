// Command govault-bench measures field encryption and rate limiter
// throughput. Without -redis-addr it runs against an embedded miniredis.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goVault/fieldcrypt"
	"github.com/MrEthical07/goVault/ratelimit"
)

func main() {
	var (
		ops         = flag.Int("ops", 50000, "operations per phase")
		concurrency = flag.Int("concurrency", 64, "concurrent workers")
		identifiers = flag.Int("identifiers", 1000, "distinct limiter identifiers")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		masterKey   = flag.String("master-key", "", "fieldcrypt master key; random hex key when empty")
	)
	flag.Parse()

	if *ops <= 0 || *concurrency <= 0 || *identifiers <= 0 {
		fmt.Fprintln(os.Stderr, "ops, concurrency, and identifiers must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	key := *masterKey
	if key == "" {
		key = randomHexKey()
	}
	cipher, err := fieldcrypt.New(fieldcrypt.Config{MasterKey: key})
	if err != nil {
		fmt.Fprintf(os.Stderr, "cipher init: %v\n", err)
		os.Exit(1)
	}

	limiter := ratelimit.New(client, "bench", map[string]ratelimit.Rule{
		"general": {Limit: 1 << 30, Window: time.Minute},
	})

	encryptStats, envelopes := runEncryptPhase(cipher, *ops, *concurrency)
	decryptStats := runDecryptPhase(cipher, envelopes, *ops, *concurrency)
	limiterStats := runLimiterPhase(ctx, limiter, *ops, *concurrency, *identifiers)

	fmt.Println("---- results ----")
	printStats("encrypt", encryptStats)
	printStats("decrypt", decryptStats)
	printStats("ratelimit", limiterStats)
}

func runEncryptPhase(cipher *fieldcrypt.Cipher, ops, concurrency int) (phaseStats, []string) {
	envelopes := make([]string, ops)

	stats := runPhase(ops, concurrency, func(i int, _ *rand.Rand) error {
		envelope, err := cipher.Encrypt(fmt.Sprintf("user-%d@example.com", i), 256)
		if err == nil {
			envelopes[i] = envelope
		}
		return err
	})
	return stats, envelopes
}

func runDecryptPhase(cipher *fieldcrypt.Cipher, envelopes []string, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, func(i int, r *rand.Rand) error {
		_, err := cipher.Decrypt(envelopes[r.Intn(len(envelopes))])
		return err
	})
}

func runLimiterPhase(ctx context.Context, limiter *ratelimit.Limiter, ops, concurrency, identifiers int) phaseStats {
	return runPhase(ops, concurrency, func(_ int, r *rand.Rand) error {
		_, err := limiter.Check(ctx, "general", fmt.Sprintf("id-%d", r.Intn(identifiers)))
		return err
	})
}

func runPhase(ops, concurrency int, op func(i int, r *rand.Rand) error) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(i, r)
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
		return phaseStats{total: total}
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

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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

func randomHexKey() string {
	const hexDigits = "0123456789abcdef"
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	out := make([]byte, 64)
	for i := range out {
		out[i] = hexDigits[r.Intn(len(hexDigits))]
	}
	return string(out)
}
