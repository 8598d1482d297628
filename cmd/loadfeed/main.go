// loadfeed drives the reel feed endpoint with a ramping population of
// virtual users and reports latency percentiles against a 200ms target.
package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const latencyTarget = 200 * time.Millisecond

type stage struct {
	duration time.Duration
	users    int
}

// Ramp to full load, hold, then back off.
var stages = []stage{
	{30 * time.Second, 20},
	{time.Minute, 100},
	{2 * time.Minute, 100},
	{30 * time.Second, 0},
}

type results struct {
	mu        sync.Mutex
	latencies []time.Duration

	requests atomic.Int64
	failures atomic.Int64
	slow     atomic.Int64
}

func (r *results) record(elapsed time.Duration, ok bool) {
	r.requests.Add(1)
	if !ok {
		r.failures.Add(1)
		return
	}
	if elapsed > latencyTarget {
		r.slow.Add(1)
	}
	r.mu.Lock()
	r.latencies = append(r.latencies, elapsed)
	r.mu.Unlock()
}

func (r *results) percentile(p float64) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(r.latencies))
	copy(sorted, r.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func main() {
	baseURL := flag.String("base-url", "http://localhost:8080/api", "backend /api base url")
	token := flag.String("token", os.Getenv("VIBEZ_AUTH_TOKEN"), "bearer token")
	perUserRate := flag.Float64("rate", 1.0, "requests per second per virtual user")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if *token == "" {
		logger.Fatal().Msg("a bearer token is required (flag -token or VIBEZ_AUTH_TOKEN)")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	res := &results{}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var active []context.CancelFunc

	start := time.Now()
	for _, st := range stages {
		// Grow or shrink the worker population to the stage target.
		for len(active) < st.users {
			workerCtx, stopWorker := context.WithCancel(ctx)
			active = append(active, stopWorker)
			wg.Add(1)
			go func() {
				defer wg.Done()
				runUser(workerCtx, client, *baseURL, *token, *perUserRate, res)
			}()
		}
		for len(active) > st.users {
			last := len(active) - 1
			active[last]()
			active = active[:last]
		}
		logger.Info().Int("users", st.users).Dur("stage", st.duration).Msg("stage started")
		time.Sleep(st.duration)
	}
	cancel()
	wg.Wait()

	total := res.requests.Load()
	failures := res.failures.Load()
	slow := res.slow.Load()
	succeeded := total - failures
	withinTarget := 0.0
	if succeeded > 0 {
		withinTarget = float64(succeeded-slow) / float64(succeeded)
	}

	logger.Info().
		Int64("requests", total).
		Int64("failures", failures).
		Dur("p50", res.percentile(0.50)).
		Dur("p95", res.percentile(0.95)).
		Dur("p99", res.percentile(0.99)).
		Float64("within_200ms", withinTarget).
		Dur("elapsed", time.Since(start)).
		Msg("feed load test finished")
}

func runUser(ctx context.Context, client *http.Client, baseURL, token string, perSecond float64, res *results) {
	limiter := rate.NewLimiter(rate.Limit(perSecond), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		start := time.Now()
		ok := fetchFeed(ctx, client, baseURL, token)
		res.record(time.Since(start), ok)
	}
}

func fetchFeed(ctx context.Context, client *http.Client, baseURL, token string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/reels/feed", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}
