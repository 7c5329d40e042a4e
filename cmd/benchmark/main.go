package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/atomicbank/internal/auth"
	"github.com/punchamoorthee/atomicbank/internal/config"
	"github.com/punchamoorthee/atomicbank/internal/domain"
	"github.com/punchamoorthee/atomicbank/internal/ledger"
)

var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	password    string
	amount      string
)

var (
	totalRequests uint64
	succeeded     uint64
	rejected      uint64 // 422, e.g. insufficient funds
	conflicts     uint64 // 409 idempotency races
	limited       uint64 // 429
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "", "Ledger base URL (default LEDGER_BASE_URL)")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.StringVar(&password, "password", "", "Shared password (default SHARED_PASSWORD)")
	flag.StringVar(&amount, "amount", "1", "Amount per transfer")
}

// credential is a fixed Authorizer for one identity.
type credential auth.Token

func (c credential) Authorization() (string, error) { return auth.Token(c).Header(), nil }

func main() {
	flag.Parse()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	amt, err := decimal.NewFromString(amount)
	if err == nil && amt.IsPositive() {
		amt, err = domain.CheckAmount(amt)
	}
	if err != nil || !amt.IsPositive() {
		logger.Error("amount must be a positive decimal with at most 2 places", "amount", amount)
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg, err := config.Load(".")
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if targetURL == "" {
		targetURL = cfg.LedgerBaseURL
	}
	if password == "" {
		password = cfg.SharedPassword
	}

	identities, err := transferParties(cfg.Registry)
	if err != nil {
		logger.Error("cannot generate transfers", "error", err)
		os.Exit(2)
	}
	client := ledger.NewClient(targetURL,
		ledger.WithHTTPClient(&http.Client{Timeout: 5 * time.Second}),
		ledger.WithLogger(logger),
	)

	logger.Info("starting benchmark", "url", targetURL, "workload", workload, "workers", concurrency, "duration", duration, "identities", len(identities))

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, client, identities, amt)
	}
	wg.Wait()

	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time, client *ledger.Client, identities []domain.Identity, amt decimal.Decimal) {
	defer wg.Done()
	ctx := context.Background()

	for time.Since(start) < duration {
		from, to := pickPair(identities)
		cred := credential(auth.Encode(from.Handle, password))

		err := client.SubmitTransfer(ctx, cred, from.ID, to.ID, amt)
		atomic.AddUint64(&totalRequests, 1)

		var terr *ledger.TransferError
		switch {
		case err == nil:
			atomic.AddUint64(&succeeded, 1)
		case errors.As(err, &terr) && terr.StatusCode == http.StatusConflict:
			atomic.AddUint64(&conflicts, 1)
		case errors.As(err, &terr) && terr.StatusCode == http.StatusTooManyRequests:
			atomic.AddUint64(&limited, 1)
		case errors.As(err, &terr) && terr.StatusCode == http.StatusUnprocessableEntity:
			atomic.AddUint64(&rejected, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
	}
}

// transferParties returns the registry's identities, which must number at least two.
func transferParties(registry *domain.Registry) ([]domain.Identity, error) {
	identities := registry.All()
	if len(identities) < 2 {
		return nil, fmt.Errorf("IDENTITIES lists %d identity; transfers need at least two", len(identities))
	}
	return identities, nil
}

// pickPair chooses two distinct identities. identities must hold at least two.
func pickPair(identities []domain.Identity) (domain.Identity, domain.Identity) {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic between the first two accounts
		if rand.Float32() < 0.90 {
			if rand.Float32() < 0.5 {
				return identities[0], identities[1]
			}
			return identities[1], identities[0]
		}
	}

	a := rand.Intn(len(identities))
	b := rand.Intn(len(identities) - 1)
	if b >= a {
		b++
	}
	return identities[a], identities[b]
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	ok := atomic.LoadUint64(&succeeded)
	f409 := atomic.LoadUint64(&conflicts)

	var abortRate float64
	if total > 0 {
		abortRate = float64(f409) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":        workload,
		"duration_sec":    d.Seconds(),
		"total_requests":  total,
		"throughput_tps":  float64(total) / d.Seconds(),
		"success":         ok,
		"rejected":        atomic.LoadUint64(&rejected),
		"rate_limited":    atomic.LoadUint64(&limited),
		"aborts_conflict": f409,
		"abort_rate_pct":  abortRate,
		"errors":          atomic.LoadUint64(&failOther),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
