package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/nutshop/internal/auth"
)

const defaultPriceMinor = int64(1000)

type loadMode string

const (
	modeCreate        loadMode = "create"
	modeCreatePay     loadMode = "create-pay"
	modeCreateDeliver loadMode = "create-deliver"
)

type config struct {
	baseURL     string
	total       int
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	secret      string
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type endpointReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt        time.Time                 `json:"started_at"`
	DurationSeconds  float64                   `json:"duration_seconds"`
	TotalScenarios   int64                     `json:"total_scenarios"`
	FailedScenarios  int64                     `json:"failed_scenarios"`
	RPS              float64                   `json:"rps"`
	Endpoints        map[string]endpointReport `json:"endpoints"`
}

type endpointStats struct {
	calls     int64
	success   int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

type collector struct {
	mu        sync.Mutex
	endpoints map[string]*endpointStats
}

func newCollector() *collector {
	return &collector{endpoints: make(map[string]*endpointStats)}
}

func (c *collector) record(endpoint string, latency time.Duration, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.endpoints[endpoint]
	if !ok {
		stats = &endpointStats{codes: make(map[string]int64)}
		c.endpoints[endpoint] = stats
	}

	stats.calls++
	stats.codes[strconv.Itoa(status)]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000)
	if status >= 200 && status < 300 {
		stats.success++
	} else {
		stats.failed++
	}
}

func (c *collector) buildReport(startedAt time.Time, elapsed time.Duration, total, failed int64) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt,
		DurationSeconds: elapsed.Seconds(),
		TotalScenarios:  total,
		FailedScenarios: failed,
		Endpoints:       make(map[string]endpointReport, len(c.endpoints)),
	}
	if elapsed > 0 {
		result.RPS = float64(total) / elapsed.Seconds()
	}

	for name, stats := range c.endpoints {
		entry := endpointReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			Codes:     stats.codes,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
		if stats.calls > 0 {
			entry.ErrorRate = float64(stats.failed) / float64(stats.calls)
		}
		result.Endpoints[name] = entry
	}
	return result
}

func parseConfig() (config, error) {
	cfg := config{}
	var mode string

	flag.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "base URL of the order service")
	flag.IntVar(&cfg.total, "n", 100, "total scenarios to run")
	flag.DurationVar(&cfg.duration, "duration", 0, "run for a fixed duration instead of a fixed count")
	flag.IntVar(&cfg.concurrency, "c", 4, "number of concurrent workers")
	flag.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	flag.StringVar(&mode, "mode", "create", "scenario: create|create-pay|create-deliver")
	flag.StringVar(&cfg.secret, "secret", os.Getenv("SHOP_JWT_SECRET"), "JWT secret to mint tokens")
	flag.StringVar(&cfg.outputPath, "o", "", "write JSON report to file")
	flag.Parse()

	switch loadMode(mode) {
	case modeCreate, modeCreatePay, modeCreateDeliver:
		cfg.mode = loadMode(mode)
	default:
		return cfg, fmt.Errorf("unsupported mode %q", mode)
	}
	if cfg.secret == "" {
		return cfg, fmt.Errorf("-secret (or SHOP_JWT_SECRET) is required")
	}
	if cfg.concurrency <= 0 {
		cfg.concurrency = 1
	}
	return cfg, nil
}

type runner struct {
	cfg           config
	client        *http.Client
	customerToken string
	adminToken    string
	collector     *collector
	failed        atomic.Int64
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	customerToken, err := auth.NewToken(1, nil, cfg.secret, time.Hour)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mint customer token:", err)
		os.Exit(1)
	}
	adminToken, err := auth.NewToken(2, []string{auth.PermissionOrders}, cfg.secret, time.Hour)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mint admin token:", err)
		os.Exit(1)
	}

	r := &runner{
		cfg:           cfg,
		client:        &http.Client{Timeout: cfg.timeout},
		customerToken: customerToken,
		adminToken:    adminToken,
		collector:     newCollector(),
	}

	ctx := context.Background()
	if cfg.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.duration)
		defer cancel()
	}

	startedAt := time.Now()
	var total atomic.Int64
	var wg sync.WaitGroup

	jobs := make(chan int)
	go func() {
		defer close(jobs)
		for i := 0; cfg.duration > 0 || i < cfg.total; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	for w := 0; w < cfg.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				total.Add(1)
				if err := r.runScenario(ctx); err != nil {
					r.failed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	result := r.collector.buildReport(startedAt, time.Since(startedAt), total.Load(), r.failed.Load())
	printReport(result)

	if cfg.outputPath != "" {
		raw, err := json.MarshalIndent(result, "", "  ")
		if err == nil {
			err = os.WriteFile(cfg.outputPath, raw, 0o644)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "write report:", err)
			os.Exit(1)
		}
	}

	if r.failed.Load() > 0 {
		os.Exit(1)
	}
}

// runScenario прогоняет один заказ через выбранный сценарий.
func (r *runner) runScenario(ctx context.Context) error {
	orderID, err := r.createOrder(ctx)
	if err != nil {
		return err
	}

	switch r.cfg.mode {
	case modeCreatePay:
		return r.adminPost(ctx, "update-payment", map[string]any{
			"orderId":       orderID,
			"paymentStatus": "Paid",
			"transactionId": uuid.NewString(),
		})
	case modeCreateDeliver:
		itemID, err := r.firstItemID(ctx, orderID)
		if err != nil {
			return err
		}
		return r.adminPost(ctx, "update-items", map[string]any{
			"orderId": orderID,
			"items":   []map[string]any{{"itemId": itemID, "deliveredQty": 1}},
		})
	default:
		return nil
	}
}

func (r *runner) createOrder(ctx context.Context) (int64, error) {
	body := map[string]any{
		"addressId":     1,
		"transactionId": "",
		"items": []map[string]any{
			{"productId": 1, "qty": 1, "price": defaultPriceMinor},
		},
	}

	status, respBody, err := r.do(ctx, http.MethodPost, "/api/orders", r.customerToken, body, map[string]string{
		"Idempotency-Key": uuid.NewString(),
	})
	r.collector.record("POST /api/orders", respBody.latency, status)
	if err != nil {
		return 0, err
	}
	if status != http.StatusCreated {
		return 0, fmt.Errorf("create order: unexpected status %d", status)
	}

	var created struct {
		OrderID int64 `json:"orderId"`
	}
	if err := json.Unmarshal(respBody.raw, &created); err != nil {
		return 0, err
	}
	return created.OrderID, nil
}

func (r *runner) firstItemID(ctx context.Context, orderID int64) (int64, error) {
	path := "/api/orders/" + strconv.FormatInt(orderID, 10)
	status, respBody, err := r.do(ctx, http.MethodGet, path, r.adminToken, nil, nil)
	r.collector.record("GET /api/orders/{id}", respBody.latency, status)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("get order: unexpected status %d", status)
	}

	var envelope struct {
		Data struct {
			Items []struct {
				ID int64 `json:"id"`
			} `json:"items"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody.raw, &envelope); err != nil {
		return 0, err
	}
	if len(envelope.Data.Items) == 0 {
		return 0, fmt.Errorf("order %d has no items", orderID)
	}
	return envelope.Data.Items[0].ID, nil
}

func (r *runner) adminPost(ctx context.Context, action string, body map[string]any) error {
	path := "/api/admin/orders/" + action
	status, respBody, err := r.do(ctx, http.MethodPost, path, r.adminToken, body, nil)
	r.collector.record("POST "+path, respBody.latency, status)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", action, status)
	}
	return nil
}

type response struct {
	raw     []byte
	latency time.Duration
}

func (r *runner) do(ctx context.Context, method, path, token string, body map[string]any, headers map[string]string) (int, response, error) {
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			return 0, response{}, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, r.cfg.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, response{latency: latency}, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return resp.StatusCode, response{latency: latency}, err
	}
	return resp.StatusCode, response{raw: buf.Bytes(), latency: latency}, nil
}

func printReport(result report) {
	fmt.Printf("scenarios: total=%d failed=%d rps=%.1f duration=%.1fs\n",
		result.TotalScenarios, result.FailedScenarios, result.RPS, result.DurationSeconds)

	names := make([]string, 0, len(result.Endpoints))
	for name := range result.Endpoints {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		e := result.Endpoints[name]
		fmt.Printf("%-40s calls=%d err=%.2f%% p50=%.1fms p95=%.1fms p99=%.1fms\n",
			name, e.Calls, e.ErrorRate*100, e.LatencyMs.P50, e.LatencyMs.P95, e.LatencyMs.P99)
	}
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
