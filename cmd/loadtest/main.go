package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const (
	ordersPath     = "/pedidos"
	codeTransport  = "transport_error"
	scenarioMethod = "scenario"
)

type loadMode string

const (
	modeCreate       loadMode = "create"
	modePerItem      loadMode = "per-item"
	modeCreateDelete loadMode = "create-delete"
)

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	deleteRate  int
	items       int
	price       float64
	phonePrefix string
	outputPath  string
}

type latencySummary struct {
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
	AssignedNumbers   int                     `json:"assigned_numbers"`
	MaxNumber         int64                   `json:"max_number"`
	DuplicateNumbers  []int64                 `json:"duplicate_numbers"`
}

const (
	callsMetric   = "loadtest_calls_total"
	latencyMetric = "loadtest_latency_ms"
)

// collector считает вызовы и задержки в собственном prometheus-реестре.
// Отчёт строится из Gather(), так что цифры совпадают с тем, что отдал бы /metrics.
type collector struct {
	registry *prometheus.Registry
	calls    *prometheus.CounterVec
	latency  *prometheus.SummaryVec
}

func newCollector() *collector {
	c := &collector{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: callsMetric,
			Help: "Load test calls grouped by method and response code",
		}, []string{"method", "code"}),
		latency: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       latencyMetric,
			Help:       "Load test call latency in milliseconds",
			Objectives: map[float64]float64{0.5: 0.05, 0.95: 0.005, 0.99: 0.001},
			MaxAge:     time.Hour,
		}, []string{"method"}),
	}
	c.registry.MustRegister(c.calls, c.latency)
	return c
}

// record учитывает вызов; status=0 означает, что ответа не было.
func (c *collector) record(method string, latency time.Duration, status int) {
	c.calls.WithLabelValues(method, statusLabel(status)).Inc()
	c.latency.WithLabelValues(method).Observe(float64(latency.Microseconds()) / 1000.0)
}

func (c *collector) snapshot(name string) (methodReport, bool) {
	r, ok := c.methodReports()[name]
	return r, ok
}

func (c *collector) methodReports() map[string]methodReport {
	families, err := c.registry.Gather()
	if err != nil {
		return map[string]methodReport{}
	}

	reports := make(map[string]methodReport)
	for _, family := range families {
		for _, m := range family.GetMetric() {
			method := labelValue(m, "method")
			r := reports[method]
			switch family.GetName() {
			case callsMetric:
				code := labelValue(m, "code")
				n := int64(m.GetCounter().GetValue())
				if r.Codes == nil {
					r.Codes = make(map[string]int64)
				}
				r.Codes[code] += n
				r.Calls += n
				if status, err := strconv.Atoi(code); err == nil && isSuccess(status) {
					r.Success += n
				} else {
					r.Failed += n
				}
			case latencyMetric:
				r.LatencyMs = latencyFromSummary(m.GetSummary())
			}
			reports[method] = r
		}
	}
	for name, r := range reports {
		r.ErrorRate = ratio(r.Failed, r.Calls)
		reports[name] = r
	}
	return reports
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Methods:         c.methodReports(),
	}

	if scenario, ok := result.Methods[scenarioMethod]; ok {
		result.TotalScenarios = scenario.Calls
		result.SuccessScenarios = scenario.Success
		result.FailedScenarios = scenario.Failed
		result.ErrorRate = scenario.ErrorRate
		result.ScenarioLatencyMs = scenario.LatencyMs
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}
	return result
}

func labelValue(m *dto.Metric, name string) string {
	for _, pair := range m.GetLabel() {
		if pair.GetName() == name {
			return pair.GetValue()
		}
	}
	return ""
}

func latencyFromSummary(s *dto.Summary) latencySummary {
	count := s.GetSampleCount()
	if count == 0 {
		return latencySummary{}
	}

	out := latencySummary{Avg: s.GetSampleSum() / float64(count)}
	for _, q := range s.GetQuantile() {
		v := q.GetValue()
		if math.IsNaN(v) {
			v = 0
		}
		switch q.GetQuantile() {
		case 0.5:
			out.P50 = v
		case 0.95:
			out.P95 = v
		case 0.99:
			out.P99 = v
		}
	}
	return out
}

// numberTracker запоминает каждый выданный сервером номер заказа.
// Номер, встретившийся дважды, означает нарушение уникальности.
type numberTracker struct {
	mu   sync.Mutex
	seen map[int64]int
}

func newNumberTracker() *numberTracker {
	return &numberTracker{seen: make(map[int64]int)}
}

func (n *numberTracker) add(numbers ...int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, number := range numbers {
		n.seen[number]++
	}
}

func (n *numberTracker) apply(r *report) {
	n.mu.Lock()
	defer n.mu.Unlock()

	r.AssignedNumbers = len(n.seen)
	r.DuplicateNumbers = nil
	for number, count := range n.seen {
		if number > r.MaxNumber {
			r.MaxNumber = number
		}
		if count > 1 {
			r.DuplicateNumbers = append(r.DuplicateNumbers, number)
		}
	}
	sort.Slice(r.DuplicateNumbers, func(i, j int) bool { return r.DuplicateNumbers[i] < r.DuplicateNumbers[j] })
}

func parseConfig() (config, error) {
	var cfg config
	var modeValue string
	var timeoutValue string
	var durationValue string

	flag.StringVar(&cfg.addr, "addr", "http://localhost:5000", "shop API base URL")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	flag.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | per-item | create-delete")
	flag.IntVar(&cfg.deleteRate, "delete-rate", 50, "delete probability in percent for create-delete mode (0..100)")
	flag.IntVar(&cfg.items, "items", 2, "cart items per order")
	flag.Float64Var(&cfg.price, "price", 59.9, "price of each cart item")
	flag.StringVar(&cfg.phonePrefix, "phone-prefix", "1190000", "contact phone prefix; scenario index is appended")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode
	cfg.addr = strings.TrimSuffix(strings.TrimSpace(cfg.addr), "/")

	if cfg.addr == "" {
		return cfg, errors.New("addr is required")
	}
	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.deleteRate < 0 || cfg.deleteRate > 100 {
		return cfg, errors.New("delete-rate must be between 0 and 100")
	}
	if cfg.items <= 0 {
		return cfg, errors.New("items must be > 0")
	}
	if cfg.price < 0 {
		return cfg, errors.New("price must be >= 0")
	}
	if strings.TrimSpace(cfg.phonePrefix) == "" {
		return cfg, errors.New("phone-prefix is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCreate:
		return modeCreate, nil
	case modePerItem:
		return modePerItem, nil
	case modeCreateDelete:
		return modeCreateDelete, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func newClient(cfg config) *resty.Client {
	return resty.New().
		SetTimeout(cfg.timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	client := newClient(cfg)
	startedAt := time.Now()
	col := newCollector()
	numbers := newNumberTracker()

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if runErr := runScenario(client, cfg, id, col, numbers); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	duration := time.Since(startedAt)
	result := col.buildReport(startedAt, duration)
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}
	numbers.apply(&result)

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 || len(result.DuplicateNumbers) > 0 {
		os.Exit(1)
	}
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

type apiOrder struct {
	ID     string `json:"_id"`
	Number int64  `json:"id"`
}

type createResponse struct {
	Order  *apiOrder  `json:"pedido"`
	Orders []apiOrder `json:"pedidos"`
}

// statusError: ответ API с кодом не из 2xx.
type statusError struct {
	method string
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.method, e.status, e.body)
}

func runScenario(client *resty.Client, cfg config, index int, col *collector, numbers *numberTracker) error {
	scenarioStart := time.Now()
	scenarioStatus := http.StatusOK
	defer func() {
		col.record(scenarioMethod, time.Since(scenarioStart), scenarioStatus)
	}()

	created, err := callCreateOrder(client, cfg, index, col)
	if err != nil {
		scenarioStatus = errorStatus(err)
		return err
	}
	if len(created) == 0 {
		scenarioStatus = http.StatusInternalServerError
		return errors.New("create response returned no orders")
	}
	for _, order := range created {
		if order.Number <= 0 || order.ID == "" {
			scenarioStatus = http.StatusInternalServerError
			return fmt.Errorf("create response returned incomplete order: %+v", order)
		}
		numbers.add(order.Number)
	}

	if cfg.mode != modeCreateDelete || !shouldDeleteScenario(index, cfg.deleteRate) {
		return nil
	}
	for _, order := range created {
		if err := callDeleteOrder(client, cfg, order.ID, col); err != nil {
			scenarioStatus = errorStatus(err)
			return err
		}
	}
	return nil
}

func orderPayload(cfg config, index int) map[string]any {
	items := make([]map[string]any, 0, cfg.items)
	for i := 0; i < cfg.items; i++ {
		items = append(items, map[string]any{
			"id_camiseta":   fmt.Sprintf("camiseta-%d", i+1),
			"tamanho":       "M",
			"tipo_camiseta": "Regular",
			"preco":         cfg.price,
		})
	}
	return map[string]any{
		"nome_destinario":  fmt.Sprintf("Cliente Carga %d", index),
		"telefone_contato": cfg.phonePrefix + strconv.Itoa(index),
		"cep":              "01001-000",
		"rua":              "Praça da Sé",
		"numero":           index%1000 + 1,
		"bairro":           "Sé",
		"forma_pagamento":  "PIX",
		"itens":            items,
	}
}

func callCreateOrder(client *resty.Client, cfg config, index int, col *collector) ([]apiOrder, error) {
	method := "CreateOrder"
	req := client.R().SetBody(orderPayload(cfg, index)).SetResult(&createResponse{})
	if cfg.mode == modePerItem {
		method = "CreatePerItemOrders"
		req.SetQueryParam("modo", "por_item")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	start := time.Now()
	resp, err := req.SetContext(ctx).Post(cfg.addr + ordersPath)
	if err != nil {
		col.record(method, time.Since(start), 0)
		return nil, err
	}
	col.record(method, time.Since(start), resp.StatusCode())
	if !resp.IsSuccess() {
		return nil, &statusError{method: method, status: resp.StatusCode(), body: resp.String()}
	}

	body, _ := resp.Result().(*createResponse)
	if body == nil {
		return nil, nil
	}
	if body.Order != nil {
		return []apiOrder{*body.Order}, nil
	}
	return body.Orders, nil
}

func callDeleteOrder(client *resty.Client, cfg config, id string, col *collector) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	start := time.Now()
	resp, err := client.R().SetContext(ctx).SetPathParam("id", id).Delete(cfg.addr + ordersPath + "/{id}")
	if err != nil {
		col.record("DeleteOrder", time.Since(start), 0)
		return err
	}
	col.record("DeleteOrder", time.Since(start), resp.StatusCode())
	if !resp.IsSuccess() {
		return &statusError{method: "DeleteOrder", status: resp.StatusCode(), body: resp.String()}
	}
	return nil
}

func errorStatus(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.status
	}
	return 0
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func statusLabel(status int) string {
	if status == 0 {
		return codeTransport
	}
	return strconv.Itoa(status)
}

func shouldDeleteScenario(index, deleteRate int) bool {
	if deleteRate <= 0 {
		return false
	}
	if deleteRate >= 100 {
		return true
	}
	return index%100 < deleteRate
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(result report, cfg config) {
	fmt.Println("Load test summary")
	fmt.Printf("mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.ErrorRate,
	)
	fmt.Printf("duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	fmt.Printf("scenario latency ms: avg=%.2f p50=%.2f p95=%.2f p99=%.2f\n",
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
	)
	fmt.Printf("order numbers: assigned=%d max=%d duplicates=%d\n",
		result.AssignedNumbers, result.MaxNumber, len(result.DuplicateNumbers))
	if len(result.DuplicateNumbers) > 0 {
		fmt.Printf("DUPLICATE order numbers: %v\n", result.DuplicateNumbers)
	}

	methodNames := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name == scenarioMethod {
			continue
		}
		methodNames = append(methodNames, name)
	}
	sort.Strings(methodNames)
	for _, name := range methodNames {
		stats := result.Methods[name]
		fmt.Printf(
			"%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			stats.Calls,
			stats.Success,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
		)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
