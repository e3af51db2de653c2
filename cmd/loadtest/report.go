package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// statusNoResponse помечает вызовы, не получившие HTTP-ответа.
const statusNoResponse = "no_response"

type latencyMs struct {
	Min  float64 `json:"min"`
	Mean float64 `json:"mean"`
	P50  float64 `json:"p50"`
	P95  float64 `json:"p95"`
	P99  float64 `json:"p99"`
	Max  float64 `json:"max"`
}

type callReport struct {
	Calls     int64            `json:"calls"`
	OK        int64            `json:"ok"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Statuses  map[string]int64 `json:"statuses"`
	Latency   latencyMs        `json:"latency_ms"`
}

// stockDiff фиксирует товар, чей остаток после прогона не совпал с ожидаемым.
// Actual = -1, если остаток прочитать не удалось.
type stockDiff struct {
	ProductID int64 `json:"product_id"`
	Expected  int64 `json:"expected"`
	Actual    int64 `json:"actual"`
}

type stockReport struct {
	Checked    int         `json:"checked"`
	Skipped    int         `json:"skipped"`
	Mismatched []stockDiff `json:"mismatched,omitempty"`
}

type report struct {
	StartedAt       time.Time             `json:"started_at"`
	DurationSeconds float64               `json:"duration_seconds"`
	Scenarios       callReport            `json:"scenarios"`
	ScenariosPerSec float64               `json:"scenarios_per_second"`
	Calls           map[string]callReport `json:"calls"`
	Stock           *stockReport          `json:"stock,omitempty"`
}

type callStats struct {
	ok, failed int64
	statuses   map[string]int64
	latencies  []float64
}

// collector копит результаты вызовов и ожидаемые остатки засеянных товаров.
type collector struct {
	mu    sync.Mutex
	calls map[string]*callStats
	// expected хранит остаток, который должен получиться при успешных вызовах.
	expected map[int64]int64
	// uncertain отмечает товары, по которым вызов завершился без ответа:
	// сервер мог применить изменение, а мог и нет.
	uncertain map[int64]bool
}

func newCollector() *collector {
	return &collector{
		calls:     make(map[string]*callStats),
		expected:  make(map[int64]int64),
		uncertain: make(map[int64]bool),
	}
}

// record учитывает один вызов. status == 0 означает, что ответа не было.
func (c *collector) record(method string, latency time.Duration, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.calls[method]
	if stats == nil {
		stats = &callStats{statuses: make(map[string]int64)}
		c.calls[method] = stats
	}
	if isSuccess(status) {
		stats.ok++
	} else {
		stats.failed++
	}
	stats.statuses[statusLabel(status)]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000)
}

func (c *collector) seedStock(productID, quantity int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expected[productID] = quantity
}

// adjustStock применяет результат вызова к ожидаемому остатку. Успешный вызов
// сдвигает остаток на delta. Вызов без ответа или с ответом шлюза делает
// товар непроверяемым.
func (c *collector) adjustStock(productID, delta int64, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case isSuccess(status):
		c.expected[productID] += delta
	case status == 0, status == http.StatusBadGateway, status == http.StatusGatewayTimeout:
		c.uncertain[productID] = true
	}
}

func (c *collector) expectedStock() (map[int64]int64, map[int64]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.expected), maps.Clone(c.uncertain)
}

func (c *collector) snapshot(method string) (callReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.calls[method]
	if !ok {
		return callReport{}, false
	}
	return stats.report(), true
}

func (s *callStats) report() callReport {
	calls := s.ok + s.failed
	return callReport{
		Calls:     calls,
		OK:        s.ok,
		Failed:    s.failed,
		ErrorRate: ratio(s.failed, calls),
		Statuses:  maps.Clone(s.statuses),
		Latency:   summarize(s.latencies),
	}
}

func (c *collector) buildReport(startedAt time.Time, elapsed time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: elapsed.Seconds(),
		Calls:           make(map[string]callReport, len(c.calls)),
	}
	for method, stats := range c.calls {
		if method == methodScenario {
			result.Scenarios = stats.report()
			continue
		}
		result.Calls[method] = stats.report()
	}
	if elapsed > 0 {
		result.ScenariosPerSec = float64(result.Scenarios.Calls) / elapsed.Seconds()
	}
	return result
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func statusLabel(status int) string {
	if status == 0 {
		return statusNoResponse
	}
	return strconv.Itoa(status)
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	switch {
	case cleanPath == "." || cleanPath == string(filepath.Separator):
		return errors.New("output path must point to a file")
	case cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)):
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- путь задаётся явным флагом -output.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(w io.Writer, result report, cfg config) {
	s := result.Scenarios
	fmt.Fprintf(w, "warehouse load test: mode=%s run=%s\n", cfg.mode, runTarget(cfg))
	fmt.Fprintf(w, "scenarios: total=%d ok=%d failed=%d error_rate=%.4f rate=%.2f/s duration=%.2fs\n",
		s.Calls, s.OK, s.Failed, s.ErrorRate, result.ScenariosPerSec, result.DurationSeconds)
	fmt.Fprintf(w, "scenario latency ms: %s\n", s.Latency)

	for _, method := range slices.Sorted(maps.Keys(result.Calls)) {
		call := result.Calls[method]
		fmt.Fprintf(w, "  %-14s calls=%d failed=%d statuses=%v p95=%.2fms\n",
			method, call.Calls, call.Failed, call.Statuses, call.Latency.P95)
	}

	if result.Stock == nil {
		return
	}
	fmt.Fprintf(w, "stock: checked=%d skipped=%d mismatched=%d\n",
		result.Stock.Checked, result.Stock.Skipped, len(result.Stock.Mismatched))
	for _, diff := range result.Stock.Mismatched {
		fmt.Fprintf(w, "  product %d: expected=%d actual=%d\n", diff.ProductID, diff.Expected, diff.Actual)
	}
}

func (l latencyMs) String() string {
	return fmt.Sprintf("min=%.2f mean=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f", l.Min, l.Mean, l.P50, l.P95, l.P99, l.Max)
}

func runTarget(cfg config) string {
	switch {
	case cfg.duration <= 0:
		return fmt.Sprintf("count:%d", cfg.total)
	case cfg.totalSet:
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	default:
		return fmt.Sprintf("duration:%s", cfg.duration)
	}
}

func summarize(values []float64) latencyMs {
	if len(values) == 0 {
		return latencyMs{}
	}

	sorted := slices.Sorted(slices.Values(values))
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return latencyMs{
		Min:  sorted[0],
		Mean: sum / float64(len(sorted)),
		P50:  percentile(sorted, 50),
		P95:  percentile(sorted, 95),
		P99:  percentile(sorted, 99),
		Max:  sorted[len(sorted)-1],
	}
}

// percentile интерполирует между соседними рангами отсортированной выборки.
func percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo, hi := int(math.Floor(rank)), int(math.Ceil(rank))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

func ratio(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total)
}
