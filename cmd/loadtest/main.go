package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
)

const (
	methodScenario      = "scenario"
	methodCreateProduct = "CreateProduct"
	methodCreateOrder   = "CreateOrder"
	methodCompleteOrder = "CompleteOrder"
	methodCancelOrder   = "CancelOrder"
	methodGetProduct    = "GetProduct"
)

var defaultPrice = decimal.NewFromInt(1)

type loadMode string

const (
	modeCreate         loadMode = "create"
	modeCreateComplete loadMode = "create-complete"
	modeCreateCancel   loadMode = "create-cancel"
)

var (
	errScenariosFailed = errors.New("load test has failed scenarios")
	errStockMismatch   = errors.New("stock does not match completed scenarios")
)

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	cancelRate  int
	products    int
	stock       int64
	nameTag     string
	outputPath  string
	verifyStock bool
}

func parseConfig(args []string) (config, error) {
	var cfg config
	var modeValue string

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.addr, "addr", "http://localhost:8080", "warehouse HTTP API base URL")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m, 15m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-complete | create-cancel")
	fs.IntVar(&cfg.cancelRate, "cancel-rate", 0, "cancel probability in percent for create-complete mode (0..100)")
	fs.IntVar(&cfg.products, "products", 10, "number of products seeded before the run")
	fs.Int64Var(&cfg.stock, "stock", 1_000_000, "initial quantity of every seeded product")
	fs.StringVar(&cfg.nameTag, "name-tag", "load", "seeded product name prefix")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	fs.BoolVar(&cfg.verifyStock, "verify-stock", true, "compare final product quantities with successful scenarios")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	if strings.TrimSpace(cfg.addr) == "" {
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
	if cfg.cancelRate < 0 || cfg.cancelRate > 100 {
		return cfg, errors.New("cancel-rate must be between 0 and 100")
	}
	if cfg.products <= 0 {
		return cfg, errors.New("products must be > 0")
	}
	if cfg.stock <= 0 {
		return cfg, errors.New("stock must be > 0")
	}
	if strings.TrimSpace(cfg.nameTag) == "" {
		return cfg, errors.New("name-tag is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCreate:
		return modeCreate, nil
	case modeCreateComplete:
		return modeCreateComplete, nil
	case modeCreateCancel:
		return modeCreateCancel, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, err := parseConfig(args)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	client := newHTTPWarehouseClient(cfg.addr, &http.Client{
		Transport: &http.Transport{MaxIdleConnsPerHost: cfg.concurrency},
	})

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	productIDs, err := seedProducts(ctx, client, cfg, runID, col)
	if err != nil {
		return fmt.Errorf("seed products: %w", err)
	}

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				_ = runScenario(ctx, client, cfg, id, productIDs, col)
			}
		}()
	}

	dispatchJobs(ctx, jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	if cfg.verifyStock {
		stock := verifyStock(ctx, client, cfg, col)
		result.Stock = &stock
	}
	printReport(stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}

	if result.Scenarios.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", errScenariosFailed, result.Scenarios.Failed, result.Scenarios.Calls)
	}
	if result.Stock != nil && len(result.Stock.Mismatched) > 0 {
		return fmt.Errorf("%w: %d products", errStockMismatch, len(result.Stock.Mismatched))
	}
	return nil
}

// seedProducts создаёт товары, на которые затем ссылаются заказы сценариев.
func seedProducts(ctx context.Context, client warehouseClient, cfg config, runID string, col *collector) ([]int64, error) {
	ids := make([]int64, 0, cfg.products)
	for i := 0; i < cfg.products; i++ {
		start := time.Now()
		reqCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
		id, status, err := client.CreateProduct(reqCtx, fmt.Sprintf("%s-%s-%d", cfg.nameTag, runID, i), cfg.stock, defaultPrice)
		cancel()
		col.record(methodCreateProduct, time.Since(start), status)
		if err != nil {
			return nil, err
		}
		if id <= 0 {
			return nil, errors.New("create product returned empty id")
		}
		col.seedStock(id, cfg.stock)
		ids = append(ids, id)
	}
	return ids, nil
}

func dispatchJobs(ctx context.Context, jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
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
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// runScenario создаёт заказ на один из засеянных товаров и, в зависимости
// от режима, завершает или отменяет его.
func runScenario(ctx context.Context, client warehouseClient, cfg config, index int, productIDs []int64, col *collector) error {
	scenarioStart := time.Now()
	scenarioStatus := http.StatusOK
	defer func() {
		col.record(methodScenario, time.Since(scenarioStart), scenarioStatus)
	}()

	if len(productIDs) == 0 {
		scenarioStatus = 0
		return errors.New("no seeded products")
	}
	productID := productIDs[index%len(productIDs)]

	orderID, status, err := timed(ctx, cfg.timeout, col, methodCreateOrder, func(ctx context.Context) (int64, int, error) {
		return client.CreateOrder(ctx, []int64{productID})
	})
	col.adjustStock(productID, -1, status)
	if err != nil {
		scenarioStatus = status
		return err
	}
	if orderID <= 0 {
		scenarioStatus = http.StatusInternalServerError
		return errors.New("create order returned empty order id")
	}

	var (
		method string
		call   func(context.Context, int64) (int, error)
		delta  int64
	)
	switch {
	case cfg.mode == modeCreate:
		return nil
	case cfg.mode == modeCreateCancel || shouldCancelScenario(index, cfg.cancelRate):
		method, call, delta = methodCancelOrder, client.CancelOrder, 1
	default:
		method, call = methodCompleteOrder, client.CompleteOrder
	}

	_, status, err = timed(ctx, cfg.timeout, col, method, func(ctx context.Context) (int64, int, error) {
		status, err := call(ctx, orderID)
		return 0, status, err
	})
	col.adjustStock(productID, delta, status)
	if err != nil {
		scenarioStatus = status
		return err
	}
	return nil
}

func timed(ctx context.Context, timeout time.Duration, col *collector, method string, fn func(context.Context) (int64, int, error)) (int64, int, error) {
	start := time.Now()
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	id, status, err := fn(reqCtx)
	if err != nil && isSuccess(status) {
		// Ответ 2xx, но тело не разобрано.
		status = http.StatusBadGateway
	}
	col.record(method, time.Since(start), status)
	return id, status, err
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}
