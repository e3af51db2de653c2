package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
	"github.com/vladislavdragonenkov/warehouse/internal/httpapi"
	"github.com/vladislavdragonenkov/warehouse/internal/service/warehouse"
	"github.com/vladislavdragonenkov/warehouse/internal/storage/memory"
	"github.com/vladislavdragonenkov/warehouse/internal/storage/postgres"
)

const envPostgresDSN = "WAREHOUSE_POSTGRES_DSN"

const usage = `usage: warehouse [-dsn DSN] <command> [flags]

commands:
  create-product  -name NAME -quantity N -price P
  change-product  -id ID -quantity N -price P
  get-product     -id ID
  list-products
  create-order    -products ID[,ID...]
  complete-order  -id ID
  cancel-order    -id ID
  get-order       -id ID
  list-orders
  demo            create two products, reprice one, place and cancel an order`

var errUsage = errors.New(usage)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.WarnLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Getenv, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			_, _ = fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		log.WithError(err).Fatal("command failed")
	}
}

// run выполняет одну команду внутри одной области unit of work.
func run(ctx context.Context, args []string, getenv func(string) string, stdout io.Writer) error {
	global := flag.NewFlagSet("warehouse", flag.ContinueOnError)
	global.SetOutput(io.Discard)
	dsn := global.String("dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+"); in-memory store when empty")
	if err := global.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if global.NArg() == 0 {
		return errUsage
	}
	command, cmdArgs := global.Arg(0), global.Args()[1:]

	resolvedDSN := strings.TrimSpace(*dsn)
	if resolvedDSN == "" {
		resolvedDSN = strings.TrimSpace(getenv(envPostgresDSN))
	}

	uow, closeFn, err := openUnitOfWork(ctx, resolvedDSN)
	if err != nil {
		return err
	}
	defer closeFn()

	facade := warehouse.NewFacade(uow, warehouse.WithLogger(log.WithField("component", "warehouse-cli")))
	return dispatch(ctx, facade, command, cmdArgs, json.NewEncoder(stdout))
}

func openUnitOfWork(ctx context.Context, dsn string) (domain.UnitOfWork, func(), error) {
	if dsn == "" {
		return memory.NewUnitOfWork(memory.NewStore()), func() {}, nil
	}

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres store: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("migrate postgres schema: %w", err)
	}
	return postgres.NewUnitOfWork(store, log.WithField("component", "warehouse-cli")), func() { _ = store.Close() }, nil
}

func dispatch(ctx context.Context, facade *warehouse.Facade, command string, args []string, out *json.Encoder) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	id := fs.Int64("id", 0, "product or order id")
	name := fs.String("name", "", "product name")
	quantity := fs.Int64("quantity", 0, "product quantity")
	var price decimal.Decimal
	fs.Func("price", "product price, e.g. 19.99", func(v string) error {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return err
		}
		price = d
		return nil
	})
	products := fs.String("products", "", "comma-separated product ids")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	switch command {
	case "create-product":
		if *name == "" {
			return fmt.Errorf("%w: -name is required", errUsage)
		}
		p, err := facade.CreateProduct(ctx, *name, *quantity, price)
		if err != nil {
			return err
		}
		return out.Encode(httpapi.NewProductResponse(p))
	case "change-product":
		if err := facade.ChangeProduct(ctx, *id, *quantity, price); err != nil {
			return err
		}
		return out.Encode(map[string]any{"changed": *id})
	case "get-product":
		p, err := facade.GetProduct(ctx, *id)
		if err != nil {
			return err
		}
		return out.Encode(httpapi.NewProductResponse(p))
	case "list-products":
		list, err := facade.ListProducts(ctx)
		if err != nil {
			return err
		}
		return out.Encode(productResponses(list))
	case "create-order":
		ids, err := parseIDs(*products)
		if err != nil {
			return err
		}
		o, err := facade.CreateOrder(ctx, ids)
		if err != nil {
			return err
		}
		return out.Encode(httpapi.NewOrderResponse(o))
	case "complete-order":
		if err := facade.CompleteOrder(ctx, *id); err != nil {
			return err
		}
		return out.Encode(map[string]any{"completed": *id})
	case "cancel-order":
		if err := facade.CancelOrder(ctx, *id); err != nil {
			return err
		}
		return out.Encode(map[string]any{"canceled": *id})
	case "get-order":
		o, err := facade.GetOrder(ctx, *id)
		if err != nil {
			return err
		}
		return out.Encode(httpapi.NewOrderResponse(o))
	case "list-orders":
		list, err := facade.ListOrders(ctx)
		if err != nil {
			return err
		}
		resp := make([]httpapi.OrderResponse, 0, len(list))
		for _, o := range list {
			resp = append(resp, httpapi.NewOrderResponse(o))
		}
		return out.Encode(resp)
	case "demo":
		return demo(ctx, facade, out)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

// demo наполняет склад и прогоняет заказ от создания до отмены в одной транзакции.
func demo(ctx context.Context, facade *warehouse.Facade, out *json.Encoder) error {
	var order *domain.Order
	err := facade.Do(ctx, func(ctx context.Context, svc *warehouse.Service) error {
		apple, err := svc.CreateProduct(ctx, "apple", 10, decimal.NewFromInt(100))
		if err != nil {
			return err
		}
		microsoft, err := svc.CreateProduct(ctx, "microsoft", 10, decimal.NewFromInt(200))
		if err != nil {
			return err
		}
		if err := svc.ChangeProduct(ctx, apple.ID, 666, decimal.RequireFromString("0.666")); err != nil {
			return err
		}

		order, err = svc.CreateOrder(ctx, []*domain.Product{apple, microsoft})
		if err != nil {
			return err
		}
		return svc.CancelOrder(ctx, order.ID)
	})
	if err != nil {
		return err
	}

	products, err := facade.ListProducts(ctx)
	if err != nil {
		return err
	}
	return out.Encode(map[string]any{"canceled_order": order.ID, "products": productResponses(products)})
}

// productResponses использует те же DTO, что и HTTP API, чтобы ключи JSON совпадали.
func productResponses(products []*domain.Product) []httpapi.ProductResponse {
	resp := make([]httpapi.ProductResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, httpapi.NewProductResponse(p))
	}
	return resp
}

func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad product id %q", errUsage, part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: -products is required", errUsage)
	}
	return ids, nil
}
