package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Значения label result для warehouse_operations_total.
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// Направления изменения остатка.
const (
	StockDecrement = "decrement"
	StockIncrement = "increment"
)

// WarehouseMetrics содержит метрики складских операций.
// Методы безопасно вызывать на nil-указателе: сервис может работать без метрик.
type WarehouseMetrics struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	unitOfWork        *prometheus.CounterVec
	stockAdjustments  *prometheus.CounterVec
	eventsEnqueued    prometheus.Counter
}

// NewWarehouseMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewWarehouseMetrics() *WarehouseMetrics {
	return NewWarehouseMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWarehouseMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewWarehouseMetricsWithRegisterer(registerer prometheus.Registerer) *WarehouseMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &WarehouseMetrics{
		operations: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warehouse_operations_total",
			Help: "Total number of warehouse operations grouped by operation and result.",
		}, []string{"operation", "result"})),
		operationDuration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warehouse_operation_duration_seconds",
			Help:    "Duration of warehouse operations in seconds.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"operation"})),
		unitOfWork: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warehouse_unit_of_work_total",
			Help: "Total number of unit of work scopes grouped by outcome.",
		}, []string{"outcome"})),
		stockAdjustments: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warehouse_stock_adjusted_units_total",
			Help: "Total number of stock units adjusted by orders grouped by direction.",
		}, []string{"direction"})),
		eventsEnqueued: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warehouse_outbox_events_enqueued_total",
			Help: "Total number of domain events written to the outbox.",
		})),
	}
}

func register[T prometheus.Collector](registerer prometheus.Registerer, collector T) T {
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(T)
			if !ok {
				panic(fmt.Sprintf("collector already registered with unexpected type %T", alreadyRegistered.ExistingCollector))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector: %v", err))
	}
	return collector
}

// RecordOperation учитывает результат и длительность операции.
func (m *WarehouseMetrics) RecordOperation(operation, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, result).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordUnitOfWork учитывает исход области unit of work.
func (m *WarehouseMetrics) RecordUnitOfWork(committed bool) {
	if m == nil {
		return
	}
	outcome := "rollback"
	if committed {
		outcome = "commit"
	}
	m.unitOfWork.WithLabelValues(outcome).Inc()
}

// RecordStockAdjustment учитывает изменение остатка на units единиц.
func (m *WarehouseMetrics) RecordStockAdjustment(direction string, units int) {
	if m == nil || units <= 0 {
		return
	}
	m.stockAdjustments.WithLabelValues(direction).Add(float64(units))
}

// RecordEventEnqueued увеличивает счётчик событий, записанных в outbox.
func (m *WarehouseMetrics) RecordEventEnqueued() {
	if m == nil {
		return
	}
	m.eventsEnqueued.Inc()
}
