package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
)

// Store хранит общее in-memory состояние склада, на которое опираются репозитории.
// Товары и заказы хранятся по указателю: Get возвращает тот же объект, что был передан в Add.
type Store struct {
	mu            sync.RWMutex
	products      map[int64]*domain.Product
	orders        map[int64]*domain.Order
	outbox        map[string]*outboxRecord
	nextProductID int64
	nextOrderID   int64
	outboxSeq     uint64
}

// NewStore создаёт пустое хранилище для локальной разработки и тестов.
func NewStore() *Store {
	return &Store{
		products:      make(map[int64]*domain.Product),
		orders:        make(map[int64]*domain.Order),
		outbox:        make(map[string]*outboxRecord),
		nextProductID: 1,
		nextOrderID:   1,
	}
}

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	seq        uint64
	status     string
	attemptCnt int
	createdAt  time.Time
	updatedAt  time.Time
}

// writeHook вызывается репозиторием перед изменением store, до захвата блокировки.
type writeHook func()

func (h writeHook) fire() {
	if h != nil {
		h()
	}
}

// snapshot фиксирует состояние перед первой записью в области unit of work.
// Счётчики ID не откатываются, как и sequence в PostgreSQL.
type snapshot struct {
	productRefs   map[int64]*domain.Product
	productValues map[int64]domain.Product
	orderRefs     map[int64]*domain.Order
	orderValues   map[int64]domain.Order
	outbox        map[string]outboxRecord
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{
		productRefs:   make(map[int64]*domain.Product, len(s.products)),
		productValues: make(map[int64]domain.Product, len(s.products)),
		orderRefs:     make(map[int64]*domain.Order, len(s.orders)),
		orderValues:   make(map[int64]domain.Order, len(s.orders)),
		outbox:        make(map[string]outboxRecord, len(s.outbox)),
	}
	for id, p := range s.products {
		snap.productRefs[id] = p
		snap.productValues[id] = *p
	}
	for id, o := range s.orders {
		value := *o
		value.Products = append([]*domain.Product(nil), o.Products...)
		snap.orderRefs[id] = o
		snap.orderValues[id] = value
	}
	for id, rec := range s.outbox {
		snap.outbox[id] = *rec
	}
	return snap
}

// restore возвращает состояние из снимка. Значения пишутся в те же указатели,
// поэтому внешние ссылки на товары тоже видят откат.
func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.products = make(map[int64]*domain.Product, len(snap.productRefs))
	for id, p := range snap.productRefs {
		*p = snap.productValues[id]
		s.products[id] = p
	}
	s.orders = make(map[int64]*domain.Order, len(snap.orderRefs))
	for id, o := range snap.orderRefs {
		*o = snap.orderValues[id]
		s.orders[id] = o
	}
	s.outbox = make(map[string]*outboxRecord, len(snap.outbox))
	for id, rec := range snap.outbox {
		record := rec
		s.outbox[id] = &record
	}
}
