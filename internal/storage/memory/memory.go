package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/antonminaichev/agroconnect/internal/storage"
	"github.com/antonminaichev/agroconnect/internal/types/crop"
	"github.com/antonminaichev/agroconnect/internal/types/order"
	"github.com/antonminaichev/agroconnect/internal/types/user"
	"github.com/shopspring/decimal"
)

var _ storage.Storage = (*Store)(nil)

type state struct {
	nextUserID    int64
	nextCropID    int64
	nextOrderID   int64
	nextItemID    int64
	nextHistoryID int64
	nextReviewID  int64

	users   map[int64]user.User
	logins  map[string]int64
	crops   map[int64]crop.Crop
	orders  map[int64]order.Order
	items   map[int64][]order.Item
	history map[int64][]order.StatusHistory
	reviews map[int64][]crop.Review
}

func newState() *state {
	return &state{
		nextUserID:    1,
		nextCropID:    1,
		nextOrderID:   1,
		nextItemID:    1,
		nextHistoryID: 1,
		nextReviewID:  1,
		users:         make(map[int64]user.User),
		logins:        make(map[string]int64),
		crops:         make(map[int64]crop.Crop),
		orders:        make(map[int64]order.Order),
		items:         make(map[int64][]order.Item),
		history:       make(map[int64][]order.StatusHistory),
		reviews:       make(map[int64][]crop.Review),
	}
}

type lockKey struct {
	table string
	id    int64
}

func cropKey(id int64) lockKey  { return lockKey{"crops", id} }
func orderKey(id int64) lockKey { return lockKey{"orders", id} }

// rowLocks hands out one mutex per row. Entries are never removed.
type rowLocks struct {
	mu    sync.Mutex
	locks map[lockKey]*sync.Mutex
}

func (l *rowLocks) get(k lockKey) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[lockKey]*sync.Mutex)
	}
	m, ok := l.locks[k]
	if !ok {
		m = &sync.Mutex{}
		l.locks[k] = m
	}
	return m
}

// tx buffers writes until commit and holds the row locks it has taken.
// A tx belongs to one goroutine.
type tx struct {
	held         map[lockKey]*sync.Mutex
	crops        map[int64]crop.Crop
	deletedCrops map[int64]bool
	orders       map[int64]order.Order
	items        map[int64][]order.Item
	history      []order.StatusHistory
}

func newTx() *tx {
	return &tx{
		held:         make(map[lockKey]*sync.Mutex),
		crops:        make(map[int64]crop.Crop),
		deletedCrops: make(map[int64]bool),
		orders:       make(map[int64]order.Order),
		items:        make(map[int64][]order.Item),
	}
}

func (t *tx) lock(l *rowLocks, k lockKey) {
	if _, ok := t.held[k]; ok {
		return
	}
	m := l.get(k)
	m.Lock()
	t.held[k] = m
}

func (t *tx) release() {
	for _, m := range t.held {
		m.Unlock()
	}
}

type txKey struct{}

func txFrom(ctx context.Context) *tx {
	t, _ := ctx.Value(txKey{}).(*tx)
	return t
}

// Store is an in-memory storage backend. Transactions lock single crop and
// order rows like SELECT ... FOR UPDATE and keep their writes private until
// commit. mu only guards the maps for the duration of one read or one commit.
type Store struct {
	mu   sync.RWMutex
	st   *state
	rows rowLocks
}

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}
	t := newTx()
	defer t.release()
	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		return err
	}
	s.commit(t)
	return nil
}

func (s *Store) commit(t *tx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range t.crops {
		s.st.crops[id] = c
	}
	for id := range t.deletedCrops {
		delete(s.st.crops, id)
		delete(s.st.reviews, id)
	}
	for id, o := range t.orders {
		s.st.orders[id] = o
	}
	for id, items := range t.items {
		s.st.items[id] = append(s.st.items[id], items...)
	}
	for _, h := range t.history {
		s.st.history[h.OrderID] = append(s.st.history[h.OrderID], h)
	}
}

// inTx runs fn in the transaction carried by ctx or in a new one.
func (s *Store) inTx(ctx context.Context, fn func(t *tx) error) error {
	if t := txFrom(ctx); t != nil {
		return fn(t)
	}
	return s.WithTx(ctx, func(ctx context.Context) error { return fn(txFrom(ctx)) })
}

func (s *Store) alloc(counter *int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := *counter
	*counter++
	return id
}

// The *Locked readers see the committed state through t's overlay. Callers
// hold s.mu.

func (s *Store) cropLocked(t *tx, id int64) (crop.Crop, bool) {
	if t != nil {
		if t.deletedCrops[id] {
			return crop.Crop{}, false
		}
		if c, ok := t.crops[id]; ok {
			return c, true
		}
	}
	c, ok := s.st.crops[id]
	return c, ok
}

func (s *Store) orderLocked(t *tx, id int64) (order.Order, bool) {
	if t != nil {
		if o, ok := t.orders[id]; ok {
			return o, true
		}
	}
	o, ok := s.st.orders[id]
	return o, ok
}

func (s *Store) itemsLocked(t *tx, orderID int64) []order.Item {
	items := slices.Clone(s.st.items[orderID])
	if t != nil {
		items = append(items, t.items[orderID]...)
	}
	for i := range items {
		c, _ := s.cropLocked(t, items[i].CropID)
		items[i].CropName = c.Name
		items[i].FarmerID = c.FarmerID
	}
	if items == nil {
		items = []order.Item{}
	}
	return items
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) Create(ctx context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.logins[u.Login]; ok {
		return storage.ErrUserExists
	}
	u.ID = s.st.nextUserID
	s.st.nextUserID++
	s.st.users[u.ID] = *u
	s.st.logins[u.Login] = u.ID
	return nil
}

func (s *Store) FindByLogin(ctx context.Context, login string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.st.logins[login]
	if !ok {
		return nil, storage.ErrNotFound
	}
	u := s.st.users[id]
	return &u, nil
}

func (s *Store) CreateCrop(ctx context.Context, c *crop.Crop) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.st.nextCropID
	s.st.nextCropID++
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.st.crops[c.ID] = *c
	return nil
}

func (s *Store) GetCrop(ctx context.Context, id int64) (*crop.Crop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cropLocked(txFrom(ctx), id)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

func (s *Store) ListCrops(ctx context.Context, f crop.Filter) ([]crop.Crop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crop.Crop, 0)
	for _, c := range s.st.crops {
		if !containsFold(c.Name, f.Search) {
			continue
		}
		if f.Category != "" && !strings.EqualFold(c.Category, f.Category) {
			continue
		}
		if f.MinPrice.Valid && c.PricePerKg.LessThan(f.MinPrice.Decimal) {
			continue
		}
		if f.MaxPrice.Valid && c.PricePerKg.GreaterThan(f.MaxPrice.Decimal) {
			continue
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b crop.Crop) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (s *Store) ListCropsByFarmer(ctx context.Context, farmerID int64) ([]crop.Crop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crop.Crop, 0)
	for _, c := range s.st.crops {
		if c.FarmerID == farmerID {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b crop.Crop) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// LockCrops locks the rows in ascending id order. Outside a transaction it
// only reads them.
func (s *Store) LockCrops(ctx context.Context, ids []int64) (map[int64]*crop.Crop, error) {
	distinct := slices.Clone(ids)
	slices.Sort(distinct)
	distinct = slices.Compact(distinct)

	t := txFrom(ctx)
	if t != nil {
		for _, id := range distinct {
			t.lock(&s.rows, cropKey(id))
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]*crop.Crop, len(distinct))
	for _, id := range distinct {
		c, ok := s.cropLocked(t, id)
		if !ok {
			return nil, storage.ErrNotFound
		}
		out[id] = &c
	}
	return out, nil
}

func (s *Store) mutateCrop(ctx context.Context, id int64, fn func(c *crop.Crop) error) error {
	return s.inTx(ctx, func(t *tx) error {
		t.lock(&s.rows, cropKey(id))
		s.mu.RLock()
		c, ok := s.cropLocked(t, id)
		s.mu.RUnlock()
		if !ok {
			return storage.ErrNotFound
		}
		if err := fn(&c); err != nil {
			return err
		}
		t.crops[id] = c
		return nil
	})
}

func (s *Store) AdjustCropStock(ctx context.Context, cropID int64, delta int64) error {
	return s.mutateCrop(ctx, cropID, func(c *crop.Crop) error {
		if c.QuantityKg+delta < 0 {
			return storage.ErrNegativeStock
		}
		c.QuantityKg += delta
		return nil
	})
}

func (s *Store) UpdateCrop(ctx context.Context, upd *crop.Crop) error {
	return s.mutateCrop(ctx, upd.ID, func(c *crop.Crop) error {
		created, farmer := c.CreatedAt, c.FarmerID
		*c = *upd
		c.CreatedAt, c.FarmerID = created, farmer
		return nil
	})
}

func (s *Store) DeleteCrop(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(t *tx) error {
		t.lock(&s.rows, cropKey(id))
		s.mu.RLock()
		defer s.mu.RUnlock()
		if _, ok := s.cropLocked(t, id); !ok {
			return storage.ErrNotFound
		}
		for _, m := range []map[int64][]order.Item{s.st.items, t.items} {
			for _, items := range m {
				for _, it := range items {
					if it.CropID == id {
						return storage.ErrCropInUse
					}
				}
			}
		}
		delete(t.crops, id)
		t.deletedCrops[id] = true
		return nil
	})
}

func (s *Store) CreateReview(ctx context.Context, r *crop.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.st.reviews[r.CropID] {
		if existing.CustomerID == r.CustomerID {
			return storage.ErrReviewExists
		}
	}
	r.ID = s.st.nextReviewID
	s.st.nextReviewID++
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.Customer = s.st.users[r.CustomerID].Login
	s.st.reviews[r.CropID] = append(s.st.reviews[r.CropID], *r)
	return nil
}

func (s *Store) ListReviews(ctx context.Context, cropID int64) ([]crop.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.st.reviews[cropID])
	if out == nil {
		out = []crop.Review{}
	}
	slices.SortFunc(out, func(a, b crop.Review) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (s *Store) HasConfirmedPurchase(ctx context.Context, customerID, cropID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for orderID, items := range s.st.items {
		o := s.st.orders[orderID]
		if o.CustomerID != customerID || o.Status != order.StatusConfirmed {
			continue
		}
		for _, it := range items {
			if it.CropID == cropID {
				return true, nil
			}
		}
	}
	return false, nil
}

// CreateOrder inside a transaction stays invisible to other readers until
// commit.
func (s *Store) CreateOrder(ctx context.Context, o *order.Order) error {
	o.ID = s.alloc(&s.st.nextOrderID)
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	stored := *o
	stored.Items = nil
	return s.inTx(ctx, func(t *tx) error {
		t.lock(&s.rows, orderKey(o.ID))
		t.orders[o.ID] = stored
		return nil
	})
}

func (s *Store) CreateOrderItem(ctx context.Context, it *order.Item) error {
	return s.inTx(ctx, func(t *tx) error {
		s.mu.RLock()
		_, ok := s.orderLocked(t, it.OrderID)
		s.mu.RUnlock()
		if !ok {
			return storage.ErrNotFound
		}
		it.ID = s.alloc(&s.st.nextItemID)
		stored := *it
		stored.CropName, stored.FarmerID = "", 0
		t.items[it.OrderID] = append(t.items[it.OrderID], stored)
		return nil
	})
}

func (s *Store) mutateOrder(ctx context.Context, id int64, fn func(o *order.Order)) error {
	return s.inTx(ctx, func(t *tx) error {
		t.lock(&s.rows, orderKey(id))
		s.mu.RLock()
		o, ok := s.orderLocked(t, id)
		s.mu.RUnlock()
		if !ok {
			return storage.ErrNotFound
		}
		fn(&o)
		t.orders[id] = o
		return nil
	})
}

func (s *Store) UpdateOrderTotal(ctx context.Context, orderID int64, total decimal.Decimal) error {
	return s.mutateOrder(ctx, orderID, func(o *order.Order) { o.TotalAmount = total })
}

func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status order.OrderStatus) error {
	return s.mutateOrder(ctx, orderID, func(o *order.Order) { o.Status = status })
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orderLocked(txFrom(ctx), id)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &o, nil
}

// LockOrder holds the order row until the surrounding transaction ends.
func (s *Store) LockOrder(ctx context.Context, id int64) (*order.Order, error) {
	t := txFrom(ctx)
	if t != nil {
		t.lock(&s.rows, orderKey(id))
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orderLocked(t, id)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &o, nil
}

func (s *Store) FarmerOwnsOrder(ctx context.Context, orderID, farmerID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.itemsLocked(txFrom(ctx), orderID) {
		if it.FarmerID == farmerID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListOrderItems(ctx context.Context, orderID int64) ([]order.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.itemsLocked(txFrom(ctx), orderID), nil
}

func (s *Store) AppendStatusHistory(ctx context.Context, h *order.StatusHistory) error {
	h.ID = s.alloc(&s.st.nextHistoryID)
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	return s.inTx(ctx, func(t *tx) error {
		t.history = append(t.history, *h)
		return nil
	})
}

func (s *Store) ListStatusHistory(ctx context.Context, orderID int64) ([]order.StatusHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.st.history[orderID])
	if t := txFrom(ctx); t != nil {
		for _, h := range t.history {
			if h.OrderID == orderID {
				out = append(out, h)
			}
		}
	}
	if out == nil {
		out = []order.StatusHistory{}
	}
	return out, nil
}

func (s *Store) CountOrdersByCustomer(ctx context.Context, customerID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, o := range s.st.orders {
		if o.CustomerID == customerID {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListOrdersByCustomer(ctx context.Context, customerID int64, limit, offset int) ([]order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]order.Order, 0)
	for _, o := range s.st.orders {
		if o.CustomerID == customerID {
			o.Items = s.itemsLocked(nil, o.ID)
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b order.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return window(out, limit, offset), nil
}

func (s *Store) farmerRows(farmerID int64, f order.FarmerFilter) []order.FarmerOrderItem {
	rows := make([]order.FarmerOrderItem, 0)
	for orderID, items := range s.st.items {
		o := s.st.orders[orderID]
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		for _, it := range items {
			c := s.st.crops[it.CropID]
			if c.FarmerID != farmerID || !containsFold(c.Name, f.Search) {
				continue
			}
			rows = append(rows, order.FarmerOrderItem{
				OrderID:       o.ID,
				Customer:      s.st.users[o.CustomerID].Login,
				CropID:        c.ID,
				CropName:      c.Name,
				QuantityKg:    it.QuantityKg,
				PricePerKg:    it.PricePerKg,
				OrderStatus:   o.Status,
				PaymentMethod: o.PaymentMethod,
				PaymentStatus: o.PaymentStatus,
				CreatedAt:     o.CreatedAt,
			})
		}
	}
	return rows
}

func (s *Store) CountFarmerOrderItems(ctx context.Context, farmerID int64, f order.FarmerFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.farmerRows(farmerID, f)), nil
}

func (s *Store) ListFarmerOrderItems(ctx context.Context, farmerID int64, f order.FarmerFilter) ([]order.FarmerOrderItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.farmerRows(farmerID, f)
	slices.SortFunc(rows, func(a, b order.FarmerOrderItem) int { return cmp.Compare(b.OrderID, a.OrderID) })
	slices.SortStableFunc(rows, farmerRowCompare(f.Sort))
	return window(rows, f.Limit, f.Offset), nil
}

func (s *Store) FarmerStats(ctx context.Context, farmerID int64, since time.Time) (order.FarmerStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := order.FarmerStats{ConfirmedRevenue: decimal.Zero}
	for _, c := range s.st.crops {
		if c.FarmerID == farmerID {
			st.TotalCrops++
			st.TotalStockKg += c.QuantityKg
		}
	}
	for orderID, items := range s.st.items {
		o := s.st.orders[orderID]
		touched := false
		for _, it := range items {
			if s.st.crops[it.CropID].FarmerID != farmerID {
				continue
			}
			touched = true
			if o.Status == order.StatusConfirmed {
				st.ConfirmedRevenue = st.ConfirmedRevenue.Add(it.PricePerKg.Mul(decimal.NewFromInt(it.QuantityKg)))
			}
		}
		if !touched {
			continue
		}
		st.TotalOrders++
		switch o.Status {
		case order.StatusPending:
			st.PendingOrders++
		case order.StatusConfirmed:
			st.ConfirmedOrders++
		case order.StatusCancelled:
			st.CancelledOrders++
		}
		if !o.CreatedAt.Before(since) {
			st.RecentOrders++
		}
	}
	return st, nil
}

func (s *Store) CustomerStats(ctx context.Context, customerID int64, since time.Time) (order.CustomerStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := order.CustomerStats{TotalSpent: decimal.Zero}
	for _, o := range s.st.orders {
		if o.CustomerID != customerID {
			continue
		}
		st.TotalOrders++
		switch o.Status {
		case order.StatusPending:
			st.PendingOrders++
		case order.StatusConfirmed:
			st.ConfirmedOrders++
			st.TotalSpent = st.TotalSpent.Add(o.TotalAmount)
		case order.StatusCancelled:
			st.CancelledOrders++
		}
		if !o.CreatedAt.Before(since) {
			st.RecentOrders++
		}
	}
	return st, nil
}

func farmerRowCompare(key order.SortKey) func(a, b order.FarmerOrderItem) int {
	switch key {
	case order.SortOldest:
		return func(a, b order.FarmerOrderItem) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case order.SortQuantityDesc:
		return func(a, b order.FarmerOrderItem) int { return cmp.Compare(b.QuantityKg, a.QuantityKg) }
	case order.SortQuantityAsc:
		return func(a, b order.FarmerOrderItem) int { return cmp.Compare(a.QuantityKg, b.QuantityKg) }
	case order.SortPriceDesc:
		return func(a, b order.FarmerOrderItem) int { return b.PricePerKg.Cmp(a.PricePerKg) }
	case order.SortPriceAsc:
		return func(a, b order.FarmerOrderItem) int { return a.PricePerKg.Cmp(b.PricePerKg) }
	default:
		return func(a, b order.FarmerOrderItem) int { return b.CreatedAt.Compare(a.CreatedAt) }
	}
}

func window[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return rows[:0]
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func containsFold(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
