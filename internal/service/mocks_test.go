package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fjod/farmstand/internal/cache"
	"github.com/fjod/farmstand/internal/domain"
	"github.com/fjod/farmstand/internal/gateway"
	"github.com/fjod/farmstand/internal/repository"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory stand-in for the postgres repository. It honours
// the same version and status guards so service logic can be tested without
// a database.
type memStore struct {
	m        sync.Mutex
	products map[int64]*domain.Product
	carts    map[string]*domain.Cart
	orders   map[int64]*domain.Order
	reviews  []*domain.Review
	events   []string
	nextID   int64
	err      error

	// beforeUpdate runs inside UpdateOrder before the status guard; tests
	// use it to simulate a concurrent writer.
	beforeUpdate func(o *domain.Order)
	updateCalls  int

	// afterGetCart runs once after GetCart has copied the stored cart.
	afterGetCart func()
}

func newMemStore() *memStore {
	return &memStore{
		products: map[int64]*domain.Product{},
		carts:    map[string]*domain.Cart{},
		orders:   map[int64]*domain.Order{},
	}
}

func (s *memStore) addProduct(id int64, name, price string, stock int) *domain.Product {
	p := &domain.Product{ID: id, Name: name, Price: decimal.RequireFromString(price), Stock: stock, Active: true}
	s.products[id] = p
	return p
}

func (s *memStore) stock(id int64) int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.products[id].Stock
}

func (s *memStore) putOrder(o *domain.Order) *domain.Order {
	s.m.Lock()
	defer s.m.Unlock()
	s.nextID++
	o.ID = s.nextID
	s.orders[o.ID] = o.Clone()
	return o
}

func (s *memStore) order(id int64) *domain.Order {
	s.m.Lock()
	defer s.m.Unlock()
	return s.orders[id].Clone()
}

func (s *memStore) setStatus(id int64, status domain.OrderStatus) {
	s.orders[id].Status = status
}

func (s *memStore) GetCart(_ context.Context, sessionID string) (*domain.Cart, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.carts[sessionID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	cp := *c
	cp.Items = append([]domain.CartItem(nil), c.Items...)
	if hook := s.afterGetCart; hook != nil {
		s.afterGetCart = nil
		s.m.Unlock()
		hook()
		s.m.Lock()
	}
	return &cp, nil
}

func (s *memStore) mutateCart(sessionID string, expectedVersion int64, fn func(c *domain.Cart) error) error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.err != nil {
		return s.err
	}
	c, ok := s.carts[sessionID]
	if !ok {
		if expectedVersion != 0 {
			return domain.ErrCartVersionConflict
		}
		c = domain.NewEmptyCart(sessionID)
		s.carts[sessionID] = c
	}
	if expectedVersion != 0 && c.Version != expectedVersion {
		return domain.ErrCartVersionConflict
	}
	if err := fn(c); err != nil {
		return err
	}
	c.Version++
	return nil
}

func (s *memStore) AddItem(_ context.Context, sessionID string, productID int64, quantity int, expectedVersion int64) error {
	return s.mutateCart(sessionID, expectedVersion, func(c *domain.Cart) error {
		return c.AddItem(productID, quantity, time.Now())
	})
}

func (s *memStore) SetItemQuantity(_ context.Context, sessionID string, productID int64, quantity int, expectedVersion int64) error {
	return s.mutateCart(sessionID, expectedVersion, func(c *domain.Cart) error {
		c.SetQuantity(productID, quantity, time.Now())
		return nil
	})
}

func (s *memStore) RemoveItem(_ context.Context, sessionID string, productID int64, expectedVersion int64) error {
	return s.mutateCart(sessionID, expectedVersion, func(c *domain.Cart) error {
		c.RemoveItem(productID)
		return nil
	})
}

func (s *memStore) ClearCart(_ context.Context, sessionID string, expectedVersion int64) error {
	return s.mutateCart(sessionID, expectedVersion, func(c *domain.Cart) error {
		c.Items = nil
		return nil
	})
}

func (s *memStore) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.m.Lock()
	defer s.m.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) GetProducts(_ context.Context, ids []int64) (map[int64]*domain.Product, error) {
	s.m.Lock()
	defer s.m.Unlock()
	out := map[int64]*domain.Product{}
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (s *memStore) ListProducts(context.Context) ([]*domain.Product, error) {
	s.m.Lock()
	defer s.m.Unlock()
	var out []*domain.Product
	for _, p := range s.products {
		if p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) PlaceOrder(_ context.Context, items []domain.CartItem, build repository.OrderBuildFunc) (*domain.Order, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	locked := map[int64]*domain.Product{}
	for _, it := range items {
		if p, ok := s.products[it.ProductID]; ok {
			cp := *p
			locked[it.ProductID] = &cp
		}
	}
	order, err := build(locked)
	if err != nil {
		return nil, err
	}
	for _, it := range order.Items {
		s.products[it.ProductID].Stock -= it.Quantity
	}
	s.nextID++
	order.ID = s.nextID
	s.orders[order.ID] = order.Clone()
	s.events = append(s.events, domain.EventOrderCreated)
	return order, nil
}

func (s *memStore) GetOrder(_ context.Context, id int64) (*domain.Order, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (s *memStore) GetOrderByGatewayOrderID(_ context.Context, gatewayOrderID string) (*domain.Order, error) {
	s.m.Lock()
	defer s.m.Unlock()
	for _, o := range s.orders {
		if gatewayOrderID != "" && o.GatewayOrderID == gatewayOrderID {
			return o.Clone(), nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (s *memStore) ListOrdersByUserID(_ context.Context, userID string) ([]*domain.Order, error) {
	s.m.Lock()
	defer s.m.Unlock()
	out := []*domain.Order{}
	for _, o := range s.orders {
		if o.OwnedBy(userID) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *memStore) ListOrders(_ context.Context, status domain.OrderStatus, limit int) ([]*domain.Order, error) {
	s.m.Lock()
	defer s.m.Unlock()
	out := []*domain.Order{}
	for _, o := range s.orders {
		if status == "" || o.Status == status {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) SetGatewayOrder(_ context.Context, orderID int64, gatewayOrderID string) error {
	s.m.Lock()
	defer s.m.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.Status != domain.OrderStatusPendingPayment || o.IsPaid() {
		return repository.ErrStaleOrder
	}
	o.GatewayOrderID = gatewayOrderID
	return nil
}

func (s *memStore) UpdateOrder(_ context.Context, order *domain.Order, expected domain.OrderStatus, opts repository.UpdateOptions) error {
	s.m.Lock()
	defer s.m.Unlock()
	s.updateCalls++
	stored, ok := s.orders[order.ID]
	if !ok {
		return repository.ErrStaleOrder
	}
	if s.beforeUpdate != nil {
		hook := s.beforeUpdate
		s.beforeUpdate = nil
		hook(stored)
	}
	if stored.Status != expected {
		return repository.ErrStaleOrder
	}
	if stored.Payment != nil {
		order.Payment = stored.Payment
	}
	s.orders[order.ID] = order.Clone()
	if opts.RestoreStock {
		for _, it := range order.Items {
			s.products[it.ProductID].Stock += it.Quantity
		}
	}
	if opts.ClearCart {
		if c, ok := s.carts[order.SessionID]; ok {
			c.Items = nil
			c.Version++
		}
	}
	if opts.EventType != "" {
		s.events = append(s.events, opts.EventType)
	}
	return nil
}

func (s *memStore) delivered(userID string, productID, orderID int64) bool {
	o, ok := s.orders[orderID]
	if !ok || !o.OwnedBy(userID) || o.Status != domain.OrderStatusDelivered {
		return false
	}
	for _, it := range o.Items {
		if it.ProductID == productID {
			return true
		}
	}
	return false
}

func (s *memStore) reviewed(userID string, productID, orderID int64) bool {
	for _, r := range s.reviews {
		if r.UserID == userID && r.ProductID == productID && r.OrderID != nil && *r.OrderID == orderID {
			return true
		}
	}
	return false
}

func (s *memStore) EligibleOrderIDs(_ context.Context, userID string, productID int64) ([]int64, error) {
	s.m.Lock()
	defer s.m.Unlock()
	ids := []int64{}
	for id := range s.orders {
		if s.delivered(userID, productID, id) && !s.reviewed(userID, productID, id) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *memStore) CreateVerifiedReview(_ context.Context, review *domain.Review) error {
	s.m.Lock()
	defer s.m.Unlock()
	if review.OrderID == nil || !s.delivered(review.UserID, review.ProductID, *review.OrderID) ||
		s.reviewed(review.UserID, review.ProductID, *review.OrderID) {
		return domain.ErrNotEligible
	}
	s.nextID++
	review.ID = s.nextID
	review.Verified = true
	review.CreatedAt = time.Now()
	cp := *review
	s.reviews = append(s.reviews, &cp)
	return nil
}

func (s *memStore) CreateReview(_ context.Context, review *domain.Review) error {
	s.m.Lock()
	defer s.m.Unlock()
	if review.OrderID != nil && s.reviewed(review.UserID, review.ProductID, *review.OrderID) {
		return repository.ErrDuplicateReview
	}
	s.nextID++
	review.ID = s.nextID
	review.Verified = false
	review.CreatedAt = time.Now()
	cp := *review
	s.reviews = append(s.reviews, &cp)
	return nil
}

func (s *memStore) ListReviews(_ context.Context, productID int64, includeHidden bool) ([]*domain.Review, error) {
	s.m.Lock()
	defer s.m.Unlock()
	out := []*domain.Review{}
	for _, r := range s.reviews {
		if r.ProductID == productID && (includeHidden || !r.Hidden) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) RatingSummary(_ context.Context, productID int64) (*domain.RatingSummary, error) {
	s.m.Lock()
	defer s.m.Unlock()
	sum := &domain.RatingSummary{ProductID: productID}
	total := 0
	for _, r := range s.reviews {
		if r.ProductID == productID && !r.Hidden {
			sum.TotalReviews++
			total += r.Rating
		}
	}
	if sum.TotalReviews > 0 {
		sum.AverageRating = decimal.NewFromInt(int64(total)).
			DivRound(decimal.NewFromInt(int64(sum.TotalReviews)), 2)
	}
	return sum, nil
}

func (s *memStore) SetReviewHidden(_ context.Context, id int64, hidden bool) error {
	s.m.Lock()
	defer s.m.Unlock()
	for _, r := range s.reviews {
		if r.ID == id {
			r.Hidden = hidden
			return nil
		}
	}
	return domain.ErrReviewNotFound
}

type mockCache struct {
	m       sync.Mutex
	carts   map[string]*domain.Cart
	gens    map[string]int64
	err     error
	deletes int
}

func newMockCache() *mockCache {
	return &mockCache{carts: map[string]*domain.Cart{}, gens: map[string]int64{}}
}

func (m *mockCache) Get(_ context.Context, sessionID string) (*domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.carts[sessionID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return c, nil
}

func (m *mockCache) Generation(_ context.Context, sessionID string) (int64, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	return m.gens[sessionID], nil
}

func (m *mockCache) Set(_ context.Context, sessionID string, cart *domain.Cart, generation int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.gens[sessionID] != generation {
		return cache.ErrStaleGeneration
	}
	m.carts[sessionID] = cart
	return nil
}

func (m *mockCache) Delete(_ context.Context, sessionID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.deletes++
	if m.err != nil {
		return m.err
	}
	m.gens[sessionID]++
	delete(m.carts, sessionID)
	return nil
}

func (m *mockCache) cached(sessionID string) bool {
	m.m.Lock()
	defer m.m.Unlock()
	_, ok := m.carts[sessionID]
	return ok
}

type mockGateway struct {
	m     sync.Mutex
	err   error
	calls []gateway.CreateOrderRequest
	seq   int
}

func (g *mockGateway) CreateOrder(_ context.Context, req gateway.CreateOrderRequest) (*gateway.Order, error) {
	g.m.Lock()
	defer g.m.Unlock()
	g.calls = append(g.calls, req)
	if g.err != nil {
		return nil, g.err
	}
	g.seq++
	return &gateway.Order{
		ID:       "gw_order_" + string(rune('a'+g.seq-1)),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}

func (g *mockGateway) KeyID() string {
	return "key_test"
}

type recordingInvalidator struct {
	m        sync.Mutex
	sessions []string
}

func (r *recordingInvalidator) Invalidate(sessionID string) {
	r.m.Lock()
	defer r.m.Unlock()
	r.sessions = append(r.sessions, sessionID)
}

func strPtr(s string) *string {
	return &s
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
