package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fjod/farmstand/internal/domain"
	"github.com/fjod/farmstand/internal/gateway"
	"github.com/fjod/farmstand/internal/service"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-jwt-secret")

type cartCall struct {
	SessionID string
	ProductID int64
	Quantity  int
	Version   int64
}

type mockCartService struct {
	view  *service.CartView
	err   error
	calls []cartCall
}

func (m *mockCartService) record(sid string, pid int64, qty int, ver int64) (*service.CartView, error) {
	m.calls = append(m.calls, cartCall{sid, pid, qty, ver})
	if m.err != nil {
		return nil, m.err
	}
	return m.view, nil
}

func (m *mockCartService) GetCart(_ context.Context, sid string) (*service.CartView, error) {
	return m.record(sid, 0, 0, 0)
}

func (m *mockCartService) AddItem(_ context.Context, sid string, pid int64, qty int, ver int64) (*service.CartView, error) {
	return m.record(sid, pid, qty, ver)
}

func (m *mockCartService) SetItemQuantity(_ context.Context, sid string, pid int64, qty int, ver int64) (*service.CartView, error) {
	return m.record(sid, pid, qty, ver)
}

func (m *mockCartService) RemoveItem(_ context.Context, sid string, pid int64, ver int64) (*service.CartView, error) {
	return m.record(sid, pid, 0, ver)
}

func (m *mockCartService) Clear(_ context.Context, sid string, ver int64) (*service.CartView, error) {
	return m.record(sid, 0, 0, ver)
}

type mockCheckoutService struct {
	order *domain.Order
	err   error
	req   service.CheckoutRequest
}

func (m *mockCheckoutService) BuildOrder(_ context.Context, req service.CheckoutRequest) (*domain.Order, error) {
	m.req = req
	return m.order, m.err
}

type mockPaymentService struct {
	intent     *service.PaymentIntent
	order      *domain.Order
	err        error
	initReq    service.InitializeRequest
	verifyReq  service.VerifyRequest
	verifyHits int
}

func (m *mockPaymentService) Initialize(_ context.Context, req service.InitializeRequest) (*service.PaymentIntent, error) {
	m.initReq = req
	return m.intent, m.err
}

func (m *mockPaymentService) Verify(_ context.Context, req service.VerifyRequest) (*domain.Order, error) {
	m.verifyHits++
	m.verifyReq = req
	return m.order, m.err
}

type mockSandbox struct {
	receipt *gateway.Receipt
	err     error
}

func (m *mockSandbox) Pay(string) (*gateway.Receipt, error) {
	return m.receipt, m.err
}

type mockOrderService struct {
	order   *domain.Order
	orders  []*domain.Order
	err     error
	actor   service.Actor
	id      int64
	reason  string
	action  domain.CancellationAction
	status  domain.OrderStatus
	limit   int
	invoked string
}

func (m *mockOrderService) GetOrder(_ context.Context, actor service.Actor, id int64) (*domain.Order, error) {
	m.invoked, m.actor, m.id = "GetOrder", actor, id
	return m.order, m.err
}

func (m *mockOrderService) ListMyOrders(_ context.Context, actor service.Actor) ([]*domain.Order, error) {
	m.invoked, m.actor = "ListMyOrders", actor
	return m.orders, m.err
}

func (m *mockOrderService) ListOrders(_ context.Context, status domain.OrderStatus, limit int) ([]*domain.Order, error) {
	m.invoked, m.status, m.limit = "ListOrders", status, limit
	return m.orders, m.err
}

func (m *mockOrderService) RequestCancellation(_ context.Context, actor service.Actor, id int64, reason string) (*domain.Order, error) {
	m.invoked, m.actor, m.id, m.reason = "RequestCancellation", actor, id, reason
	return m.order, m.err
}

func (m *mockOrderService) ProcessCancellation(_ context.Context, id int64, action domain.CancellationAction, resp string) (*domain.Order, error) {
	m.invoked, m.id, m.action, m.reason = "ProcessCancellation", id, action, resp
	return m.order, m.err
}

func (m *mockOrderService) AdvanceFulfillment(_ context.Context, id int64, next domain.OrderStatus) (*domain.Order, error) {
	m.invoked, m.id, m.status = "AdvanceFulfillment", id, next
	return m.order, m.err
}

type mockReviewService struct {
	eligibility *domain.ReviewEligibility
	review      *domain.Review
	reviews     []*domain.Review
	summary     *domain.RatingSummary
	err         error
	actor       service.Actor
	req         service.ReviewRequest
	userID      string
	hidden      *bool
}

func (m *mockReviewService) Eligibility(_ context.Context, actor service.Actor, _ int64) (*domain.ReviewEligibility, error) {
	m.actor = actor
	return m.eligibility, m.err
}

func (m *mockReviewService) SubmitReview(_ context.Context, actor service.Actor, req service.ReviewRequest) (*domain.Review, error) {
	m.actor, m.req = actor, req
	return m.review, m.err
}

func (m *mockReviewService) ImportReview(_ context.Context, userID string, req service.ReviewRequest) (*domain.Review, error) {
	m.userID, m.req = userID, req
	return m.review, m.err
}

func (m *mockReviewService) ListReviews(_ context.Context, actor service.Actor, _ int64) ([]*domain.Review, error) {
	m.actor = actor
	return m.reviews, m.err
}

func (m *mockReviewService) Summary(_ context.Context, productID int64) (*domain.RatingSummary, error) {
	return m.summary, m.err
}

func (m *mockReviewService) SetHidden(_ context.Context, _ int64, hidden bool) error {
	m.hidden = &hidden
	return m.err
}

type mockCatalogService struct {
	products []*domain.Product
	product  *service.ProductView
	err      error
}

func (m *mockCatalogService) ListProducts(context.Context) ([]*domain.Product, error) {
	return m.products, m.err
}

func (m *mockCatalogService) GetProduct(context.Context, int64) (*service.ProductView, error) {
	return m.product, m.err
}

type testServer struct {
	cart     *mockCartService
	checkout *mockCheckoutService
	payments *mockPaymentService
	sandbox  *mockSandbox
	orders   *mockOrderService
	reviews  *mockReviewService
	catalog  *mockCatalogService
	handler  http.Handler
}

func newTestServer() *testServer {
	s := &testServer{
		cart:     &mockCartService{view: &service.CartView{SessionID: "sess-1", Version: 3, Items: []service.CartLine{}}},
		checkout: &mockCheckoutService{},
		payments: &mockPaymentService{},
		sandbox:  &mockSandbox{},
		orders:   &mockOrderService{},
		reviews:  &mockReviewService{},
		catalog:  &mockCatalogService{},
	}
	timeout := 5 * time.Second
	s.handler = NewRouter(Handlers{
		Products: NewProductHandler(s.catalog, timeout),
		Reviews:  NewReviewHandler(s.reviews, timeout),
		Cart:     NewCartHandler(s.cart, timeout),
		Checkout: NewCheckoutHandler(s.checkout, timeout),
		Payments: NewPaymentHandler(s.payments, s.sandbox, timeout),
		Orders:   NewOrdersHandler(s.orders, timeout),
	}, RouterConfig{JWTSecret: testSecret, RequestTimeout: timeout})
	return s
}

type requestOption func(*http.Request)

func withSession(id string) requestOption {
	return func(r *http.Request) { r.Header.Set(headerSessionID, id) }
}

func withHeader(k, v string) requestOption {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func asUser(t *testing.T, userID, role string) requestOption {
	t.Helper()
	token := signToken(t, userID, role, time.Now().Add(time.Hour))
	return withHeader("Authorization", "Bearer "+token)
}

func signToken(t *testing.T, userID, role string, expires time.Time) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path string, body any, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}
