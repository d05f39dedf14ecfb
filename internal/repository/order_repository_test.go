package repository

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/farmstand/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func placeTestOrder(t *testing.T, repo *Repository, userID string, sessionID string, items []domain.CartItem) *domain.Order {
	order, err := repo.PlaceOrder(context.Background(), items, buildPending(&userID, sessionID, items))
	require.NoError(t, err)
	return order
}

func TestPlaceOrder_DecrementsStockAndWritesEvent(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	apples := seedProduct(t, repo, "Apples", "5.00", 10)
	items := []domain.CartItem{{ProductID: apples, Quantity: 2}}

	order := placeTestOrder(t, repo, "user-1", "s1", items)
	assert.NotZero(t, order.ID)
	assert.Equal(t, 8, stockOf(t, repo, apples))

	fetched, err := repo.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPendingPayment, fetched.Status)
	assert.Equal(t, "15", fetched.Total.String())
	assert.Equal(t, "s1", fetched.SessionID)
	require.NotNil(t, fetched.UserID)
	assert.Equal(t, "user-1", *fetched.UserID)
	require.Len(t, fetched.Items, 1)
	assert.Equal(t, "Apples", fetched.Items[0].Name)
	assert.Equal(t, "Ada", fetched.Customer.Name)
	assert.Nil(t, fetched.Payment)

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventOrderCreated, events[0].EventType)
	assert.Equal(t, order.AggregateID(), events[0].AggregateId)
}

func TestPlaceOrder_InsufficientStockWritesNothing(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	apples := seedProduct(t, repo, "Apples", "5.00", 10)
	pears := seedProduct(t, repo, "Pears", "3.00", 1)
	items := []domain.CartItem{{ProductID: apples, Quantity: 2}, {ProductID: pears, Quantity: 2}}
	uid := "user-1"

	_, err := repo.PlaceOrder(ctx, items, buildPending(&uid, "s1", items))
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, pears, stockErr.ProductID)

	assert.Equal(t, 10, stockOf(t, repo, apples))
	assert.Equal(t, 1, stockOf(t, repo, pears))
	assert.Equal(t, 0, countRows(t, repo, "orders"))
	assert.Equal(t, 0, countRows(t, repo, "outbox_events"))
}

func TestUpdateOrder_ConfirmClearsCartOnce(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	apples := seedProduct(t, repo, "Apples", "5.00", 10)
	require.NoError(t, repo.AddItem(ctx, "s1", apples, 2, 0))
	items := []domain.CartItem{{ProductID: apples, Quantity: 2}}
	order := placeTestOrder(t, repo, "user-1", "s1", items)

	require.NoError(t, repo.SetGatewayOrder(ctx, order.ID, "gw_order_1"))
	order, err := repo.GetOrderByGatewayOrderID(ctx, "gw_order_1")
	require.NoError(t, err)

	info := domain.PaymentInfo{GatewayOrderID: "gw_order_1", GatewayPaymentID: "pay_1", Signature: "abc"}
	require.NoError(t, order.ConfirmPayment(info, time.Now()))
	err = repo.UpdateOrder(ctx, order, domain.OrderStatusPendingPayment,
		UpdateOptions{ClearCart: true, EventType: domain.EventOrderConfirmed})
	require.NoError(t, err)

	cart, err := repo.GetCart(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	fetched, err := repo.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, fetched.Status)
	require.NotNil(t, fetched.Payment)
	assert.True(t, fetched.Payment.Verified)
	assert.Equal(t, "pay_1", fetched.Payment.GatewayPaymentID)

	// the same transition replayed against the stored status is stale
	err = repo.UpdateOrder(ctx, order, domain.OrderStatusPendingPayment, UpdateOptions{ClearCart: true})
	assert.ErrorIs(t, err, ErrStaleOrder)

	// gateway order cannot be replaced once paid
	err = repo.SetGatewayOrder(ctx, order.ID, "gw_order_2")
	assert.ErrorIs(t, err, ErrStaleOrder)
}

func TestUpdateOrder_PaymentIsWriteOnce(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	apples := seedProduct(t, repo, "Apples", "5.00", 10)
	order := placeTestOrder(t, repo, "user-1", "s1", []domain.CartItem{{ProductID: apples, Quantity: 1}})

	require.NoError(t, order.ConfirmPayment(domain.PaymentInfo{GatewayPaymentID: "pay_1"}, time.Now()))
	require.NoError(t, repo.UpdateOrder(ctx, order, domain.OrderStatusPendingPayment, UpdateOptions{}))

	order.Payment.GatewayPaymentID = "pay_forged"
	require.NoError(t, order.Advance(domain.OrderStatusProcessing, time.Now()))
	require.NoError(t, repo.UpdateOrder(ctx, order, domain.OrderStatusConfirmed, UpdateOptions{}))

	fetched, err := repo.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "pay_1", fetched.Payment.GatewayPaymentID)
	assert.Equal(t, domain.OrderStatusProcessing, fetched.Status)
}

func TestUpdateOrder_ApproveCancellationRestoresStockOnce(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	apples := seedProduct(t, repo, "Apples", "5.00", 10)
	pears := seedProduct(t, repo, "Pears", "3.00", 4)
	order := placeTestOrder(t, repo, "user-1", "s1", []domain.CartItem{
		{ProductID: apples, Quantity: 2},
		{ProductID: pears, Quantity: 3},
	})
	assert.Equal(t, 8, stockOf(t, repo, apples))
	assert.Equal(t, 1, stockOf(t, repo, pears))

	require.NoError(t, order.RequestCancellation("ordered twice", time.Now()))
	require.NoError(t, repo.UpdateOrder(ctx, order, domain.OrderStatusPendingPayment,
		UpdateOptions{EventType: domain.EventOrderCancellationRequested}))

	stored, err := repo.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPendingPayment, stored.PreCancellationStatus)
	assert.Equal(t, "ordered twice", stored.CancellationReason)
	require.NotNil(t, stored.CancellationRequestedAt)

	approved := stored.Clone()
	require.NoError(t, approved.ProcessCancellation(domain.CancellationApprove, "refund issued", time.Now()))
	require.NoError(t, repo.UpdateOrder(ctx, approved, domain.OrderStatusCancellationRequested,
		UpdateOptions{RestoreStock: true, EventType: domain.EventOrderCancelled}))

	// a concurrent second approval computed from the same read is rejected
	again := stored.Clone()
	require.NoError(t, again.ProcessCancellation(domain.CancellationApprove, "", time.Now()))
	err = repo.UpdateOrder(ctx, again, domain.OrderStatusCancellationRequested, UpdateOptions{RestoreStock: true})
	assert.ErrorIs(t, err, ErrStaleOrder)

	assert.Equal(t, 10, stockOf(t, repo, apples))
	assert.Equal(t, 4, stockOf(t, repo, pears))

	fetched, err := repo.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, fetched.Status)
	assert.Empty(t, fetched.PreCancellationStatus)
	assert.Equal(t, "refund issued", fetched.CancellationAdminResponse)
}

func TestListOrders(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	apples := seedProduct(t, repo, "Apples", "5.00", 10)
	first := placeTestOrder(t, repo, "user-1", "s1", []domain.CartItem{{ProductID: apples, Quantity: 1}})
	placeTestOrder(t, repo, "user-1", "s1", []domain.CartItem{{ProductID: apples, Quantity: 1}})
	placeTestOrder(t, repo, "user-2", "s2", []domain.CartItem{{ProductID: apples, Quantity: 1}})

	mine, err := repo.ListOrdersByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	require.NoError(t, first.ConfirmPayment(domain.PaymentInfo{GatewayPaymentID: "p"}, time.Now()))
	require.NoError(t, repo.UpdateOrder(ctx, first, domain.OrderStatusPendingPayment, UpdateOptions{}))

	confirmed, err := repo.ListOrders(ctx, domain.OrderStatusConfirmed, 10)
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, first.ID, confirmed[0].ID)

	all, err := repo.ListOrders(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = repo.GetOrder(ctx, 424242)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}
