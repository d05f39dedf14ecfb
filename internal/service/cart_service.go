package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fjod/farmstand/internal/cache"
	"github.com/fjod/farmstand/internal/domain"
	"github.com/fjod/farmstand/internal/pricing"
	"github.com/fjod/farmstand/internal/repository"
	"golang.org/x/sync/singleflight"
)

type CartService struct {
	repo     repository.CartRepository
	products repository.ProductRepository
	cache    cache.CartCache
	pricing  *pricing.Engine
	currency string
	sfg      singleflight.Group // collapses concurrent cache misses per session
}

func NewCartService(repo repository.CartRepository, products repository.ProductRepository,
	cache cache.CartCache, engine *pricing.Engine, currency string) *CartService {
	return &CartService{
		repo:     repo,
		products: products,
		cache:    cache,
		pricing:  engine,
		currency: currency,
	}
}

// GetCart never fails for a missing cart or session; both read as empty.
// Writes without a session are no-ops that also return the empty cart.
func (s *CartService) GetCart(ctx context.Context, sessionID string) (*CartView, error) {
	if sessionID == "" {
		return s.view(ctx, domain.NewEmptyCart(""))
	}

	v, err, _ := s.sfg.Do(sessionID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, sessionID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			slog.WarnContext(ctx, "cart cache get failed", "session_id", sessionID, "error", err)
		}

		// read before the load so an eviction during it rejects our fill
		gen, errGen := s.cache.Generation(ctx, sessionID)
		if errGen != nil {
			slog.WarnContext(ctx, "cart cache generation failed", "session_id", sessionID, "error", errGen)
		}

		cart, err = s.load(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if errGen != nil {
			return cart, nil
		}

		setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		switch errSet := s.cache.Set(setCtx, sessionID, cart, gen); {
		case errors.Is(errSet, cache.ErrStaleGeneration):
			slog.DebugContext(ctx, "cart cache fill dropped, evicted during load", "session_id", sessionID)
		case errSet != nil:
			slog.WarnContext(ctx, "cart cache set failed", "session_id", sessionID, "error", errSet)
		}
		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	return s.view(ctx, v.(*domain.Cart))
}

func (s *CartService) AddItem(ctx context.Context, sessionID string, productID int64, quantity int, expectedVersion int64) (*CartView, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if sessionID == "" {
		return s.view(ctx, domain.NewEmptyCart(""))
	}
	if err := s.requireProduct(ctx, productID); err != nil {
		return nil, err
	}
	if err := s.repo.AddItem(ctx, sessionID, productID, quantity, expectedVersion); err != nil {
		slog.ErrorContext(ctx, "repo add item failed", "session_id", sessionID, "product_id", productID, "error", err)
		return nil, err
	}
	return s.afterWrite(ctx, sessionID)
}

// SetItemQuantity overwrites a line. Quantities below one remove the line.
func (s *CartService) SetItemQuantity(ctx context.Context, sessionID string, productID int64, quantity int, expectedVersion int64) (*CartView, error) {
	if quantity < 1 {
		return s.RemoveItem(ctx, sessionID, productID, expectedVersion)
	}
	if sessionID == "" {
		return s.view(ctx, domain.NewEmptyCart(""))
	}
	if err := s.requireProduct(ctx, productID); err != nil {
		return nil, err
	}
	if err := s.repo.SetItemQuantity(ctx, sessionID, productID, quantity, expectedVersion); err != nil {
		slog.ErrorContext(ctx, "repo set item quantity failed", "session_id", sessionID, "product_id", productID, "error", err)
		return nil, err
	}
	return s.afterWrite(ctx, sessionID)
}

func (s *CartService) RemoveItem(ctx context.Context, sessionID string, productID int64, expectedVersion int64) (*CartView, error) {
	if sessionID == "" {
		return s.view(ctx, domain.NewEmptyCart(""))
	}
	if err := s.repo.RemoveItem(ctx, sessionID, productID, expectedVersion); err != nil {
		slog.ErrorContext(ctx, "repo remove item failed", "session_id", sessionID, "product_id", productID, "error", err)
		return nil, err
	}
	return s.afterWrite(ctx, sessionID)
}

func (s *CartService) Clear(ctx context.Context, sessionID string, expectedVersion int64) (*CartView, error) {
	if sessionID == "" {
		return s.view(ctx, domain.NewEmptyCart(""))
	}
	if err := s.repo.ClearCart(ctx, sessionID, expectedVersion); err != nil {
		slog.ErrorContext(ctx, "repo clear cart failed", "session_id", sessionID, "error", err)
		return nil, err
	}
	return s.afterWrite(ctx, sessionID)
}

// Invalidate drops the cached lines of a session. Cache errors are only logged.
func (s *CartService) Invalidate(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, sessionID); err != nil {
		slog.Warn("cart cache invalidate failed", "session_id", sessionID, "error", err)
	}
}

// afterWrite re-reads the cart from storage so the response reflects what
// was committed, not what the caller assumed.
func (s *CartService) afterWrite(ctx context.Context, sessionID string) (*CartView, error) {
	s.Invalidate(sessionID)
	cart, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, cart)
}

func (s *CartService) load(ctx context.Context, sessionID string) (*domain.Cart, error) {
	cart, err := s.repo.GetCart(ctx, sessionID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return domain.NewEmptyCart(sessionID), nil
	}
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *CartService) requireProduct(ctx context.Context, productID int64) error {
	p, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if !p.Active {
		return domain.ErrProductNotFound
	}
	return nil
}

func (s *CartService) view(ctx context.Context, cart *domain.Cart) (*CartView, error) {
	v := &CartView{
		SessionID: cart.SessionID,
		Version:   cart.Version,
		Items:     make([]CartLine, 0, len(cart.Items)),
		Currency:  s.currency,
	}
	products := map[int64]*domain.Product{}
	if !cart.IsEmpty() {
		var err error
		products, err = s.products.GetProducts(ctx, cart.ProductIDs())
		if err != nil {
			return nil, err
		}
	}

	for _, item := range cart.Items {
		line := CartLine{ProductID: item.ProductID, Quantity: item.Quantity}
		if p, ok := products[item.ProductID]; ok && p.Active {
			line.Name = p.Name
			line.UnitPrice = p.Price
			line.LineTotal = pricing.Line{UnitPrice: p.Price, Quantity: item.Quantity}.Total()
			line.Available = true
			line.InStock = p.Purchasable(item.Quantity)
		}
		v.Items = append(v.Items, line)
	}
	v.Summary = s.pricing.PriceCart(cart, products)
	return v, nil
}
