package service

import (
	"context"

	"github.com/fjod/farmstand/internal/domain"
	"github.com/fjod/farmstand/internal/repository"
)

type ProductView struct {
	*domain.Product
	Rating *domain.RatingSummary `json:"rating"`
}

type CatalogService struct {
	products repository.ProductRepository
	reviews  repository.ReviewRepository
}

func NewCatalogService(products repository.ProductRepository, reviews repository.ReviewRepository) *CatalogService {
	return &CatalogService{products: products, reviews: reviews}
}

func (s *CatalogService) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	return s.products.ListProducts(ctx)
}

func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*ProductView, error) {
	p, err := s.products.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, domain.ErrProductNotFound
	}
	summary, err := s.reviews.RatingSummary(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ProductView{Product: p, Rating: summary}, nil
}
