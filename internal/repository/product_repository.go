package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/farmstand/internal/domain"
	"github.com/lib/pq"
)

const productColumns = `id, name, price, stock, active, created_at`

func scanProduct(s rowScanner) (*domain.Product, error) {
	var p domain.Product
	if err := s.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Active, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product by id: %w", err)
	}
	return p, nil
}

// GetProducts returns the rows that exist among ids, keyed by id.
func (r *Repository) GetProducts(ctx context.Context, ids []int64) (map[int64]*domain.Product, error) {
	products := make(map[int64]*domain.Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()
	return collectProducts(rows, products)
}

func (r *Repository) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE active ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return products, nil
}

// lockProducts reads and row-locks products in id order so concurrent
// checkouts of the same products serialize instead of deadlocking.
func lockProducts(ctx context.Context, tx *sql.Tx, ids []int64) (map[int64]*domain.Product, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()
	return collectProducts(rows, make(map[int64]*domain.Product, len(ids)))
}

func collectProducts(rows *sql.Rows, into map[int64]*domain.Product) (map[int64]*domain.Product, error) {
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		into[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return into, nil
}
