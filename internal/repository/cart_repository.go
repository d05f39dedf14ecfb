package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/farmstand/internal/domain"
)

func (r *Repository) GetCart(ctx context.Context, sessionID string) (*domain.Cart, error) {
	cart := &domain.Cart{SessionID: sessionID, Items: []domain.CartItem{}}

	err := r.db.QueryRowContext(ctx,
		`SELECT version, updated_at FROM cart_sessions WHERE session_id = $1`, sessionID,
	).Scan(&cart.Version, &cart.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart session: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT product_id, quantity, added_at FROM cart_items
		 WHERE session_id = $1 ORDER BY added_at, product_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.AddedAt); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return cart, nil
}

// AddItem sums quantity into an existing line or creates one.
func (r *Repository) AddItem(ctx context.Context, sessionID string, productID int64, quantity int, expectedVersion int64) error {
	return r.mutateLine(ctx, sessionID, productID, expectedVersion, func(c *domain.Cart) error {
		return c.AddItem(productID, quantity, time.Now())
	})
}

func (r *Repository) SetItemQuantity(ctx context.Context, sessionID string, productID int64, quantity int, expectedVersion int64) error {
	return r.mutateLine(ctx, sessionID, productID, expectedVersion, func(c *domain.Cart) error {
		c.SetQuantity(productID, quantity, time.Now())
		return nil
	})
}

func (r *Repository) RemoveItem(ctx context.Context, sessionID string, productID int64, expectedVersion int64) error {
	return r.mutateLine(ctx, sessionID, productID, expectedVersion, func(c *domain.Cart) error {
		c.RemoveItem(productID)
		return nil
	})
}

// mutateLine applies the cart rules to one stored line. The session row is
// bumped first, so concurrent writers on the same session queue behind it.
func (r *Repository) mutateLine(ctx context.Context, sessionID string, productID int64, expectedVersion int64, apply func(c *domain.Cart) error) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := bumpCartVersion(ctx, tx, sessionID, expectedVersion); err != nil {
			return err
		}

		cart := domain.NewEmptyCart(sessionID)
		var item domain.CartItem
		err := tx.QueryRowContext(ctx,
			`SELECT product_id, quantity, added_at FROM cart_items
			 WHERE session_id = $1 AND product_id = $2 FOR UPDATE`,
			sessionID, productID,
		).Scan(&item.ProductID, &item.Quantity, &item.AddedAt)
		switch {
		case err == nil:
			cart.Items = append(cart.Items, item)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("query cart item: %w", err)
		}

		if err := apply(cart); err != nil {
			return err
		}

		line, ok := cart.Item(productID)
		if !ok {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM cart_items WHERE session_id = $1 AND product_id = $2`, sessionID, productID); err != nil {
				return fmt.Errorf("delete cart item: %w", err)
			}
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO cart_items (session_id, product_id, quantity, added_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (session_id, product_id)
			 DO UPDATE SET quantity = EXCLUDED.quantity`,
			sessionID, productID, line.Quantity, line.AddedAt)
		if err != nil {
			return fmt.Errorf("upsert cart item: %w", err)
		}
		return nil
	})
}

func (r *Repository) ClearCart(ctx context.Context, sessionID string, expectedVersion int64) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := bumpCartVersion(ctx, tx, sessionID, expectedVersion); err != nil {
			return err
		}
		return clearCartItems(ctx, tx, sessionID)
	})
}

// bumpCartVersion creates the session row on first write and increments its
// version. A non-zero expectedVersion must match the stored one.
func bumpCartVersion(ctx context.Context, tx *sql.Tx, sessionID string, expectedVersion int64) error {
	if expectedVersion == 0 {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO cart_sessions (session_id, version, updated_at) VALUES ($1, 1, NOW())
			 ON CONFLICT (session_id)
			 DO UPDATE SET version = cart_sessions.version + 1, updated_at = NOW()`,
			sessionID)
		if err != nil {
			return fmt.Errorf("bump cart version: %w", err)
		}
		return nil
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE cart_sessions SET version = version + 1, updated_at = NOW()
		 WHERE session_id = $1 AND version = $2`,
		sessionID, expectedVersion)
	if err != nil {
		return fmt.Errorf("bump cart version: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bump cart version: %w", err)
	}
	if n == 0 {
		return domain.ErrCartVersionConflict
	}
	return nil
}

func clearCartItems(ctx context.Context, tx *sql.Tx, sessionID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}
	return nil
}
