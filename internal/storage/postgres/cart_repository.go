package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const cartColumns = `id, items, status, expires_at, created_at, updated_at`

// upsertCartSQL пишет строку внутри транзакции под FOR UPDATE.
// Условие по updated_at не даёт более старому снимку перетереть текущий.
const upsertCartSQL = `
	INSERT INTO shopping_carts (` + cartColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6)
	ON CONFLICT (id) DO UPDATE
	SET items = EXCLUDED.items,
	    status = EXCLUDED.status,
	    expires_at = EXCLUDED.expires_at,
	    updated_at = EXCLUDED.updated_at
	WHERE shopping_carts.updated_at <= EXCLUDED.updated_at
`

// updateActiveCartSQL обслуживает отложенную запись снимка из очереди.
// Без INSERT: удалённая или закрытая строка не возвращается в active.
const updateActiveCartSQL = `
	UPDATE shopping_carts
	SET items = $2,
	    status = $3,
	    expires_at = $4,
	    updated_at = $5
	WHERE id = $1
	  AND status = $6
	  AND updated_at <= $5
`

type cartRepository struct {
	db *sql.DB
}

// NewCartRepository создаёт PostgreSQL-реализацию CartRepository.
func NewCartRepository(store *Store) domain.CartRepository {
	return &cartRepository{db: store.DB()}
}

func (r *cartRepository) Get(ctx context.Context, id string) (*domain.Cart, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT `+cartColumns+` FROM shopping_carts WHERE id = $1`, id)
	cart, err := scanCart(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCartNotFound
		}
		return nil, domain.RepositoryError("select cart", err)
	}
	return cart, nil
}

func (r *cartRepository) UpdateActive(ctx context.Context, cart *domain.Cart) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	items, err := json.Marshal(cart.Items)
	if err != nil {
		return fmt.Errorf("marshal cart items: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, updateActiveCartSQL,
		cart.ID, items, string(cart.Status), cart.ExpiresAt, cart.UpdatedAt, string(domain.CartStatusActive),
	); err != nil {
		return domain.RepositoryError("update active cart", err)
	}
	return nil
}

func (r *cartRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return deleteCart(ctx, r.db, id)
}

func (r *cartRepository) ListExpiredActive(ctx context.Context, before time.Time, limit int) ([]*domain.Cart, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+cartColumns+`
		FROM shopping_carts
		WHERE status = $1
		  AND expires_at < $2
		ORDER BY expires_at, id
		LIMIT $3
	`, string(domain.CartStatusActive), before, limit)
	if err != nil {
		return nil, domain.RepositoryError("list expired carts", err)
	}
	defer rows.Close()

	carts := make([]*domain.Cart, 0, limit)
	for rows.Next() {
		cart, err := scanCart(rows)
		if err != nil {
			return nil, domain.RepositoryError("scan cart row", err)
		}
		carts = append(carts, cart)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.RepositoryError("iterate cart rows", err)
	}
	return carts, nil
}

type cartTxRepository struct {
	q querier
}

func (r *cartTxRepository) FindByIDForUpdate(ctx context.Context, id string) (*domain.Cart, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+cartColumns+` FROM shopping_carts WHERE id = $1 FOR UPDATE`, id)
	cart, err := scanCart(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCartNotFound
		}
		return nil, domain.RepositoryError("select cart for update", err)
	}
	return cart, nil
}

func (r *cartTxRepository) Save(ctx context.Context, cart *domain.Cart) error {
	return upsertCart(ctx, r.q, cart)
}

func (r *cartTxRepository) Delete(ctx context.Context, id string) error {
	return deleteCart(ctx, r.q, id)
}

func upsertCart(ctx context.Context, q querier, cart *domain.Cart) error {
	items, err := json.Marshal(cart.Items)
	if err != nil {
		return fmt.Errorf("marshal cart items: %w", err)
	}

	if _, err := q.ExecContext(ctx, upsertCartSQL,
		cart.ID, items, string(cart.Status), cart.ExpiresAt, cart.CreatedAt, cart.UpdatedAt,
	); err != nil {
		return domain.RepositoryError("upsert cart", err)
	}
	return nil
}

func deleteCart(ctx context.Context, q querier, id string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM shopping_carts WHERE id = $1`, id); err != nil {
		return domain.RepositoryError("delete cart", err)
	}
	return nil
}

func scanCart(row rowScanner) (*domain.Cart, error) {
	var (
		cart   domain.Cart
		items  []byte
		status string
	)
	if err := row.Scan(&cart.ID, &items, &status, &cart.ExpiresAt, &cart.CreatedAt, &cart.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &cart.Items); err != nil {
		return nil, fmt.Errorf("unmarshal cart %s items: %w", cart.ID, err)
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	cart.Status = domain.CartStatus(status)
	return &cart, nil
}

var (
	_ domain.CartRepository   = (*cartRepository)(nil)
	_ domain.CartTxRepository = (*cartTxRepository)(nil)
)
