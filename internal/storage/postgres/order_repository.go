package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const orderColumns = `id, cliente, organization_ids, total, status, created_at, updated_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, domain.RepositoryError("select order", err)
	}

	items, err := loadOrderItems(ctx, r.db, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

func (r *orderRepository) ListByOrganization(ctx context.Context, organizationID string) ([]domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE $1 = ANY(organization_ids)
		ORDER BY created_at DESC, id DESC
	`, organizationID)
	if err != nil {
		return nil, domain.RepositoryError("list orders", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, domain.RepositoryError("scan order row", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.RepositoryError("iterate order rows", err)
	}
	rows.Close()

	for i := range orders {
		items, err := loadOrderItems(ctx, r.db, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, updatedAt time.Time) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2,
		    updated_at = $3
		WHERE id = $1
	`, id, string(status), updatedAt)
	if err != nil {
		return domain.RepositoryError("update order status", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.RepositoryError("update order status rows affected", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

type orderTxRepository struct {
	q querier
}

func (r *orderTxRepository) Create(ctx context.Context, order domain.Order) error {
	customer, err := json.Marshal(order.Customer)
	if err != nil {
		return fmt.Errorf("marshal order customer: %w", err)
	}

	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		order.ID, customer, order.OrganizationIDs, order.Total,
		string(order.Status), order.CreatedAt, order.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: order %s", domain.ErrDuplicate, order.ID)
		}
		return domain.RepositoryError("insert order", err)
	}

	for i, item := range order.Items {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, product_id, organization_id, product_name,
				price_snapshot, quantity, subtotal, position
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			item.ID, order.ID, item.ProductID, item.OrganizationID, item.ProductName,
			item.PriceSnapshot, item.Quantity, item.Subtotal, i,
		); err != nil {
			return domain.RepositoryError("insert order item", err)
		}
	}
	return nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order    domain.Order
		customer []byte
		status   string
		orgIDs   []string
	)
	typeMap := pgtype.NewMap()
	if err := row.Scan(
		&order.ID, &customer, typeMap.SQLScanner(&orgIDs), &order.Total,
		&status, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	if err := json.Unmarshal(customer, &order.Customer); err != nil {
		return domain.Order{}, fmt.Errorf("unmarshal order %s customer: %w", order.ID, err)
	}
	order.OrganizationIDs = orgIDs
	order.Status = domain.OrderStatus(status)
	return order, nil
}

func loadOrderItems(ctx context.Context, q querier, orderID string) ([]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, product_id, organization_id, product_name, price_snapshot, quantity, subtotal
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, domain.RepositoryError("load order items", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID, &item.ProductID, &item.OrganizationID, &item.ProductName,
			&item.PriceSnapshot, &item.Quantity, &item.Subtotal,
		); err != nil {
			return nil, domain.RepositoryError("scan order item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.RepositoryError("iterate order items", err)
	}
	return items, nil
}

var (
	_ domain.OrderRepository   = (*orderRepository)(nil)
	_ domain.OrderTxRepository = (*orderTxRepository)(nil)
)
