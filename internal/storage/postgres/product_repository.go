package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const productColumns = `
	id, organization_id, name, description, price, weight,
	stock, reserved_stock, is_active, created_at, updated_at`

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		product.ID, product.OrganizationID, product.Name, product.Description,
		product.Price, product.Weight, product.Stock(), product.ReservedStock(),
		product.IsActive, product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: product %s", domain.ErrDuplicate, product.ID)
		}
		return domain.RepositoryError("insert product", err)
	}
	return nil
}

func (r *productRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, domain.RepositoryError("select product", err)
	}
	return product, nil
}

func (r *productRepository) ListByOrganization(ctx context.Context, organizationID string) ([]*domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE organization_id = $1
		ORDER BY created_at DESC, id DESC
	`, organizationID)
	if err != nil {
		return nil, domain.RepositoryError("list products", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

type productTxRepository struct {
	q querier
}

func (r *productTxRepository) FindByIDForUpdate(ctx context.Context, id string) (*domain.Product, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, domain.RepositoryError("lock product", err)
	}
	return product, nil
}

func (r *productTxRepository) FindByIDsForUpdate(ctx context.Context, ids []string) ([]*domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	// Один запрос с ORDER BY id: блокировки берутся в одном порядке во всех транзакциях.
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, domain.RepositoryError("lock products", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

func (r *productTxRepository) Save(ctx context.Context, product *domain.Product) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET name = $2,
		    description = $3,
		    price = $4,
		    weight = $5,
		    stock = $6,
		    reserved_stock = $7,
		    is_active = $8,
		    updated_at = $9
		WHERE id = $1
	`,
		product.ID, product.Name, product.Description, product.Price, product.Weight,
		product.Stock(), product.ReservedStock(), product.IsActive, product.UpdatedAt,
	)
	if err != nil {
		return domain.RepositoryError("update product", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.RepositoryError("update product rows affected", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p        domain.Product
		stock    int
		reserved int
	)
	if err := row.Scan(
		&p.ID, &p.OrganizationID, &p.Name, &p.Description, &p.Price, &p.Weight,
		&stock, &reserved, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return domain.RestoreProduct(p, stock, reserved)
}

func scanProducts(rows *sql.Rows) ([]*domain.Product, error) {
	products := make([]*domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, domain.RepositoryError("scan product row", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.RepositoryError("iterate product rows", err)
	}
	return products, nil
}

var (
	_ domain.ProductRepository   = (*productRepository)(nil)
	_ domain.ProductTxRepository = (*productTxRepository)(nil)
)
