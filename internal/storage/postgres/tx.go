package postgres

import (
	"context"
	"database/sql"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// querier покрывает общее подмножество *sql.DB и *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

type transactor struct {
	db     *sql.DB
	logger *log.Entry
}

// NewTransactor создаёт PostgreSQL-реализацию Transactor.
func NewTransactor(store *Store) domain.Transactor {
	return &transactor{db: store.DB(), logger: store.log()}
}

// WithinTx выполняет fn в одной транзакции. Ошибка fn возвращается как есть,
// чтобы доменные ошибки не терялись за ErrRepository.
func (t *transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	sqlTx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.RepositoryError("begin tx", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &txScope{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			t.logger.WithError(rbErr).Warn("rollback failed")
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return domain.RepositoryError("commit tx", err)
	}
	return nil
}

type txScope struct {
	tx *sql.Tx
}

func (s *txScope) Products() domain.ProductTxRepository {
	return &productTxRepository{q: s.tx}
}

func (s *txScope) Carts() domain.CartTxRepository {
	return &cartTxRepository{q: s.tx}
}

func (s *txScope) Orders() domain.OrderTxRepository {
	return &orderTxRepository{q: s.tx}
}

var (
	_ domain.Transactor = (*transactor)(nil)
	_ domain.Tx         = (*txScope)(nil)
)
