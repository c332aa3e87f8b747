package postgres

import (
	"context"
	"fmt"
	"time"

	"stocklab/internal/domain"
	"stocklab/internal/storage"
)

// StatementStore is a Postgres implementation of storage.StatementStore.
type StatementStore struct {
	pool *Pool
}

// NewStatementStore creates a new statement store.
func NewStatementStore(pool *Pool) *StatementStore {
	return &StatementStore{pool: pool}
}

// Insert adds a statement. Returns ErrDuplicateKey on (code, as_of).
func (s *StatementStore) Insert(ctx context.Context, st *domain.Statement) (err error) {
	start := time.Now()
	defer func() { observe("statement_insert", start, err) }()

	if st == nil || st.Code == "" || st.AsOf.IsZero() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO statements (
			code, as_of, revenue, operating_income, net_income,
			equity, debt, shares_out
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = s.pool.Exec(ctx, query,
		st.Code, domain.Midnight(st.AsOf), st.Revenue, st.OperatingIncome,
		st.NetIncome, st.Equity, st.Debt, st.SharesOut,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert statement: %w", err)
	}

	return nil
}

// LatestAsOf retrieves the most recent statement published at or before the
// date. Returns ErrNotFound if none.
func (s *StatementStore) LatestAsOf(ctx context.Context, code string, date time.Time) (st *domain.Statement, err error) {
	start := time.Now()
	defer func() { observe("statement_latest_as_of", start, err) }()

	query := `
		SELECT code, as_of, revenue, operating_income, net_income,
		       equity, debt, shares_out
		FROM statements
		WHERE code = $1 AND as_of <= $2
		ORDER BY as_of DESC
		LIMIT 1`

	st = &domain.Statement{}
	err = s.pool.QueryRow(ctx, query, code, domain.Midnight(date)).Scan(
		&st.Code, &st.AsOf, &st.Revenue, &st.OperatingIncome,
		&st.NetIncome, &st.Equity, &st.Debt, &st.SharesOut,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query latest statement: %w", err)
	}

	return st, nil
}

var _ storage.StatementStore = (*StatementStore)(nil)
