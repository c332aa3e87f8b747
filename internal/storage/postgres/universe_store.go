package postgres

import (
	"context"
	"fmt"
	"time"

	"stocklab/internal/domain"
	"stocklab/internal/storage"
)

// UniverseStore is a Postgres implementation of storage.UniverseStore.
type UniverseStore struct {
	pool *Pool
}

// NewUniverseStore creates a new universe store.
func NewUniverseStore(pool *Pool) *UniverseStore {
	return &UniverseStore{pool: pool}
}

// Insert adds a membership row. An open-ended membership (zero ValidTo) is
// stored as NULL.
func (s *UniverseStore) Insert(ctx context.Context, m *storage.Membership) (err error) {
	start := time.Now()
	defer func() { observe("universe_insert", start, err) }()

	if m == nil || m.Code == "" {
		return storage.ErrInvalidInput
	}

	var validTo *time.Time
	if !m.ValidTo.IsZero() {
		t := domain.Midnight(m.ValidTo)
		validTo = &t
	}

	query := `
		INSERT INTO universe_membership (code, theme, universe, valid_from, valid_to)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = s.pool.Exec(ctx, query,
		m.Code, m.Theme, m.Universe, domain.Midnight(m.ValidFrom), validTo,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert membership: %w", err)
	}

	return nil
}

// Members returns the codes matching the filter and valid on the date,
// sorted ASC. An explicit ticker whitelist intersects the membership result.
func (s *UniverseStore) Members(ctx context.Context, filter domain.UniverseFilter, date time.Time) (codes []string, err error) {
	start := time.Now()
	defer func() { observe("universe_members", start, err) }()

	query := `
		SELECT DISTINCT code
		FROM universe_membership
		WHERE ($1 = '' OR theme = $1)
		  AND ($2 = '' OR universe = $2)
		  AND valid_from <= $3
		  AND (valid_to IS NULL OR valid_to >= $3)
		  AND (cardinality($4::text[]) = 0 OR code = ANY($4::text[]))
		ORDER BY code ASC`

	tickers := filter.Tickers
	if tickers == nil {
		tickers = []string{}
	}

	rows, err := s.pool.Query(ctx, query,
		filter.Theme, filter.Universe, domain.Midnight(date), tickers,
	)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	codes = make([]string, 0)
	for rows.Next() {
		var code string
		if err = rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		codes = append(codes, code)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}

	return codes, nil
}

var _ storage.UniverseStore = (*UniverseStore)(nil)
