package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, slug, title, description, category,
	target_entity, target_metric, target_value,
	resolution_criteria, resolution_date, created_by, is_expert,
	status, total_yes_stake, total_no_stake,
	resolved_at, settled_at, created_at, updated_at`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var category, status string
	err := row.Scan(
		&m.ID, &m.Slug, &m.Title, &m.Description, &category,
		&m.TargetEntity, &m.TargetMetric, &m.TargetValue,
		&m.ResolutionCriteria, &m.ResolutionDate, &m.CreatedBy, &m.IsExpert,
		&status, &m.TotalYesStake, &m.TotalNoStake,
		&m.ResolvedAt, &m.SettledAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Category = domain.Category(category)
	m.Status = domain.MarketStatus(status)
	return m, nil
}

// Create inserts a new open market. A taken id or slug yields
// domain.ErrAlreadyExists.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, slug, title, description, category,
			target_entity, target_metric, target_value,
			resolution_criteria, resolution_date, created_by, is_expert,
			status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12,
			$13, $14, $14
		)`

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.Slug, m.Title, m.Description, string(m.Category),
		m.TargetEntity, m.TargetMetric, m.TargetValue,
		m.ResolutionCriteria, m.ResolutionDate, m.CreatedBy, m.IsExpert,
		string(m.Status), m.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// GetBySlug retrieves a market by its URL slug.
func (s *MarketStore) GetBySlug(ctx context.Context, slug string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE slug = $1`, slug)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market by slug %s: %w", slug, err)
	}
	return m, nil
}

// ListOpen returns open markets, newest first, optionally narrowed to one
// category.
func (s *MarketStore) ListOpen(ctx context.Context, filter domain.MarketFilter) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE status = 'open'`
	args := []any{}

	if filter.Category != nil {
		args = append(args, string(*filter.Category))
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return s.list(ctx, "list open markets", query, args...)
}

// ListUpcoming returns open markets resolving after the given instant,
// soonest first.
func (s *MarketStore) ListUpcoming(ctx context.Context, after time.Time, limit int) ([]domain.Market, error) {
	const query = `SELECT ` + marketCols + ` FROM markets
		WHERE status = 'open' AND resolution_date > $1
		ORDER BY resolution_date ASC
		LIMIT $2`
	return s.list(ctx, "list upcoming markets", query, after, limit)
}

// ListUnsettled returns resolved markets whose settlement has not completed,
// oldest resolution first.
func (s *MarketStore) ListUnsettled(ctx context.Context, limit int) ([]domain.Market, error) {
	const query = `SELECT ` + marketCols + ` FROM markets
		WHERE status <> 'open' AND settled_at IS NULL
		ORDER BY resolved_at ASC
		LIMIT $1`
	return s.list(ctx, "list unsettled markets", query, limit)
}

func (s *MarketStore) list(ctx context.Context, op, query string, args ...any) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: %s: scan: %w", op, err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}
	return markets, nil
}
