// Package postgres provides a PostgreSQL storage.ReportStore built on
// pgx/v5, storing tool calls and server lists as JSONB.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/sdvagent/pkg/api"
	"github.com/rhuss/sdvagent/pkg/storage"
)

// Store is a PostgreSQL-backed ReportStore.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements storage.ReportStore at compile time.
var _ storage.ReportStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

const selectColumns = `
	SELECT id, vehicle_id, query, language, model, servers, analysis, content,
	       tool_calls, usage_input_tokens, usage_output_tokens, usage_total_tokens,
	       created_at
	FROM reports`

// SaveReport persists a report.
func (s *Store) SaveReport(ctx context.Context, r *api.Report) error {
	servers := r.Servers
	if servers == nil {
		servers = []string{}
	}
	serversJSON, err := json.Marshal(servers)
	if err != nil {
		return fmt.Errorf("marshaling servers: %w", err)
	}

	calls := r.ToolCalls
	if calls == nil {
		calls = []api.ToolInvocation{}
	}
	callsJSON, err := json.Marshal(calls)
	if err != nil {
		return fmt.Errorf("marshaling tool calls: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO reports (
			id, tenant_id, vehicle_id, query, language, model,
			servers, analysis, content, tool_calls,
			usage_input_tokens, usage_output_tokens, usage_total_tokens,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		r.ID, storage.GetTenant(ctx), r.VehicleID, r.Query, r.Language, r.Model,
		serversJSON, r.Analysis, r.Content, callsJSON,
		r.Usage.InputTokens, r.Usage.OutputTokens, r.Usage.TotalTokens,
		r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting report: %w", err)
	}
	return nil
}

// GetReport retrieves a report by ID.
func (s *Store) GetReport(ctx context.Context, id string) (*api.Report, error) {
	query := selectColumns + " WHERE id = $1"
	args := []any{id}
	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}

	r, err := scanReport(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying report: %w", err)
	}
	return r, nil
}

// ListReports returns reports newest first.
func (s *Store) ListReports(ctx context.Context, opts storage.ListOptions) ([]*api.Report, error) {
	query := selectColumns + " WHERE true"
	var args []any
	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		args = append(args, tenantID)
		query += fmt.Sprintf(" AND tenant_id = $%d", len(args))
	}
	if opts.VehicleID != "" {
		args = append(args, opts.VehicleID)
		query += fmt.Sprintf(" AND vehicle_id = $%d", len(args))
	}
	args = append(args, opts.EffectiveLimit())
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	defer rows.Close()

	reports := []*api.Report{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	return reports, nil
}

// DeleteReport removes a report.
func (s *Store) DeleteReport(ctx context.Context, id string) error {
	query := "DELETE FROM reports WHERE id = $1"
	args := []any{id}
	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}

	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting report: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanReport(row pgx.Row) (*api.Report, error) {
	var (
		r                     api.Report
		serversJSON, callJSON []byte
	)
	err := row.Scan(
		&r.ID, &r.VehicleID, &r.Query, &r.Language, &r.Model,
		&serversJSON, &r.Analysis, &r.Content, &callJSON,
		&r.Usage.InputTokens, &r.Usage.OutputTokens, &r.Usage.TotalTokens,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(serversJSON, &r.Servers); err != nil {
		return nil, fmt.Errorf("unmarshaling servers: %w", err)
	}
	if err := json.Unmarshal(callJSON, &r.ToolCalls); err != nil {
		return nil, fmt.Errorf("unmarshaling tool calls: %w", err)
	}
	if len(r.ToolCalls) == 0 {
		r.ToolCalls = nil
	}
	return &r, nil
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
