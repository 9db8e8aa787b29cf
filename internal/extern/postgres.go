package extern

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saltyorg/opsboard/internal/apperr"
)

const defaultPostgresSchema = "public"

type postgresSource struct {
	pool *pgxpool.Pool
}

func openPostgres(ctx context.Context, databaseURL string, maxConns int) (source, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, apperr.BadRequest("invalid databaseUrl: %v", err)
	}
	cfg.MaxConns = int32(maxConns)
	cfg.MinConns = 0
	cfg.ConnConfig.RuntimeParams["application_name"] = "opsboard"

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, apperr.DatabaseConnection(err)
	}
	return &postgresSource{pool: pool}, nil
}

func postgresSchema(schema string) string {
	if schema == "" {
		return defaultPostgresSchema
	}
	return schema
}

func (p *postgresSource) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *postgresSource) TableExists(ctx context.Context, schema, table string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)
	`, postgresSchema(schema), table).Scan(&exists)
	return exists, err
}

func (p *postgresSource) SelectAll(ctx context.Context, schema, table string) ([]map[string]any, error) {
	ident := pgx.Identifier{postgresSchema(schema), table}
	rows, err := p.pool.Query(ctx, "SELECT * FROM "+ident.Sanitize())
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToMap)
}

func (p *postgresSource) ListTables(ctx context.Context, schema string) (string, []string, error) {
	schema = postgresSchema(schema)
	rows, err := p.pool.Query(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`, schema)
	if err != nil {
		return "", nil, err
	}
	tables, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return "", nil, err
	}
	return schema, tables, nil
}

func (p *postgresSource) Close() {
	p.pool.Close()
}
