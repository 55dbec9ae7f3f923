package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/docsuite/docflow/internal/db"
	"github.com/docsuite/docflow/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id                   TEXT PRIMARY KEY,
	filename             TEXT NOT NULL UNIQUE,
	category             TEXT NOT NULL DEFAULT 'processing',
	extracted_data       JSONB,
	text_content         TEXT,
	discrepancies        JSONB,
	reconciliation_notes TEXT,
	contract_id          TEXT REFERENCES documents(id),
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_documents_category ON documents(category);
CREATE INDEX IF NOT EXISTS idx_documents_contract_id ON documents(contract_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertDocument(ctx context.Context, fileID, filename string) (*model.Document, error) {
	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx,
		`INSERT INTO documents (id, filename, category, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (filename) DO UPDATE SET filename = EXCLUDED.filename
		 RETURNING `+documentColumns,
		fileID, filename, string(model.CategoryProcessing), now,
	)
	doc, err := scanPostgresDocument(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert document %s", fileID)
	}
	return doc, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, fileID string) (*model.Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, fileID)
	doc, err := scanPostgresDocument(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get document %s", fileID)
	}
	return doc, nil
}

func (s *PostgresStore) GetCachedDocument(ctx context.Context, fileID string, field model.CacheField) (*model.Document, error) {
	col, err := cacheColumn(field)
	if err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1 AND `+col+` IS NOT NULL`, fileID)
	doc, err := scanPostgresDocument(row)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get cached document %s", fileID)
	}
	return doc, nil
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, fileID string, update DocumentUpdate) error {
	if update.IsZero() {
		return nil
	}

	set, args, err := buildPostgresUpdate(update)
	if err != nil {
		return err
	}
	args = append(args, fileID)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin update document")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		fmt.Sprintf(`UPDATE documents SET %s WHERE id = $%d`, set, len(args)), args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update document %s", fileID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: document %s not found", fileID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit update document")
}

// buildPostgresUpdate renders the SET clause with $n placeholders in the
// same fixed field order as the SQLite store.
func buildPostgresUpdate(update DocumentUpdate) (string, []any, error) {
	var set string
	var args []any
	add := func(col string, val any) {
		if set != "" {
			set += ", "
		}
		args = append(args, val)
		set += fmt.Sprintf("%s = $%d", col, len(args))
	}

	if update.Category != nil {
		add("category", string(*update.Category))
	}
	if update.ExtractedData != nil {
		raw, err := json.Marshal(update.ExtractedData)
		if err != nil {
			return "", nil, eris.Wrap(err, "store: marshal extracted data")
		}
		add("extracted_data", raw)
	}
	if update.TextContent != nil {
		add("text_content", *update.TextContent)
	}
	if update.Discrepancies != nil {
		raw, err := json.Marshal(update.Discrepancies)
		if err != nil {
			return "", nil, eris.Wrap(err, "store: marshal discrepancies")
		}
		add("discrepancies", raw)
	}
	if update.ReconciliationNotes != nil {
		add("reconciliation_notes", *update.ReconciliationNotes)
	}
	if update.ContractID != nil {
		add("contract_id", *update.ContractID)
	}
	return set, args, nil
}

func (s *PostgresStore) ListContracts(ctx context.Context) ([]model.ContractRef, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, filename, COALESCE(text_content, '') FROM documents WHERE category = $1 ORDER BY created_at`,
		string(model.CategoryContract),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list contracts")
	}
	defer rows.Close()

	var contracts []model.ContractRef
	for rows.Next() {
		var c model.ContractRef
		if err := rows.Scan(&c.ID, &c.Filename, &c.Text); err != nil {
			return nil, eris.Wrap(err, "postgres: scan contract")
		}
		contracts = append(contracts, c)
	}
	return contracts, eris.Wrap(rows.Err(), "postgres: list contracts")
}

func (s *PostgresStore) ListPendingInvoices(ctx context.Context) ([]model.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE category = $1 AND extracted_data IS NOT NULL AND contract_id IS NULL
		 ORDER BY created_at`,
		string(model.CategoryInvoice),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending invoices")
	}
	defer rows.Close()
	return collectPostgresDocuments(rows, "postgres: list pending invoices")
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]model.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()
	return collectPostgresDocuments(rows, "postgres: list documents")
}

func (s *PostgresStore) ListIncompleteIDs(ctx context.Context) ([]string, error) {
	docs, err := s.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	return incompleteIDs(docs), nil
}

func scanPostgresDocument(row pgx.Row) (*model.Document, error) {
	var (
		doc           model.Document
		category      string
		extracted     []byte
		text          *string
		discrepancies []byte
		notes         *string
		contractID    *string
	)
	err := row.Scan(&doc.ID, &doc.Filename, &category, &extracted, &text,
		&discrepancies, &notes, &contractID, &doc.CreatedAt)
	if err != nil {
		return nil, err
	}

	doc.Category = model.Category(category)
	if text != nil {
		doc.TextContent = *text
	}
	if notes != nil {
		doc.ReconciliationNotes = *notes
	}
	if contractID != nil {
		doc.ContractID = *contractID
	}
	if len(extracted) > 0 {
		if err := json.Unmarshal(extracted, &doc.ExtractedData); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal extracted data")
		}
	}
	if len(discrepancies) > 0 {
		if err := json.Unmarshal(discrepancies, &doc.Discrepancies); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal discrepancies")
		}
	}
	return &doc, nil
}

func collectPostgresDocuments(rows pgx.Rows, op string) ([]model.Document, error) {
	var docs []model.Document
	for rows.Next() {
		doc, err := scanPostgresDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, op)
		}
		docs = append(docs, *doc)
	}
	return docs, eris.Wrap(rows.Err(), op)
}
