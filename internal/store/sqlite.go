package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/docsuite/docflow/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// sqlitePragmas are applied through the DSN so every pooled connection
// gets them, not just the one that happened to run a PRAGMA statement.
const sqlitePragmas = "_pragma=journal_mode(WAL)" +
	"&_pragma=busy_timeout(5000)" +
	"&_pragma=synchronous(NORMAL)" +
	"&_pragma=foreign_keys(1)"

// NewSQLite opens a SQLite database at the given path with WAL mode and
// foreign key enforcement on.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", dsn+sep+sqlitePragmas)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id                   TEXT PRIMARY KEY,
	filename             TEXT NOT NULL UNIQUE,
	category             TEXT NOT NULL DEFAULT 'processing',
	extracted_data       TEXT,
	text_content         TEXT,
	discrepancies        TEXT,
	reconciliation_notes TEXT,
	contract_id          TEXT REFERENCES documents(id),
	created_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_documents_category ON documents(category);
CREATE INDEX IF NOT EXISTS idx_documents_contract_id ON documents(contract_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const documentColumns = `id, filename, category, extracted_data, text_content, discrepancies, reconciliation_notes, contract_id, created_at`

func (s *SQLiteStore) UpsertDocument(ctx context.Context, fileID, filename string) (*model.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin upsert document")
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE filename = ?`, filename)
	doc, err := scanDocument(row)
	if err == nil {
		return doc, eris.Wrap(tx.Commit(), "sqlite: commit upsert document")
	}
	if !eris.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(err, "sqlite: lookup document %s", filename)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, filename, category, created_at) VALUES (?, ?, ?, ?)`,
		fileID, filename, string(model.CategoryProcessing), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert document %s", fileID)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit upsert document")
	}

	return &model.Document{
		ID:        fileID,
		Filename:  filename,
		Category:  model.CategoryProcessing,
		CreatedAt: now,
	}, nil
}

func (s *SQLiteStore) GetDocument(ctx context.Context, fileID string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, fileID)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get document %s", fileID)
	}
	return doc, nil
}

// cacheColumn maps a CacheField to its column name. The allowlist keeps
// field names out of string-built SQL.
func cacheColumn(field model.CacheField) (string, error) {
	switch field {
	case model.CacheFieldExtractedData:
		return "extracted_data", nil
	case model.CacheFieldTextContent:
		return "text_content", nil
	case model.CacheFieldReconciliationNotes:
		return "reconciliation_notes", nil
	default:
		return "", eris.Errorf("store: unknown cache field %q", field)
	}
}

func (s *SQLiteStore) GetCachedDocument(ctx context.Context, fileID string, field model.CacheField) (*model.Document, error) {
	col, err := cacheColumn(field)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ? AND `+col+` IS NOT NULL`, fileID)
	doc, err := scanDocument(row)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get cached document %s", fileID)
	}
	return doc, nil
}

func (s *SQLiteStore) UpdateDocument(ctx context.Context, fileID string, update DocumentUpdate) error {
	if update.IsZero() {
		return nil
	}

	set, args, err := buildUpdate(update)
	if err != nil {
		return err
	}
	args = append(args, fileID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin update document")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE documents SET `+set+` WHERE id = ?`, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update document %s", fileID)
	}
	if err := checkRowsAffected(res, "document", fileID); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit update document")
}

// buildUpdate renders the SET clause for a partial update using ?
// placeholders. Fields appear in a fixed order so queries stay testable.
func buildUpdate(update DocumentUpdate) (string, []any, error) {
	var set []byte
	var args []any
	add := func(col string, val any) {
		if len(set) > 0 {
			set = append(set, ", "...)
		}
		set = append(set, col...)
		set = append(set, " = ?"...)
		args = append(args, val)
	}

	if update.Category != nil {
		add("category", string(*update.Category))
	}
	if update.ExtractedData != nil {
		raw, err := json.Marshal(update.ExtractedData)
		if err != nil {
			return "", nil, eris.Wrap(err, "store: marshal extracted data")
		}
		add("extracted_data", string(raw))
	}
	if update.TextContent != nil {
		add("text_content", *update.TextContent)
	}
	if update.Discrepancies != nil {
		raw, err := json.Marshal(update.Discrepancies)
		if err != nil {
			return "", nil, eris.Wrap(err, "store: marshal discrepancies")
		}
		add("discrepancies", string(raw))
	}
	if update.ReconciliationNotes != nil {
		add("reconciliation_notes", *update.ReconciliationNotes)
	}
	if update.ContractID != nil {
		add("contract_id", *update.ContractID)
	}
	return string(set), args, nil
}

func (s *SQLiteStore) ListContracts(ctx context.Context) ([]model.ContractRef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, COALESCE(text_content, '') FROM documents WHERE category = ? ORDER BY created_at`,
		string(model.CategoryContract),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list contracts")
	}
	defer rows.Close()

	var contracts []model.ContractRef
	for rows.Next() {
		var c model.ContractRef
		if err := rows.Scan(&c.ID, &c.Filename, &c.Text); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contract")
		}
		contracts = append(contracts, c)
	}
	return contracts, eris.Wrap(rows.Err(), "sqlite: list contracts")
}

func (s *SQLiteStore) ListPendingInvoices(ctx context.Context) ([]model.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE category = ? AND extracted_data IS NOT NULL AND contract_id IS NULL
		 ORDER BY created_at`,
		string(model.CategoryInvoice),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending invoices")
	}
	defer rows.Close()
	return collectDocuments(rows, "sqlite: list pending invoices")
}

func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]model.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close()
	return collectDocuments(rows, "sqlite: list documents")
}

func (s *SQLiteStore) ListIncompleteIDs(ctx context.Context) ([]string, error) {
	docs, err := s.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	return incompleteIDs(docs), nil
}

// incompleteIDs selects documents worth reprocessing: stuck, failed,
// unclassifiable, and invoices that never matched a contract.
func incompleteIDs(docs []model.Document) []string {
	var ids []string
	for _, d := range docs {
		switch d.Category {
		case model.CategoryProcessing, model.CategoryFailed, model.CategoryUnknown, model.CategoryOther:
			ids = append(ids, d.ID)
		case model.CategoryInvoice:
			if d.MatchedContractID() == "" {
				ids = append(ids, d.ID)
			}
		}
	}
	return ids
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var (
		doc           model.Document
		category      string
		extracted     sql.NullString
		text          sql.NullString
		discrepancies sql.NullString
		notes         sql.NullString
		contractID    sql.NullString
	)
	err := row.Scan(&doc.ID, &doc.Filename, &category, &extracted, &text,
		&discrepancies, &notes, &contractID, &doc.CreatedAt)
	if err != nil {
		return nil, err
	}

	doc.Category = model.Category(category)
	doc.TextContent = text.String
	doc.ReconciliationNotes = notes.String
	doc.ContractID = contractID.String
	if extracted.Valid && extracted.String != "" {
		if err := json.Unmarshal([]byte(extracted.String), &doc.ExtractedData); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal extracted data")
		}
	}
	if discrepancies.Valid && discrepancies.String != "" {
		if err := json.Unmarshal([]byte(discrepancies.String), &doc.Discrepancies); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal discrepancies")
		}
	}
	return &doc, nil
}

func collectDocuments(rows *sql.Rows, op string) ([]model.Document, error) {
	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, op)
		}
		docs = append(docs, *doc)
	}
	return docs, eris.Wrap(rows.Err(), op)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "store: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Errorf("store: %s %s not found", entity, id)
	}
	return nil
}
