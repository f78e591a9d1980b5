package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doctalk/doctalk/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS knowledge_bases (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	embedding_model TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id                TEXT PRIMARY KEY,
	knowledge_base_id TEXT NOT NULL REFERENCES knowledge_bases(id) ON DELETE CASCADE,
	filename          TEXT NOT NULL,
	text              TEXT NOT NULL,
	checksum          TEXT NOT NULL,
	status            TEXT NOT NULL,
	chunk_count       INTEGER NOT NULL DEFAULT 0,
	error             TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_kb ON documents(knowledge_base_id);
CREATE INDEX IF NOT EXISTS idx_documents_checksum ON documents(knowledge_base_id, checksum);
`

// NewPostgresPool connects to Postgres and ensures the schema exists
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return pool, nil
}

// NewPostgresRepositories bundles postgres-backed stores over one pool
func NewPostgresRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		KnowledgeBases: &PostgresKnowledgeBaseRepository{pool: pool},
		Documents:      &PostgresDocumentRepository{pool: pool},
	}
}

// PostgresKnowledgeBaseRepository stores knowledge bases in Postgres
type PostgresKnowledgeBaseRepository struct {
	pool *pgxpool.Pool
}

func (r *PostgresKnowledgeBaseRepository) Save(ctx context.Context, kb *models.KnowledgeBase) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO knowledge_bases (id, name, description, embedding_model, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description`,
		kb.ID, kb.Name, kb.Description, kb.EmbeddingModel, kb.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save knowledge base: %w", err)
	}
	return nil
}

func (r *PostgresKnowledgeBaseRepository) FindByID(ctx context.Context, id string) (*models.KnowledgeBase, error) {
	var kb models.KnowledgeBase
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, description, embedding_model, created_at
		FROM knowledge_bases WHERE id = $1`, id).
		Scan(&kb.ID, &kb.Name, &kb.Description, &kb.EmbeddingModel, &kb.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewError(models.ErrKindNotFound, "knowledge base not found: "+id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge base: %w", err)
	}
	return &kb, nil
}

func (r *PostgresKnowledgeBaseRepository) List(ctx context.Context) ([]*models.KnowledgeBase, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, embedding_model, created_at
		FROM knowledge_bases ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge bases: %w", err)
	}
	defer rows.Close()

	var out []*models.KnowledgeBase
	for rows.Next() {
		var kb models.KnowledgeBase
		if err := rows.Scan(&kb.ID, &kb.Name, &kb.Description, &kb.EmbeddingModel, &kb.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge base: %w", err)
		}
		out = append(out, &kb)
	}
	return out, rows.Err()
}

func (r *PostgresKnowledgeBaseRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM knowledge_bases WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete knowledge base: %w", err)
	}
	return nil
}

// PostgresDocumentRepository stores documents in Postgres
type PostgresDocumentRepository struct {
	pool *pgxpool.Pool
}

const documentColumns = `id, knowledge_base_id, filename, text, checksum, status, chunk_count, error, created_at, updated_at`

func scanDocument(row pgx.Row) (*models.Document, error) {
	var doc models.Document
	err := row.Scan(&doc.ID, &doc.KnowledgeBaseID, &doc.Filename, &doc.Text, &doc.Checksum,
		&doc.Status, &doc.ChunkCount, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *PostgresDocumentRepository) Save(ctx context.Context, doc *models.Document) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			chunk_count = EXCLUDED.chunk_count,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at`,
		doc.ID, doc.KnowledgeBaseID, doc.Filename, doc.Text, doc.Checksum,
		doc.Status, doc.ChunkCount, doc.Error, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

func (r *PostgresDocumentRepository) FindByID(ctx context.Context, id string) (*models.Document, error) {
	doc, err := scanDocument(r.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewError(models.ErrKindNotFound, "document not found: "+id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return doc, nil
}

func (r *PostgresDocumentRepository) FindByChecksum(ctx context.Context, kbID, checksum string) (*models.Document, error) {
	doc, err := scanDocument(r.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE knowledge_base_id = $1 AND checksum = $2 LIMIT 1`,
		kbID, checksum))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewError(models.ErrKindNotFound, "no document with matching checksum")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document by checksum: %w", err)
	}
	return doc, nil
}

func (r *PostgresDocumentRepository) ListByKnowledgeBase(ctx context.Context, kbID string) ([]*models.Document, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE knowledge_base_id = $1 ORDER BY created_at`, kbID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var out []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (r *PostgresDocumentRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (r *PostgresDocumentRepository) DeleteByKnowledgeBase(ctx context.Context, kbID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE knowledge_base_id = $1`, kbID)
	if err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}
