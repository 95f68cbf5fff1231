package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store on a jsonb document layout.
type PostgresStore struct {
	pool Pool
}

// NewPostgres connects a pooled Postgres-backed store.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
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

// NewPostgresWithPool wraps an existing pool (tests use pgxmock here).
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS collections (
	name       TEXT PRIMARY KEY,
	definition JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	properties JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);

CREATE TABLE IF NOT EXISTS document_vectors (
	collection TEXT NOT NULL,
	doc_id     TEXT NOT NULL,
	name       TEXT NOT NULL,
	embedding  JSONB NOT NULL,
	PRIMARY KEY (collection, doc_id, name),
	FOREIGN KEY (collection, doc_id) REFERENCES documents (collection, id)
);

CREATE TABLE IF NOT EXISTS links (
	collection TEXT NOT NULL,
	from_id    TEXT NOT NULL,
	relation   TEXT NOT NULL,
	to_id      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, from_id, relation, to_id)
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	var props []byte
	err := s.pool.QueryRow(ctx,
		`SELECT properties FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&props)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get %s/%s", collection, id)
	}
	return &Document{ID: id, Collection: collection, Properties: props}, nil
}

func (s *PostgresStore) Put(ctx context.Context, collection string, doc Document) error {
	// Document and vector rows land atomically: a partial Put would turn the
	// redelivery into an ErrConflict absorb with the vectors lost for good.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin put")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO documents (collection, id, properties) VALUES ($1, $2, $3)`,
		collection, doc.ID, []byte(doc.Properties),
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: put %s/%s", collection, doc.ID)
	}

	for name, embedding := range doc.Vectors {
		raw, mErr := json.Marshal(embedding)
		if mErr != nil {
			return eris.Wrap(mErr, "postgres: encode vector")
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO document_vectors (collection, doc_id, name, embedding)
			 VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
			collection, doc.ID, name, raw,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: put vector %s/%s/%s", collection, doc.ID, name)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit put")
}

func (s *PostgresStore) Link(ctx context.Context, collection, fromID, relation, toID string) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE collection = $1 AND id = $2)`,
		collection, fromID,
	).Scan(&exists)
	if err != nil {
		return eris.Wrap(err, "postgres: link source check")
	}
	if !exists {
		return ErrNotFound
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO links (collection, from_id, relation, to_id)
		 VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
		collection, fromID, relation, toID,
	)
	return eris.Wrapf(err, "postgres: link %s/%s -%s-> %s", collection, fromID, relation, toID)
}

func (s *PostgresStore) Search(ctx context.Context, collection string, q SearchQuery) ([]Document, error) {
	sql := `SELECT d.id, d.properties, v.embedding
		FROM documents d
		LEFT JOIN document_vectors v
		  ON v.collection = d.collection AND v.doc_id = d.id AND v.name = $2
		WHERE d.collection = $1`
	args := []any{collection, q.VectorName}

	// Equality filters on top-level string properties.
	keys := make([]string, 0, len(q.Filter))
	for k := range q.Filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, k, q.Filter[k])
		sql += ` AND d.properties->>$` + strconv.Itoa(len(args)-1) + ` = $` + strconv.Itoa(len(args))
	}
	sql += ` ORDER BY d.created_at`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: search %s", collection)
	}
	defer rows.Close()

	type candidate struct {
		doc    Document
		vector []float32
	}
	var candidates []candidate
	for rows.Next() {
		var (
			id        string
			props     []byte
			embedding []byte
		)
		if err := rows.Scan(&id, &props, &embedding); err != nil {
			return nil, eris.Wrap(err, "postgres: scan search row")
		}
		c := candidate{doc: Document{ID: id, Collection: collection, Properties: props}}
		if len(embedding) > 0 {
			if err := json.Unmarshal(embedding, &c.vector); err != nil {
				return nil, eris.Wrap(err, "postgres: decode vector")
			}
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "postgres: search %s", collection)
	}

	if len(q.Vector) > 0 {
		sort.SliceStable(candidates, func(i, j int) bool {
			return CosineSimilarity(candidates[i].vector, q.Vector) >
				CosineSimilarity(candidates[j].vector, q.Vector)
		})
	}

	out := make([]Document, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.doc)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (s *PostgresStore) EnsureCollection(ctx context.Context, def CollectionDefinition, overwrite bool) error {
	raw, err := json.Marshal(def)
	if err != nil {
		return eris.Wrap(err, "postgres: encode collection definition")
	}
	if overwrite {
		for _, del := range []string{
			`DELETE FROM document_vectors WHERE collection = $1`,
			`DELETE FROM links WHERE collection = $1`,
			`DELETE FROM documents WHERE collection = $1`,
			`DELETE FROM collections WHERE name = $1`,
		} {
			if _, err := s.pool.Exec(ctx, del, def.Name); err != nil {
				return eris.Wrapf(err, "postgres: reset collection %s", def.Name)
			}
		}
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO collections (name, definition) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		def.Name, raw,
	)
	return eris.Wrapf(err, "postgres: ensure collection %s", def.Name)
}

// isUniqueViolation reports a primary-key conflict (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
