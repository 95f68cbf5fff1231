package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite. It exists for local
// runs and tests; the schema mirrors the Postgres layout.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS collections (
	name       TEXT PRIMARY KEY,
	definition TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	properties TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (collection, id)
);

CREATE TABLE IF NOT EXISTS document_vectors (
	collection TEXT NOT NULL,
	doc_id     TEXT NOT NULL,
	name       TEXT NOT NULL,
	embedding  TEXT NOT NULL,
	PRIMARY KEY (collection, doc_id, name)
);

CREATE TABLE IF NOT EXISTS links (
	collection TEXT NOT NULL,
	from_id    TEXT NOT NULL,
	relation   TEXT NOT NULL,
	to_id      TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (collection, from_id, relation, to_id)
);

CREATE INDEX IF NOT EXISTS idx_links_from ON links(collection, from_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	var props string
	err := s.db.QueryRowContext(ctx,
		`SELECT properties FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&props)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get %s/%s", collection, id)
	}
	return &Document{ID: id, Collection: collection, Properties: []byte(props)}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, collection string, doc Document) error {
	// Document and vector rows land atomically: a partial Put would turn the
	// redelivery into an ErrConflict absorb with the vectors lost for good.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin put")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (collection, id, properties) VALUES (?, ?, ?)`,
		collection, doc.ID, string(doc.Properties),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") ||
			strings.Contains(err.Error(), "constraint failed") {
			return ErrConflict
		}
		return eris.Wrapf(err, "sqlite: put %s/%s", collection, doc.ID)
	}

	for name, embedding := range doc.Vectors {
		raw, mErr := json.Marshal(embedding)
		if mErr != nil {
			return eris.Wrap(mErr, "sqlite: encode vector")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO document_vectors (collection, doc_id, name, embedding) VALUES (?, ?, ?, ?)`,
			collection, doc.ID, name, string(raw),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: put vector %s/%s/%s", collection, doc.ID, name)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit put")
}

func (s *SQLiteStore) Link(ctx context.Context, collection, fromID, relation, toID string) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM documents WHERE collection = ? AND id = ?`,
		collection, fromID,
	).Scan(&exists)
	if err != nil {
		return eris.Wrap(err, "sqlite: link source check")
	}
	if exists == 0 {
		return ErrNotFound
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO links (collection, from_id, relation, to_id) VALUES (?, ?, ?, ?)`,
		collection, fromID, relation, toID,
	)
	return eris.Wrapf(err, "sqlite: link %s/%s -%s-> %s", collection, fromID, relation, toID)
}

func (s *SQLiteStore) Search(ctx context.Context, collection string, q SearchQuery) ([]Document, error) {
	query := `SELECT d.id, d.properties, COALESCE(v.embedding, '')
		FROM documents d
		LEFT JOIN document_vectors v
		  ON v.collection = d.collection AND v.doc_id = d.id AND v.name = ?
		WHERE d.collection = ?`
	args := []any{q.VectorName, collection}

	keys := make([]string, 0, len(q.Filter))
	for k := range q.Filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		query += ` AND json_extract(d.properties, '$.' || ?) = ?`
		args = append(args, k, q.Filter[k])
	}
	query += ` ORDER BY d.rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: search %s", collection)
	}
	defer rows.Close()

	type candidate struct {
		doc    Document
		vector []float32
	}
	var candidates []candidate
	for rows.Next() {
		var id, props, embedding string
		if err := rows.Scan(&id, &props, &embedding); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan search row")
		}
		c := candidate{doc: Document{ID: id, Collection: collection, Properties: []byte(props)}}
		if embedding != "" {
			if err := json.Unmarshal([]byte(embedding), &c.vector); err != nil {
				return nil, eris.Wrap(err, "sqlite: decode vector")
			}
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: search %s", collection)
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

func (s *SQLiteStore) EnsureCollection(ctx context.Context, def CollectionDefinition, overwrite bool) error {
	raw, err := json.Marshal(def)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode collection definition")
	}
	if overwrite {
		for _, del := range []string{
			`DELETE FROM document_vectors WHERE collection = ?`,
			`DELETE FROM links WHERE collection = ?`,
			`DELETE FROM documents WHERE collection = ?`,
			`DELETE FROM collections WHERE name = ?`,
		} {
			if _, err := s.db.ExecContext(ctx, del, def.Name); err != nil {
				return eris.Wrapf(err, "sqlite: reset collection %s", def.Name)
			}
		}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO collections (name, definition) VALUES (?, ?)`,
		def.Name, string(raw),
	)
	return eris.Wrapf(err, "sqlite: ensure collection %s", def.Name)
}
