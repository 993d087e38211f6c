package repository

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lorekeeper/pkg/model"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteFileName is the database file created inside the storage directory
const SQLiteFileName = "knowledge.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS collections (
	name       TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	content    TEXT NOT NULL,
	metadata   TEXT NOT NULL,
	embedding  BLOB NOT NULL,
	PRIMARY KEY (collection, id)
);
`

// SQLite stores documents and their embeddings in a local database file and
// ranks them by brute-force cosine distance.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens the store. path is a directory that will hold the database
// file, or ":memory:" for a private in-memory database.
func NewSQLite(path string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, goerr.Wrap(err, "failed to create storage directory", goerr.V("path", path))
		}
		dsn = filepath.Join(path, SQLiteFileName)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite", goerr.V("dsn", dsn))
	}
	// A single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to initialize sqlite schema", goerr.V("dsn", dsn))
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) ensureCollection(ctx context.Context, q interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, collection string) error {
	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO collections (name, created_at) VALUES (?, ?)`,
		collection, time.Now().Unix())
	if err != nil {
		return goerr.Wrap(err, "failed to create collection", goerr.V("collection", collection))
	}
	return nil
}

func (s *SQLite) Upsert(ctx context.Context, collection string, docs []*model.Document) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if err := validateDocuments(collection, docs); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.ensureCollection(ctx, tx, collection); err != nil {
		return err
	}

	for _, doc := range docs {
		meta, err := json.Marshal(nonNilMetadata(doc.Metadata))
		if err != nil {
			return goerr.Wrap(err, "failed to marshal metadata", goerr.V("id", doc.ID))
		}

		_, err = tx.ExecContext(ctx, `
INSERT INTO documents (collection, id, content, metadata, embedding)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (collection, id) DO UPDATE SET
	content = excluded.content,
	metadata = excluded.metadata,
	embedding = excluded.embedding`,
			collection, doc.ID.String(), doc.Content, string(meta), encodeVector(doc.Embedding))
		if err != nil {
			return goerr.Wrap(err, "failed to upsert document",
				goerr.V("collection", collection),
				goerr.V("id", doc.ID))
		}
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit upsert", goerr.V("collection", collection))
	}
	return nil
}

func (s *SQLite) Query(ctx context.Context, collection string, vector []float32, limit int) ([]*model.SearchResult, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	if err := s.ensureCollection(ctx, s.db, collection); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, metadata, embedding FROM documents WHERE collection = ? ORDER BY id`,
		collection)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query documents", goerr.V("collection", collection))
	}
	defer rows.Close()

	var candidates []*model.Document
	for rows.Next() {
		var (
			id, content, meta string
			blob              []byte
		)
		if err := rows.Scan(&id, &content, &meta, &blob); err != nil {
			return nil, goerr.Wrap(err, "failed to scan document", goerr.V("collection", collection))
		}

		doc := &model.Document{
			ID:        model.DocumentID(id),
			Content:   content,
			Embedding: decodeVector(blob),
		}
		if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal metadata", goerr.V("id", id))
		}
		candidates = append(candidates, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate documents", goerr.V("collection", collection))
	}

	results, err := nearest(candidates, vector, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to rank documents", goerr.V("collection", collection))
	}
	return results, nil
}

func (s *SQLite) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM collections ORDER BY name`)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list collections")
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, goerr.Wrap(err, "failed to scan collection name")
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate collections")
	}
	return names, nil
}

func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return goerr.Wrap(err, "failed to close sqlite")
	}
	return nil
}

func nonNilMetadata(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
