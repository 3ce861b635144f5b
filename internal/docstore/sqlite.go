package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLite is the Store backed by a single SQLite database. Concrete type, not
// an interface. All methods are safe for concurrent use.
type SQLite struct {
	db *sql.DB
	mu sync.RWMutex // Protects all database operations

	hub *hub

	commitMu sync.RWMutex
	onCommit []func(Document)
}

var _ Store = (*SQLite)(nil)

// Open creates a store at dbPath. ":memory:" gives a private in-memory
// database, which is what the tests use.
func Open(dbPath string) (*SQLite, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// Shared cache so every pooled connection sees the same database.
		// The unique name keeps separate Open calls isolated from each other.
		connStr = "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
		if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}

	s := &SQLite{db: db}
	s.hub = newHub()
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *SQLite) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		version INTEGER NOT NULL,
		data TEXT NOT NULL,
		created_ns INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(collection, created_ns DESC, id DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close cancels every subscription and closes the database.
func (s *SQLite) Close() error {
	s.hub.closeAll()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// OnCommit registers fn to run after every successful write, outside the
// store lock. The change bus uses it to publish local writes.
func (s *SQLite) OnCommit(fn func(Document)) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.onCommit = append(s.onCommit, fn)
}

func (s *SQLite) committed(doc Document) {
	s.hub.publish(doc)
	s.commitMu.RLock()
	hooks := append([]func(Document){}, s.onCommit...)
	s.commitMu.RUnlock()
	for _, fn := range hooks {
		fn(doc)
	}
}

// Get returns one document or ErrNotFound.
func (s *SQLite) Get(ctx context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, err := getDoc(ctx, s.db, collection, id)
	if err != nil {
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDoc(ctx context.Context, q queryer, collection, id string) (Document, error) {
	row := q.QueryRowContext(ctx, `
		SELECT collection, id, version, data, created_ns, updated_at
		FROM documents WHERE collection = ? AND id = ?`, collection, id)
	doc, err := scanDoc(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return doc, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDoc(r rowScanner) (Document, error) {
	var (
		doc       Document
		data      string
		createdNs int64
	)
	if err := r.Scan(&doc.Collection, &doc.ID, &doc.Version, &data, &createdNs, &doc.UpdatedAt); err != nil {
		return Document{}, err
	}
	doc.Data = json.RawMessage(data)
	if createdNs != 0 {
		doc.CreatedAt = time.Unix(0, createdNs)
	}
	return doc, nil
}

// Add inserts a new document. The id is written into the body's "id" field.
func (s *SQLite) Add(ctx context.Context, collection, id string, data any) (Document, error) {
	if id == "" {
		id = uuid.NewString()
	}
	body, err := toBody(data)
	if err != nil {
		return Document{}, fmt.Errorf("add %s: %w", collection, err)
	}
	body["id"] = id

	s.mu.Lock()
	doc, err := s.write(ctx, collection, id, body, false)
	s.mu.Unlock()
	if err != nil {
		return Document{}, fmt.Errorf("add %s/%s: %w", collection, id, err)
	}
	s.committed(doc)
	return doc, nil
}

// Set creates or replaces a document, bumping its version.
func (s *SQLite) Set(ctx context.Context, collection, id string, data any) (Document, error) {
	if id == "" {
		return Document{}, fmt.Errorf("set %s: empty id", collection)
	}
	body, err := toBody(data)
	if err != nil {
		return Document{}, fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	body["id"] = id

	s.mu.Lock()
	doc, err := s.write(ctx, collection, id, body, true)
	s.mu.Unlock()
	if err != nil {
		return Document{}, fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	s.committed(doc)
	return doc, nil
}

// write stores body. Caller holds s.mu.
func (s *SQLite) write(ctx context.Context, collection, id string, body map[string]any, upsert bool) (Document, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Document{}, err
	}
	now := time.Now().UTC()
	created := createdNanos(body)

	stmt := `
		INSERT INTO documents (collection, id, version, data, created_ns, updated_at)
		VALUES (?, ?, 1, ?, ?, ?)`
	if upsert {
		stmt += `
		ON CONFLICT(collection, id) DO UPDATE SET
			version = version + 1,
			data = excluded.data,
			created_ns = excluded.created_ns,
			updated_at = excluded.updated_at`
	}
	if _, err := s.db.ExecContext(ctx, stmt, collection, id, string(raw), created, now); err != nil {
		return Document{}, err
	}
	return getDoc(ctx, s.db, collection, id)
}

// Mutate applies patch atomically to an existing document.
func (s *SQLite) Mutate(ctx context.Context, collection, id string, patch Patch) (Document, error) {
	s.mu.Lock()
	doc, err := s.mutate(ctx, collection, id, patch)
	s.mu.Unlock()
	if err != nil {
		return Document{}, fmt.Errorf("mutate %s/%s: %w", collection, id, err)
	}
	s.committed(doc)
	return doc, nil
}

func (s *SQLite) mutate(ctx context.Context, collection, id string, patch Patch) (Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, err
	}
	defer tx.Rollback()

	cur, err := getDoc(ctx, tx, collection, id)
	if err != nil {
		return Document{}, err
	}
	body := map[string]any{}
	if err := json.Unmarshal(cur.Data, &body); err != nil {
		return Document{}, fmt.Errorf("decode body: %w", err)
	}
	if err := patch.apply(body); err != nil {
		return Document{}, err
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return Document{}, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE documents SET version = version + 1, data = ?, created_ns = ?, updated_at = ?
		WHERE collection = ? AND id = ?`,
		string(raw), createdNanos(body), time.Now().UTC(), collection, id)
	if err != nil {
		return Document{}, err
	}
	doc, err := getDoc(ctx, tx, collection, id)
	if err != nil {
		return Document{}, err
	}
	if err := tx.Commit(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Delete removes a document. Deleting a missing document returns ErrNotFound.
func (s *SQLite) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete %s/%s: %w", collection, id, ErrNotFound)
	}
	s.committed(Document{Collection: collection, ID: id, Deleted: true, UpdatedAt: time.Now().UTC()})
	return nil
}

// QueryPage returns up to q.Limit documents after q.Cursor.
func (s *SQLite) QueryPage(ctx context.Context, q Query) (Page, error) {
	if q.Limit <= 0 {
		return Page{}, fmt.Errorf("query %s: limit must be positive", q.Collection)
	}
	where, args, err := filterClause(q.Filter)
	if err != nil {
		return Page{}, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	key, err := orderKey(q.OrderBy)
	if err != nil {
		return Page{}, fmt.Errorf("query %s: %w", q.Collection, err)
	}

	cmp, dir := ">", "ASC"
	if q.Descending {
		cmp, dir = "<", "DESC"
	}

	sqlText := `SELECT collection, id, version, data, created_ns, updated_at FROM documents WHERE collection = ?` + where
	params := append([]any{q.Collection}, args...)
	if q.Cursor != "" {
		c, err := decodeCursor(q.Cursor)
		if err != nil {
			return Page{}, fmt.Errorf("query %s: %w", q.Collection, err)
		}
		sqlText += fmt.Sprintf(` AND (%s %s ? OR (%s = ? AND id %s ?))`, key, cmp, key, cmp)
		params = append(params, c.Key, c.Key, c.ID)
	}
	sqlText += fmt.Sprintf(` ORDER BY %s %s, id %s LIMIT ?`, key, dir, dir)
	params = append(params, q.Limit)

	s.mu.RLock()
	docs, err := s.queryDocs(ctx, sqlText, params...)
	s.mu.RUnlock()
	if err != nil {
		return Page{}, fmt.Errorf("query %s: %w", q.Collection, err)
	}

	page := Page{Docs: docs}
	if len(docs) == q.Limit {
		last := docs[len(docs)-1]
		k, err := s.sortValue(ctx, last, key)
		if err != nil {
			return Page{}, fmt.Errorf("query %s: cursor: %w", q.Collection, err)
		}
		page.Cursor = encodeCursor(cursor{Key: k, ID: last.ID})
	}
	return page, nil
}

// Scan returns every document in the collection that matches filter.
func (s *SQLite) Scan(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	where, args, err := filterClause(filter)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", collection, err)
	}
	sqlText := `SELECT collection, id, version, data, created_ns, updated_at FROM documents WHERE collection = ?` +
		where + ` ORDER BY created_ns DESC, id DESC`

	s.mu.RLock()
	defer s.mu.RUnlock()
	docs, err := s.queryDocs(ctx, sqlText, append([]any{collection}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", collection, err)
	}
	return docs, nil
}

func (s *SQLite) queryDocs(ctx context.Context, sqlText string, args ...any) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDoc(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLite) sortValue(ctx context.Context, doc Document, key string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var v any
	err := s.db.QueryRowContext(ctx,
		`SELECT `+key+` FROM documents WHERE collection = ? AND id = ?`,
		doc.Collection, doc.ID).Scan(&v)
	return v, err
}

// Refresh re-reads a document and delivers it to local subscribers without
// running commit hooks. The change bus calls it for writes made by other
// processes sharing the database file.
func (s *SQLite) Refresh(ctx context.Context, collection, id string) error {
	s.mu.RLock()
	doc, err := getDoc(ctx, s.db, collection, id)
	s.mu.RUnlock()
	if errors.Is(err, ErrNotFound) {
		s.hub.publish(Document{Collection: collection, ID: id, Deleted: true, UpdatedAt: time.Now().UTC()})
		return nil
	}
	if err != nil {
		return fmt.Errorf("refresh %s/%s: %w", collection, id, err)
	}
	s.hub.publish(doc)
	return nil
}

// Subscribe streams documents of collection matching filter. The first
// delivery holds every current match; later ones hold documents changed
// since the previous delivery. Cancel ctx or call Close to stop.
func (s *SQLite) Subscribe(ctx context.Context, collection string, filter Filter) (*Subscription, error) {
	if _, _, err := filterClause(filter); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}
	sub := newSubscription(collection, filter, s.hub.remove)
	// Register before the initial scan so no commit falls between the two.
	s.hub.add(sub)
	initial, err := s.Scan(ctx, collection, filter)
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}
	sub.push(initial...)
	sub.start(ctx)
	return sub, nil
}

func toBody(data any) (map[string]any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	body := map[string]any{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("body must be a JSON object: %w", err)
	}
	return body, nil
}

// createdNanos promotes the body's "createdAt" timestamp into an integer so
// ordering does not depend on RFC 3339 string layout.
func createdNanos(body map[string]any) int64 {
	s, ok := body["createdAt"].(string)
	if !ok {
		return 0
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil || t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func orderKey(field string) (string, error) {
	switch field {
	case "":
		return "id", nil
	case "createdAt":
		return "created_ns", nil
	}
	if err := validField(field); err != nil {
		return "", err
	}
	return "json_extract(data, '$." + field + "')", nil
}

func filterClause(f Filter) (string, []any, error) {
	if len(f) == 0 {
		return "", nil, nil
	}
	var (
		b    strings.Builder
		args []any
	)
	for field, v := range f {
		if err := validField(field); err != nil {
			return "", nil, err
		}
		b.WriteString(" AND json_extract(data, '$." + field + "') = ?")
		if bv, ok := v.(bool); ok {
			// json_extract yields 0/1 for JSON booleans.
			if bv {
				v = 1
			} else {
				v = 0
			}
		}
		args = append(args, v)
	}
	return b.String(), args, nil
}
