// Package docstore is the document database the client talks to.
//
// Documents are JSON objects grouped in named collections. The API mirrors
// what a hosted backend-as-a-service offers a client: paged queries ordered by
// a field, full collection scans, field-level mutations (increment, array
// union/remove, set) and push subscriptions that deliver changed documents.
//
// The SQLite implementation is the only one; it is safe for concurrent use.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("docstore: document not found")

// ErrInvalidField is returned for filter, order or patch field names that
// are not plain identifiers.
var ErrInvalidField = errors.New("docstore: invalid field name")

// Store is the document store contract consumed by the rest of the client.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	// Add creates a document. An empty id is replaced by a generated one.
	Add(ctx context.Context, collection, id string, data any) (Document, error)
	// Set creates or replaces a document.
	Set(ctx context.Context, collection, id string, data any) (Document, error)
	Mutate(ctx context.Context, collection, id string, patch Patch) (Document, error)
	Delete(ctx context.Context, collection, id string) error
	QueryPage(ctx context.Context, q Query) (Page, error)
	Scan(ctx context.Context, collection string, filter Filter) ([]Document, error)
	Subscribe(ctx context.Context, collection string, filter Filter) (*Subscription, error)
}

// Document is a stored JSON object.
type Document struct {
	Collection string
	ID         string
	Version    int64
	Data       json.RawMessage
	CreatedAt  time.Time // promoted from the body's "createdAt" field, zero if absent
	UpdatedAt  time.Time
	Deleted    bool // set on subscription deliveries for removed documents
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	if len(d.Data) == 0 {
		return fmt.Errorf("decode %s/%s: empty document", d.Collection, d.ID)
	}
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decode %s/%s: %w", d.Collection, d.ID, err)
	}
	return nil
}

// Filter matches documents whose top-level fields equal the given values.
// A nil Filter matches everything.
type Filter map[string]any

// Query selects one page of a collection.
type Query struct {
	Collection string
	Filter     Filter
	OrderBy    string // top-level field; "" orders by document id
	Descending bool
	Cursor     string // opaque, from a previous Page
	Limit      int
}

// Page is one query result plus the cursor for the next page. Cursor is empty
// when the page came back short.
type Page struct {
	Docs   []Document
	Cursor string
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validField(name string) error {
	if !fieldPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidField, name)
	}
	return nil
}
