// Package docstore is the narrow document-database contract the storefront needs:
// get, filtered query, create, field-merge update and live subscriptions.
package docstore

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
	ErrInvalidQuery  = errors.New("invalid query")
)

type serverTimestamp struct{}

// ServerTimestamp as a field value is replaced by the store's clock on write.
var ServerTimestamp any = serverTimestamp{}

type Document struct {
	ID         string
	Data       map[string]any
	UpdateTime time.Time
}

type Filter struct {
	Field string
	Op    string // ==, !=, <, <=, >, >=, in
	Value any
}

func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: "==", Value: value}
}

type OrderBy struct {
	Field string
	Desc  bool
}

// Target selects what a subscription watches: a whole collection, or one document
// when DocID is set.
type Target struct {
	Collection string
	DocID      string
}

type Store interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, collection string, filters []Filter, order *OrderBy, limit int) ([]Document, error)
	// Create stores fields under id, or under a generated id when id is empty, and returns the id.
	Create(ctx context.Context, collection, id string, fields map[string]any) (string, error)
	Update(ctx context.Context, collection, id string, patch map[string]any) error
	// Subscribe calls onChange with the current state and again after every change until
	// the returned function is called or ctx ends.
	Subscribe(ctx context.Context, target Target, onChange func([]Document)) (func(), error)
}
