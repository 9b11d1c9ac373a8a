package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memSub struct {
	target   Target
	onChange func([]Document)
}

// MemoryStore keeps documents in process. Subscribers are notified synchronously
// after each write, outside the store's lock.
type MemoryStore struct {
	mu     sync.RWMutex
	cols   map[string]map[string]Document
	subs   map[int]memSub
	nextID int
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cols: make(map[string]map[string]Document),
		subs: make(map[int]memSub),
		now:  time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, collection, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.cols[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := copyDoc(doc)
	return &cp, nil
}

func (m *MemoryStore) Query(ctx context.Context, collection string, filters []Filter, order *OrderBy, limit int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, f := range filters {
		if !validOp(f.Op) {
			return nil, fmt.Errorf("%w: operator %q", ErrInvalidQuery, f.Op)
		}
	}

	m.mu.RLock()
	docs := make([]Document, 0, len(m.cols[collection]))
	for _, doc := range m.cols[collection] {
		if matchesAll(doc, filters) {
			docs = append(docs, copyDoc(doc))
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	if order != nil {
		sort.SliceStable(docs, func(i, j int) bool {
			c, _ := compare(docs[i].Data[order.Field], docs[j].Data[order.Field])
			if order.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (m *MemoryStore) Create(ctx context.Context, collection, id string, fields map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	if id == "" {
		id = uuid.NewString()
	}
	col, ok := m.cols[collection]
	if !ok {
		col = make(map[string]Document)
		m.cols[collection] = col
	}
	if _, exists := col[id]; exists {
		m.mu.Unlock()
		return "", ErrAlreadyExists
	}
	now := m.now()
	data := make(map[string]any, len(fields))
	for k, v := range fields {
		data[k] = m.resolve(v, now)
	}
	col[id] = Document{ID: id, Data: data, UpdateTime: now}
	m.mu.Unlock()

	m.notify(collection, id)
	return id, nil
}

func (m *MemoryStore) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	doc, ok := m.cols[collection][id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	now := m.now()
	data := copyDoc(doc).Data
	for k, v := range patch {
		data[k] = m.resolve(v, now)
	}
	m.cols[collection][id] = Document{ID: id, Data: data, UpdateTime: now}
	m.mu.Unlock()

	m.notify(collection, id)
	return nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, target Target, onChange func([]Document)) (func(), error) {
	if target.Collection == "" {
		return nil, fmt.Errorf("%w: subscription without collection", ErrInvalidQuery)
	}
	m.mu.Lock()
	m.nextID++
	subID := m.nextID
	m.subs[subID] = memSub{target: target, onChange: onChange}
	initial := m.snapshotLocked(target)
	m.mu.Unlock()

	onChange(initial)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, subID)
			m.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		unsubscribe()
	}()
	return unsubscribe, nil
}

func (m *MemoryStore) notify(collection, id string) {
	type delivery struct {
		fn   func([]Document)
		docs []Document
	}
	m.mu.RLock()
	var out []delivery
	for _, s := range m.subs {
		if s.target.Collection != collection {
			continue
		}
		if s.target.DocID != "" && s.target.DocID != id {
			continue
		}
		out = append(out, delivery{fn: s.onChange, docs: m.snapshotLocked(s.target)})
	}
	m.mu.RUnlock()

	for _, d := range out {
		d.fn(d.docs)
	}
}

func (m *MemoryStore) snapshotLocked(target Target) []Document {
	col := m.cols[target.Collection]
	if target.DocID != "" {
		doc, ok := col[target.DocID]
		if !ok {
			return nil
		}
		return []Document{copyDoc(doc)}
	}
	docs := make([]Document, 0, len(col))
	for _, doc := range col {
		docs = append(docs, copyDoc(doc))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

func (m *MemoryStore) resolve(v any, now time.Time) any {
	if _, ok := v.(serverTimestamp); ok {
		return now
	}
	return v
}

func copyDoc(doc Document) Document {
	data := make(map[string]any, len(doc.Data))
	for k, v := range doc.Data {
		data[k] = v
	}
	return Document{ID: doc.ID, Data: data, UpdateTime: doc.UpdateTime}
}

func matchesAll(doc Document, filters []Filter) bool {
	for _, f := range filters {
		if !matches(doc.Data[f.Field], f) {
			return false
		}
	}
	return true
}

func matches(v any, f Filter) bool {
	if f.Op == "in" {
		switch list := f.Value.(type) {
		case []string:
			for _, candidate := range list {
				if c, ok := compare(v, candidate); ok && c == 0 {
					return true
				}
			}
		case []any:
			for _, candidate := range list {
				if c, ok := compare(v, candidate); ok && c == 0 {
					return true
				}
			}
		}
		return false
	}

	c, ok := compare(v, f.Value)
	if !ok {
		return f.Op == "!="
	}
	switch f.Op {
	case "==":
		return c == 0
	case "!=":
		return c != 0
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	}
	return false
}

// compare orders values of the same kind. ok is false when the kinds differ.
func compare(a, b any) (int, bool) {
	if fa, okA := toFloat(a); okA {
		fb, okB := toFloat(b)
		if !okB {
			return 0, false
		}
		return cmpOrdered(fa, fb), true
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return cmpOrdered(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		default:
			return 1, true
		}
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func cmpOrdered[T int | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
