package docstore

import (
	"context"
	"errors"
	"fmt"
	"log"

	"cloud.google.com/go/firestore"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewFirestoreClient uses Application Default Credentials when credentialsFile is empty.
func NewFirestoreClient(ctx context.Context, projectID, credentialsFile string) (*firestore.Client, error) {
	opts := []option.ClientOption{
		option.WithGRPCDialOption(grpc.WithStatsHandler(otelgrpc.NewClientHandler())),
	}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return client, nil
}

type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	doc := fromSnapshot(snap)
	return &doc, nil
}

func (s *FirestoreStore) Query(ctx context.Context, collection string, filters []Filter, order *OrderBy, limit int) ([]Document, error) {
	q := s.client.Collection(collection).Query
	for _, f := range filters {
		if !validOp(f.Op) {
			return nil, fmt.Errorf("%w: operator %q", ErrInvalidQuery, f.Op)
		}
		q = q.Where(f.Field, f.Op, f.Value)
	}
	if order != nil {
		dir := firestore.Asc
		if order.Desc {
			dir = firestore.Desc
		}
		q = q.OrderBy(order.Field, dir)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	it := q.Documents(ctx)
	defer it.Stop()

	var docs []Document
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", collection, err)
		}
		docs = append(docs, fromSnapshot(snap))
	}
	return docs, nil
}

func (s *FirestoreStore) Create(ctx context.Context, collection, id string, fields map[string]any) (string, error) {
	col := s.client.Collection(collection)
	ref := col.NewDoc()
	if id != "" {
		ref = col.Doc(id)
	}
	if _, err := ref.Create(ctx, toFirestore(fields)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return "", ErrAlreadyExists
		}
		return "", fmt.Errorf("create %s: %w", collection, err)
	}
	return ref.ID, nil
}

func (s *FirestoreStore) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}
	updates := make([]firestore.Update, 0, len(patch))
	for k, v := range patch {
		updates = append(updates, firestore.Update{Path: k, Value: toFirestoreValue(v)})
	}
	if _, err := s.client.Collection(collection).Doc(id).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *FirestoreStore) Subscribe(ctx context.Context, target Target, onChange func([]Document)) (func(), error) {
	if target.Collection == "" {
		return nil, fmt.Errorf("%w: subscription without collection", ErrInvalidQuery)
	}
	ctx, cancel := context.WithCancel(ctx)
	col := s.client.Collection(target.Collection)

	if target.DocID != "" {
		it := col.Doc(target.DocID).Snapshots(ctx)
		go func() {
			defer it.Stop()
			for {
				snap, err := it.Next()
				if err != nil {
					logSubscriptionEnd(target, err)
					return
				}
				if !snap.Exists() {
					onChange(nil)
					continue
				}
				onChange([]Document{fromSnapshot(snap)})
			}
		}()
		return cancel, nil
	}

	it := col.Snapshots(ctx)
	go func() {
		defer it.Stop()
		for {
			qs, err := it.Next()
			if err != nil {
				logSubscriptionEnd(target, err)
				return
			}
			snaps, err := qs.Documents.GetAll()
			if err != nil {
				log.Printf("subscription %s: reading snapshot: %v", target.Collection, err)
				continue
			}
			docs := make([]Document, 0, len(snaps))
			for _, snap := range snaps {
				docs = append(docs, fromSnapshot(snap))
			}
			onChange(docs)
		}
	}()
	return cancel, nil
}

func logSubscriptionEnd(target Target, err error) {
	if status.Code(err) == codes.Canceled || errors.Is(err, context.Canceled) || errors.Is(err, iterator.Done) {
		return
	}
	log.Printf("subscription %s/%s ended: %v", target.Collection, target.DocID, err)
}

func fromSnapshot(snap *firestore.DocumentSnapshot) Document {
	return Document{ID: snap.Ref.ID, Data: snap.Data(), UpdateTime: snap.UpdateTime}
}

func toFirestore(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = toFirestoreValue(v)
	}
	return out
}

func toFirestoreValue(v any) any {
	if _, ok := v.(serverTimestamp); ok {
		return firestore.ServerTimestamp
	}
	return v
}

func validOp(op string) bool {
	switch op {
	case "==", "!=", "<", "<=", ">", ">=", "in":
		return true
	}
	return false
}
