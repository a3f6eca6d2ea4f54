package remote

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Firestore implements Store on Google Cloud Firestore.
type Firestore struct {
	client *firestore.Client
	logger *zap.Logger
}

// NewFirestore creates a Firestore-backed store. credentialsFile may be
// empty to use application default credentials.
func NewFirestore(ctx context.Context, projectID, credentialsFile string, logger *zap.Logger) (*Firestore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Firestore{client: client, logger: logger}, nil
}

// Subscribe opens a Firestore snapshot listener for q and adapts it to the
// Store contract. The listener is released when cancel is called or ctx is
// done.
func (f *Firestore) Subscribe(ctx context.Context, q Query) (<-chan Snapshot, func(), error) {
	query, err := f.buildQuery(q)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan Snapshot, 1)
	iter := query.Snapshots(ctx)

	go func() {
		defer close(ch)
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err != nil {
				if grpcstatus.Code(err) != codes.Canceled {
					f.logger.Error("snapshot listener failed",
						zap.String("collection", q.Collection), zap.Error(err))
				}
				return
			}
			docs, err := snap.Documents.GetAll()
			if err != nil {
				f.logger.Error("read snapshot documents",
					zap.String("collection", q.Collection), zap.Error(err))
				continue
			}
			out := Snapshot{Docs: make([]Doc, 0, len(docs))}
			for _, d := range docs {
				out.Docs = append(out.Docs, Doc{ID: d.Ref.ID, Fields: d.Data()})
			}
			select {
			case ch <- out:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, cancel, nil
}

func (f *Firestore) buildQuery(q Query) (firestore.Query, error) {
	if q.Collection == "" {
		return firestore.Query{}, fmt.Errorf("query has no collection")
	}
	col := f.client.Collection(q.Collection)
	if col == nil {
		return firestore.Query{}, fmt.Errorf("invalid collection path %q", q.Collection)
	}
	query := col.Query
	if q.ArrayContains != nil {
		query = query.Where(q.ArrayContains.Field, "array-contains", q.ArrayContains.Value)
	}
	if q.OrderBy != "" {
		query = query.OrderBy(q.OrderBy, firestore.Asc)
	}
	return query, nil
}

func (f *Firestore) Get(ctx context.Context, path string) (Doc, bool, error) {
	snap, err := f.client.Doc(path).Get(ctx)
	if grpcstatus.Code(err) == codes.NotFound {
		return Doc{}, false, nil
	}
	if err != nil {
		return Doc{}, false, fmt.Errorf("get %s: %w", path, err)
	}
	return Doc{ID: snap.Ref.ID, Fields: snap.Data()}, true, nil
}

func (f *Firestore) Upsert(ctx context.Context, path string, fields map[string]any, merge bool) error {
	var opts []firestore.SetOption
	if merge {
		opts = append(opts, firestore.MergeAll)
	}
	if _, err := f.client.Doc(path).Set(ctx, fields, opts...); err != nil {
		return fmt.Errorf("upsert %s: %w", path, err)
	}
	return nil
}

func (f *Firestore) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	ref, _, err := f.client.Collection(collection).Add(ctx, fields)
	if err != nil {
		return "", fmt.Errorf("add to %s: %w", collection, err)
	}
	return ref.ID, nil
}

func (f *Firestore) UpdateFields(ctx context.Context, path string, fields map[string]any) error {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	if _, err := f.client.Doc(path).Update(ctx, updates); err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	return nil
}

func (f *Firestore) Close() error {
	return f.client.Close()
}
