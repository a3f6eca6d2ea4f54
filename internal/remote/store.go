// Package remote adapts the backend real-time document store. The sync
// core only depends on the Store interface; Firestore backs it in
// production and Memory backs it in tests and offline runs.
package remote

import "context"

// Doc is one document in a snapshot or get result.
type Doc struct {
	ID     string
	Fields map[string]any
}

// Snapshot is a full point-in-time result set for a subscribed query. The
// store pushes complete snapshots, not diffs; reconciliation recomputes
// the merge from scratch on every push.
type Snapshot struct {
	Docs []Doc
}

// Query selects either the rooms a user participates in or the messages of
// one room, ordered ascending by the given field.
type Query struct {
	Collection    string
	ArrayContains *Condition
	OrderBy       string
}

// Condition is an array-contains filter.
type Condition struct {
	Field string
	Value string
}

// RoomsFor selects the rooms where uid is a participant.
func RoomsFor(uid string) Query {
	return Query{
		Collection:    CollectionRooms,
		ArrayContains: &Condition{Field: FieldParticipants, Value: uid},
	}
}

// MessagesIn selects a room's messages ordered by timestamp ascending.
func MessagesIn(roomID string) Query {
	return Query{
		Collection: MessagesCollection(roomID),
		OrderBy:    FieldTimestamp,
	}
}

// Store is the contract the sync core needs from the backend document
// store. Every call is a suspension point; implementations must be safe
// for concurrent use.
type Store interface {
	// Subscribe opens a live subscription for q. The returned channel
	// receives a full snapshot on every relevant change (including one
	// initial snapshot) and is closed after cancel is called. Callers must
	// call cancel when the subscription is no longer of interest.
	Subscribe(ctx context.Context, q Query) (<-chan Snapshot, func(), error)

	// Get fetches a single document. ok is false when the document does
	// not exist; that is not an error.
	Get(ctx context.Context, path string) (doc Doc, ok bool, err error)

	// Upsert writes fields to a document, creating it if needed. With
	// merge, only the given fields are touched; concurrent updates to
	// other fields are preserved.
	Upsert(ctx context.Context, path string, fields map[string]any, merge bool) error

	// Add creates a document with a store-assigned id in a collection and
	// returns that id.
	Add(ctx context.Context, collection string, fields map[string]any) (string, error)

	// UpdateFields applies a field-level update to an existing document.
	UpdateFields(ctx context.Context, path string, fields map[string]any) error

	// Close releases the underlying client.
	Close() error
}
