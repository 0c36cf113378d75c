package ledger

import "context"

// Head is the last event of a record's chain.
type Head struct {
	Seq  int64
	Hash string
}

// EventStore persists record histories. Events are only ever appended.
type EventStore interface {
	// Append writes drafts atomically with contiguous seqs starting at expectedSeq,
	// computing each hash from its predecessor. It returns a conflict error when the
	// record's current head is not expectedSeq-1.
	Append(ctx context.Context, recordID string, expectedSeq int64, drafts ...Draft) ([]Event, error)
	// Load returns every event of the record ordered by seq. Unknown records yield an empty slice.
	Load(ctx context.Context, recordID string) ([]Event, error)
	LoadMany(ctx context.Context, recordIDs []string) (map[string][]Event, error)
	Head(ctx context.Context, recordID string) (Head, error)
	// FindVisibleRecordIDs returns records the actor created or, when contact is
	// non-empty, records naming contact as counterparty. Newest first.
	FindVisibleRecordIDs(ctx context.Context, actorID, contact string) ([]string, error)
	// ListRecordIDs pages through every record id in ascending order.
	ListRecordIDs(ctx context.Context, afterRecordID string, limit int) ([]string, error)
}
