package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/saakshy/saakshy-backend/pkg/enums"
	"github.com/saakshy/saakshy-backend/pkg/outbox"
	"github.com/saakshy/saakshy-backend/pkg/outbox/payloads"
)

// eventEmitter is the part of outbox.Service the hook needs.
type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// NewOutboxHook queues one record_event_appended message per appended event in
// the same transaction as the append, so a message exists iff the event does.
func NewOutboxHook(emitter eventEmitter) AppendHook {
	return func(ctx context.Context, tx *gorm.DB, appended []Event) error {
		if len(appended) == 0 {
			return nil
		}
		recordID := appended[0].RecordID
		aggregateID, err := uuid.Parse(recordID)
		if err != nil {
			return fmt.Errorf("outbox hook: %w", err)
		}
		history, err := NewGormStore(tx).Load(ctx, recordID)
		if err != nil {
			return err
		}
		view, err := Project(history)
		if err != nil {
			return fmt.Errorf("outbox hook: project %s: %w", recordID, err)
		}

		for _, event := range appended {
			authenticated := event.ActorID != CounterpartyActorID && event.ActorID != SystemActorID
			err := emitter.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventRecordEventAppended,
				AggregateType: enums.AggregateRecord,
				AggregateID:   aggregateID,
				Actor:         &outbox.ActorRef{ID: event.ActorID, Authenticated: authenticated},
				OccurredAt:    event.Timestamp,
				Data: payloads.RecordEventAppendedEvent{
					RecordID:            aggregateID,
					Seq:                 event.Seq,
					Type:                event.Type,
					Hash:                event.Hash,
					Status:              statusAt(history, event.Seq),
					RemainingAmount:     view.RemainingAmount.StringFixed(2),
					CreatorID:           view.CreatorID,
					CounterpartyContact: view.CounterpartyContact,
				},
			})
			if err != nil {
				return fmt.Errorf("outbox hook: emit seq %d: %w", event.Seq, err)
			}
		}
		return nil
	}
}

// statusAt projects the prefix of history ending at seq.
func statusAt(history []Event, seq int64) enums.RecordStatus {
	if seq < 1 || int(seq) > len(history) {
		return ""
	}
	view, err := Project(history[:seq])
	if err != nil {
		return ""
	}
	return view.Status
}
