package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/saakshy/saakshy-backend/pkg/enums"
)

// RecordEventAppendedEvent announces a new fact in a record's history. Notification
// delivery and summary consumers key off Type and the resulting Status.
type RecordEventAppendedEvent struct {
	RecordID            uuid.UUID             `json:"record_id"`
	Seq                 int64                 `json:"seq"`
	Type                enums.LedgerEventType `json:"type"`
	Hash                string                `json:"hash"`
	Status              enums.RecordStatus    `json:"status"`
	RemainingAmount     string                `json:"remaining_amount"`
	CreatorID           string                `json:"creator_id"`
	CounterpartyContact string                `json:"counterparty_contact"`
}

// RecordIntegrityFailedEvent is raised once per record when the audit sweep finds a broken chain.
type RecordIntegrityFailedEvent struct {
	RecordID    uuid.UUID `json:"record_id"`
	FailedAtSeq int64     `json:"failed_at_seq"`
	Reason      string    `json:"reason"`
	DetectedAt  time.Time `json:"detected_at"`
}
