package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/saakshy/saakshy-backend/pkg/enums"
)

// LedgerEvent is one immutable, hash-chained entry in a record's history.
// Rows are inserted once and never updated or deleted.
type LedgerEvent struct {
	ID         uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	RecordID   uuid.UUID             `gorm:"column:record_id;type:uuid;not null;uniqueIndex:ux_ledger_events_record_seq,priority:1"`
	Seq        int64                 `gorm:"column:seq;not null;uniqueIndex:ux_ledger_events_record_seq,priority:2"`
	Type       enums.LedgerEventType `gorm:"column:type;type:text;not null"`
	ActorID    string                `gorm:"column:actor_id;type:text;not null"`
	Payload    json.RawMessage       `gorm:"column:payload;type:jsonb;not null"`
	PrevHash   string                `gorm:"column:prev_hash;type:char(64);not null"`
	Hash       string                `gorm:"column:hash;type:char(64);not null"`
	OccurredAt time.Time             `gorm:"column:occurred_at;not null"`
}

func (LedgerEvent) TableName() string { return "ledger_events" }

// LedgerRecord is the visibility index for a record, written with its created event.
type LedgerRecord struct {
	RecordID            uuid.UUID `gorm:"column:record_id;type:uuid;primaryKey"`
	CreatorID           string    `gorm:"column:creator_id;type:text;not null;index"`
	CounterpartyContact string    `gorm:"column:counterparty_contact;type:text;not null;index"`
	CreatedAt           time.Time `gorm:"column:created_at;not null"`
}

func (LedgerRecord) TableName() string { return "ledger_records" }
