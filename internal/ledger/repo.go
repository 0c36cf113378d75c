package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"gorm.io/gorm"

	dbpkg "github.com/saakshy/saakshy-backend/pkg/db"
	"github.com/saakshy/saakshy-backend/pkg/db/models"
)

// AppendHook runs inside the append transaction after the events are inserted.
// Returning an error rolls the append back.
type AppendHook func(ctx context.Context, tx *gorm.DB, appended []Event) error

// GormStore is the relational EventStore. Seq uniqueness is enforced by the
// (record_id, seq) unique index, so concurrent appends cannot share a seq.
type GormStore struct {
	db    *gorm.DB
	hooks []AppendHook
	clock func() time.Time
}

// NewGormStore returns a store bound to the provided database.
func NewGormStore(db *gorm.DB, hooks ...AppendHook) *GormStore {
	return &GormStore{db: db, hooks: hooks, clock: time.Now}
}

// WithTx returns a copy of the store that runs on tx.
func (s *GormStore) WithTx(tx *gorm.DB) *GormStore {
	if tx == nil {
		return s
	}
	clone := *s
	clone.db = tx
	return &clone
}

func (s *GormStore) Append(ctx context.Context, recordID string, expectedSeq int64, drafts ...Draft) ([]Event, error) {
	if len(drafts) == 0 {
		return nil, fmt.Errorf("append requires at least one draft")
	}
	rid, err := uuid.Parse(recordID)
	if err != nil {
		return nil, validationError("recordId", "record id must be a uuid")
	}
	if expectedSeq < 1 {
		return nil, fmt.Errorf("expected seq must be positive, got %d", expectedSeq)
	}

	var appended []Event
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		head, err := headOf(tx, rid)
		if err != nil {
			return err
		}
		if head.Seq != expectedSeq-1 {
			return conflictError(recordID, expectedSeq, head.Seq)
		}

		rows := make([]models.LedgerEvent, 0, len(drafts))
		appended = make([]Event, 0, len(drafts))
		prev := head.Hash
		seq := expectedSeq
		for _, draft := range drafts {
			eventType := draft.Type()
			data, err := CanonicalPayload(draft.Payload)
			if err != nil {
				return err
			}
			hash, err := NextHash(prev, recordID, seq, eventType, draft.ActorID, data)
			if err != nil {
				return err
			}
			ts := draft.Timestamp
			if ts.IsZero() {
				ts = s.clock()
			}
			ts = ts.UTC().Truncate(time.Microsecond)

			rows = append(rows, models.LedgerEvent{
				ID:         uuid.New(),
				RecordID:   rid,
				Seq:        seq,
				Type:       eventType,
				ActorID:    draft.ActorID,
				Payload:    data,
				PrevHash:   prev,
				Hash:       hash,
				OccurredAt: ts,
			})
			appended = append(appended, Event{
				RecordID:  recordID,
				Seq:       seq,
				Type:      eventType,
				ActorID:   draft.ActorID,
				Payload:   draft.Payload,
				Data:      data,
				PrevHash:  prev,
				Hash:      hash,
				Timestamp: ts,
			})
			prev = hash
			seq++
		}

		if expectedSeq == 1 {
			if err := insertRecordIndex(tx, rid, appended[0]); err != nil {
				return err
			}
		}

		if err := tx.Create(&rows).Error; err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return conflictError(recordID, expectedSeq, head.Seq)
			}
			return fmt.Errorf("insert ledger events: %w", err)
		}

		for _, hook := range s.hooks {
			if err := hook(ctx, tx, appended); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appended, nil
}

func insertRecordIndex(tx *gorm.DB, rid uuid.UUID, created Event) error {
	payload, ok := created.Payload.(CreatedPayload)
	if !ok {
		return fmt.Errorf("first event of a record must be created, got %s", created.Type)
	}
	row := models.LedgerRecord{
		RecordID:            rid,
		CreatorID:           created.ActorID,
		CounterpartyContact: payload.CounterpartyContact,
		CreatedAt:           created.Timestamp,
	}
	if err := tx.Create(&row).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return conflictError(created.RecordID, 1, 1)
		}
		return fmt.Errorf("insert ledger record: %w", err)
	}
	return nil
}

func headOf(tx *gorm.DB, rid uuid.UUID) (Head, error) {
	var tail models.LedgerEvent
	res := tx.Select("seq", "hash").
		Where("record_id = ?", rid).
		Order("seq DESC").
		Limit(1).
		Find(&tail)
	if res.Error != nil {
		return Head{}, fmt.Errorf("read chain head: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return Head{Seq: 0, Hash: GenesisHash}, nil
	}
	return Head{Seq: tail.Seq, Hash: tail.Hash}, nil
}

func (s *GormStore) Load(ctx context.Context, recordID string) ([]Event, error) {
	rid, err := uuid.Parse(recordID)
	if err != nil {
		return []Event{}, nil
	}
	var rows []models.LedgerEvent
	if err := s.db.WithContext(ctx).
		Where("record_id = ?", rid).
		Order("seq ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load ledger events: %w", err)
	}
	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, eventFromRow(row))
	}
	return events, nil
}

func (s *GormStore) LoadMany(ctx context.Context, recordIDs []string) (map[string][]Event, error) {
	out := make(map[string][]Event, len(recordIDs))
	ids := make([]uuid.UUID, 0, len(recordIDs))
	for _, raw := range recordIDs {
		rid, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		ids = append(ids, rid)
	}
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.LedgerEvent
	if err := s.db.WithContext(ctx).
		Where("record_id IN ?", ids).
		Order("record_id ASC").
		Order("seq ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load ledger events: %w", err)
	}
	for _, row := range rows {
		event := eventFromRow(row)
		out[event.RecordID] = append(out[event.RecordID], event)
	}
	return out, nil
}

func (s *GormStore) Head(ctx context.Context, recordID string) (Head, error) {
	rid, err := uuid.Parse(recordID)
	if err != nil {
		return Head{Seq: 0, Hash: GenesisHash}, nil
	}
	return headOf(s.db.WithContext(ctx), rid)
}

func (s *GormStore) FindVisibleRecordIDs(ctx context.Context, actorID, contact string) ([]string, error) {
	query := s.db.WithContext(ctx).Model(&models.LedgerRecord{})
	switch {
	case actorID != "" && contact != "":
		query = query.Where("creator_id = ? OR counterparty_contact = ?", actorID, contact)
	case actorID != "":
		query = query.Where("creator_id = ?", actorID)
	case contact != "":
		query = query.Where("counterparty_contact = ?", contact)
	default:
		return []string{}, nil
	}
	var rows []models.LedgerRecord
	if err := query.Order("created_at DESC").Order("record_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find visible records: %w", err)
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.RecordID.String())
	}
	return ids, nil
}

func (s *GormStore) ListRecordIDs(ctx context.Context, afterRecordID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	query := s.db.WithContext(ctx).Model(&models.LedgerRecord{})
	if afterRecordID != "" {
		after, err := uuid.Parse(afterRecordID)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor %q: %w", afterRecordID, err)
		}
		query = query.Where("record_id > ?", after)
	}
	var rows []models.LedgerRecord
	if err := query.Order("record_id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.RecordID.String())
	}
	return ids, nil
}

// eventFromRow maps a stored row back to an Event. A payload that no longer
// decodes is left nil; VerifyChain reports the record instead of failing the load.
func eventFromRow(row models.LedgerEvent) Event {
	data := []byte(row.Payload)
	if canonical, err := jcs.Transform(data); err == nil {
		data = canonical
	}
	event := Event{
		RecordID:  row.RecordID.String(),
		Seq:       row.Seq,
		Type:      row.Type,
		ActorID:   row.ActorID,
		Data:      data,
		PrevHash:  row.PrevHash,
		Hash:      row.Hash,
		Timestamp: row.OccurredAt.UTC(),
	}
	if payload, err := DecodePayload(row.Type, data); err == nil {
		event.Payload = payload
	}
	return event
}
