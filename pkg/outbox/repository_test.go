package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/saakshy/saakshy-backend/pkg/db/models"
	"github.com/saakshy/saakshy-backend/pkg/enums"
	"github.com/saakshy/saakshy-backend/pkg/logger"
	"github.com/saakshy/saakshy-backend/pkg/outbox/payloads"
)

func setupOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	ddl := []string{`
CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload BLOB NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`, `
CREATE TABLE outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json BLOB NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`}
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func appendedEvent(recordID uuid.UUID, seq int64, at time.Time) DomainEvent {
	return DomainEvent{
		EventType:     enums.EventRecordEventAppended,
		AggregateType: enums.AggregateRecord,
		AggregateID:   recordID,
		Actor:         &ActorRef{ID: "user-1", Authenticated: true},
		Data:          payloads.RecordEventAppendedEvent{RecordID: recordID, Seq: seq, Type: enums.LedgerEventPaymentAdded},
		OccurredAt:    at,
	}
}

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	ctx := context.Background()
	db := setupOutboxDB(t)
	svc := NewService(NewRepository(db), logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	recordID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, appendedEvent(recordID, 3, time.Now().UTC()))
	})
	require.NoError(t, err)

	rollback := errors.New("rollback")
	err = db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, svc.Emit(ctx, tx, appendedEvent(recordID, 4, time.Now().UTC())))
		return rollback
	})
	require.ErrorIs(t, err, rollback)

	var rows []models.OutboxEvent
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)

	envelope, err := DecodeEnvelope(rows[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, envelopeVersion, envelope.Version)
	assert.Equal(t, rows[0].ID.String(), envelope.EventID)
	assert.True(t, rows[0].Pending())
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, "user-1", envelope.Actor.ID)

	var data payloads.RecordEventAppendedEvent
	require.NoError(t, envelope.DecodeData(&data))
	assert.Equal(t, int64(3), data.Seq)

	assert.Error(t, svc.Emit(ctx, nil, appendedEvent(recordID, 5, time.Now())))
	bad := appendedEvent(recordID, 5, time.Now())
	bad.EventType = "reminder_sent"
	assert.Error(t, db.Transaction(func(tx *gorm.DB) error { return svc.Emit(ctx, tx, bad) }))
}

func TestEmitIfNotExistsDeduplicatesPerAggregate(t *testing.T) {
	ctx := context.Background()
	db := setupOutboxDB(t)
	svc := NewService(NewRepository(db), nil)
	recordID := uuid.New()

	failed := DomainEvent{
		EventType:     enums.EventRecordIntegrityFailed,
		AggregateType: enums.AggregateRecord,
		AggregateID:   recordID,
		Data:          payloads.RecordIntegrityFailedEvent{RecordID: recordID, FailedAtSeq: 2, Reason: "hash mismatch"},
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error { return svc.EmitIfNotExists(ctx, tx, failed) }))
	}

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	ctx := context.Background()
	db := setupOutboxDB(t)
	repo := NewRepository(db)
	svc := NewService(repo, nil)
	recordID := uuid.New()
	base := time.Now().UTC().Add(-time.Hour)

	for seq := int64(1); seq <= 3; seq++ {
		event := appendedEvent(recordID, seq, base.Add(time.Duration(seq)*time.Second))
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error { return svc.Emit(ctx, tx, event) }))
	}

	var batch []models.OutboxEvent
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		batch, err = repo.ClaimBatchTx(tx, 10, 3)
		return err
	}))
	require.Len(t, batch, 3)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		if err := repo.MarkPublishedTx(tx, batch[0].ID, time.Now()); err != nil {
			return err
		}
		if err := repo.RecordFailureTx(tx, batch[1].ID, errors.New("broker down")); err != nil {
			return err
		}
		return repo.ParkTx(tx, batch[2].ID, errors.New(strings.Repeat("x", 2000)), 3)
	}))

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		batch, err = repo.ClaimBatchTx(tx, 10, 3)
		return err
	}))
	require.Len(t, batch, 1, "published and terminal rows are not fetched again")
	assert.Equal(t, 1, batch[0].AttemptCount)
	require.NotNil(t, batch[0].LastError)
	assert.Equal(t, "broker down", *batch[0].LastError)

	var terminal models.OutboxEvent
	require.NoError(t, db.Where("attempt_count = ?", 3).First(&terminal).Error)
	require.NotNil(t, terminal.LastError)
	assert.Len(t, *terminal.LastError, maxDLQErrorLen)

	deleted, err := repo.DeletePublishedBefore(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	deleted, err = repo.DeletePublishedBefore(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestDLQRepositoryInsertAndFind(t *testing.T) {
	ctx := context.Background()
	db := setupOutboxDB(t)
	dlq := NewDLQRepository(db)
	eventID := uuid.New()
	msg := strings.Repeat("y", 1500)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return dlq.InsertTx(tx, models.OutboxDLQ{
			EventID:       eventID,
			EventType:     enums.EventRecordEventAppended,
			AggregateType: enums.AggregateRecord,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{"version":1}`),
			ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
			ErrorMessage:  &msg,
			AttemptCount:  10,
		})
	}))

	entry, err := dlq.FindByEventID(ctx, eventID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, entry.ErrorReason)
	require.NotNil(t, entry.ErrorMessage)
	assert.Len(t, *entry.ErrorMessage, maxDLQErrorLen)

	missing, err := dlq.FindByEventID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDeadLetterCopiesRow(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventRecordIntegrityFailed,
		AggregateType: enums.AggregateRecord,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"data":{}}`),
		AttemptCount:  9,
	}

	entry := DeadLetter(row, enums.OutboxDLQReasonNonRetryable, errors.New("unknown topic"), at)
	assert.Equal(t, row.ID, entry.EventID)
	assert.Equal(t, row.AggregateID, entry.AggregateID)
	assert.Equal(t, 9, entry.AttemptCount)
	assert.Equal(t, at, entry.FailedAt)
	require.NotNil(t, entry.ErrorMessage)
	assert.Equal(t, "unknown topic", *entry.ErrorMessage)

	assert.Nil(t, DeadLetter(row, enums.OutboxDLQReasonMaxAttempts, nil, at).ErrorMessage)
}

func TestDecodeEnvelopeRejectsIncompletePayloads(t *testing.T) {
	for _, raw := range []string{`not json`, `{"data":{}}`, `{"version":1}`} {
		_, err := DecodeEnvelope([]byte(raw))
		assert.Error(t, err, raw)
	}
}
