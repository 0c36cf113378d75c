package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/saakshy/saakshy-backend/pkg/config"
	"github.com/saakshy/saakshy-backend/pkg/db"
	"github.com/saakshy/saakshy-backend/pkg/db/models"
	"github.com/saakshy/saakshy-backend/pkg/enums"
	"github.com/saakshy/saakshy-backend/pkg/logger"
	"github.com/saakshy/saakshy-backend/pkg/migrate"
	"github.com/saakshy/saakshy-backend/pkg/outbox"
	"github.com/saakshy/saakshy-backend/pkg/outbox/payloads"
	"github.com/saakshy/saakshy-backend/pkg/outbox/registry"
	pkgpubsub "github.com/saakshy/saakshy-backend/pkg/pubsub"
)

var _ pubSubClient = (*pkgpubsub.Client)(nil)

// harness runs the publisher against sqlite with the real repositories and
// registry; only Pub/Sub is faked.
type harness struct {
	t      *testing.T
	db     *db.Client
	outbox *outbox.Service
	broker *fakeBroker
	svc    *Service
}

func newHarness(t *testing.T, maxAttempts int) *harness {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	pool, err := conn.DB()
	require.NoError(t, err)
	pool.SetMaxOpenConns(1)
	require.NoError(t, migrate.AutoMigrateModels(conn))
	client := db.NewFromGorm(conn)
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{
		PubSub: config.PubSubConfig{LedgerTopic: "ledger", IntegrityTopic: "integrity"},
		Outbox: config.OutboxConfig{BatchSize: 10, PollIntervalMS: 10, MaxAttempts: maxAttempts},
	}
	topics, err := registry.NewEventRegistry(cfg.PubSub)
	require.NoError(t, err)

	broker := &fakeBroker{failures: map[string]int{}}
	svc, err := NewService(ServiceParams{
		Config:           cfg,
		Logger:           logger.New(logger.Options{ServiceName: "publisher-test", Output: io.Discard}),
		DB:               client,
		PubSub:           broker,
		Repository:       outbox.NewRepository(conn),
		Registry:         topics,
		PublisherFactory: broker.publisherFor,
		DLQRepository:    outbox.NewDLQRepository(conn),
	})
	require.NoError(t, err)

	return &harness{t: t, db: client, outbox: outbox.NewService(outbox.NewRepository(conn), nil), broker: broker, svc: svc}
}

func (h *harness) emit(event outbox.DomainEvent) {
	h.t.Helper()
	require.NoError(h.t, h.db.WithTx(context.Background(), func(tx *gorm.DB) error {
		return h.outbox.Emit(context.Background(), tx, event)
	}))
}

func (h *harness) drain() {
	h.t.Helper()
	_, err := h.svc.processBatch(context.Background())
	require.NoError(h.t, err)
}

func (h *harness) rows() []models.OutboxEvent {
	h.t.Helper()
	var rows []models.OutboxEvent
	require.NoError(h.t, h.db.DB().Order("created_at").Find(&rows).Error)
	return rows
}

func (h *harness) deadLetters() []models.OutboxDLQ {
	h.t.Helper()
	var entries []models.OutboxDLQ
	require.NoError(h.t, h.db.DB().Find(&entries).Error)
	return entries
}

func appended(recordID uuid.UUID, seq int64, at time.Time) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventRecordEventAppended,
		AggregateType: enums.AggregateRecord,
		AggregateID:   recordID,
		Actor:         &outbox.ActorRef{ID: "user-1", Authenticated: true},
		Data: payloads.RecordEventAppendedEvent{
			RecordID: recordID,
			Seq:      seq,
			Type:     enums.LedgerEventPaymentAdded,
			Status:   enums.RecordStatusConfirmed,
		},
		OccurredAt: at,
	}
}

func TestPublishesQueuedEventsInOrderWithAttributes(t *testing.T) {
	h := newHarness(t, 5)
	recordID := uuid.New()
	base := time.Now().UTC().Add(-time.Minute)
	h.emit(appended(recordID, 2, base))
	h.emit(appended(recordID, 3, base.Add(time.Second)))
	h.emit(outbox.DomainEvent{
		EventType:     enums.EventRecordIntegrityFailed,
		AggregateType: enums.AggregateRecord,
		AggregateID:   recordID,
		Data:          payloads.RecordIntegrityFailedEvent{RecordID: recordID, FailedAtSeq: 2, Reason: "hash mismatch"},
		OccurredAt:    base.Add(2 * time.Second),
	})

	h.drain()

	require.Len(t, h.broker.sent, 3)
	for _, msg := range h.broker.sent {
		assert.Equal(t, recordID.String(), msg.message.OrderingKey)
	}
	assert.Equal(t, "ledger", h.broker.sent[0].topic)
	assert.Equal(t, "2", h.broker.sent[0].message.Attributes["seq"])
	assert.Equal(t, string(enums.LedgerEventPaymentAdded), h.broker.sent[0].message.Attributes["ledger_event_type"])
	assert.Equal(t, "3", h.broker.sent[1].message.Attributes["seq"])
	assert.Equal(t, "integrity", h.broker.sent[2].topic)
	assert.Equal(t, "2", h.broker.sent[2].message.Attributes["failed_at_seq"])

	rows := h.rows()
	for i, row := range rows {
		assert.False(t, row.Pending(), "row %d still pending", i)
		assert.Equal(t, []byte(row.Payload), h.broker.sent[i].message.Data, "body is the stored envelope")
		assert.Equal(t, row.ID.String(), h.broker.sent[i].message.Attributes["event_id"])
	}

	h.drain()
	assert.Len(t, h.broker.sent, 3, "published rows are not sent again")
}

func TestTransientFailureRetriesThenSucceeds(t *testing.T) {
	h := newHarness(t, 5)
	h.emit(appended(uuid.New(), 2, time.Now().UTC()))
	h.broker.failures["ledger"] = 1

	h.drain()
	rows := h.rows()
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Pending())
	assert.Equal(t, 1, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)
	assert.Contains(t, *rows[0].LastError, "broker unavailable")

	h.drain()
	assert.False(t, h.rows()[0].Pending())
	assert.Empty(t, h.deadLetters())
}

func TestExhaustedRetriesAreDeadLettered(t *testing.T) {
	h := newHarness(t, 2)
	h.emit(appended(uuid.New(), 2, time.Now().UTC()))
	h.broker.failures["ledger"] = 10

	h.drain()
	h.drain()
	h.drain()

	entries := h.deadLetters()
	require.Len(t, entries, 1)
	row := h.rows()[0]
	assert.Equal(t, row.ID, entries[0].EventID)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, entries[0].ErrorReason)
	assert.Equal(t, 2, row.AttemptCount)
	assert.True(t, row.Pending(), "terminal rows stay unpublished")
	assert.Equal(t, 2, h.broker.attempts, "no attempts after the row is parked")
}

func TestUndecodableRowIsDeadLetteredWithoutPublishing(t *testing.T) {
	h := newHarness(t, 5)
	row, err := models.NewOutboxEvent(uuid.New(), enums.EventRecordEventAppended, enums.AggregateRecord, uuid.New(), map[string]any{"version": 1}, time.Now())
	require.NoError(t, err)
	require.NoError(t, h.db.DB().Create(&row).Error)

	h.drain()

	assert.Zero(t, h.broker.attempts)
	entries := h.deadLetters()
	require.Len(t, entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, entries[0].ErrorReason)
	assert.Equal(t, row.ID, entries[0].EventID)
}

func TestMissingPublisherIsNonRetryable(t *testing.T) {
	h := newHarness(t, 5)
	h.svc.publisherFactory = func(string) publisher { return nil }
	h.emit(appended(uuid.New(), 2, time.Now().UTC()))

	h.drain()

	entries := h.deadLetters()
	require.Len(t, entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, entries[0].ErrorReason)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)
}

type sentMessage struct {
	topic   string
	message *gcppubsub.Message
}

// fakeBroker fails the first failures[topic] publishes to each topic.
type fakeBroker struct {
	failures map[string]int
	attempts int
	sent     []sentMessage
}

func (b *fakeBroker) Ping(context.Context) error { return nil }
func (b *fakeBroker) Publisher(string) *gcppubsub.Publisher { return nil }
func (b *fakeBroker) publisherFor(topic string) publisher { return topicPublisher{b, topic} }

type topicPublisher struct {
	broker *fakeBroker
	topic  string
}

type publishOutcome struct{ err error }

func (r publishOutcome) Get(context.Context) (string, error) { return "server-id", r.err }

func (p topicPublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.broker.attempts++
	if p.broker.failures[p.topic] > 0 {
		p.broker.failures[p.topic]--
		return publishOutcome{err: errors.New("broker unavailable")}
	}
	p.broker.sent = append(p.broker.sent, sentMessage{topic: p.topic, message: msg})
	return publishOutcome{}
}
