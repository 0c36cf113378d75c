package ledger

import (
	"context"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/saakshy/saakshy-backend/pkg/enums"
	"github.com/saakshy/saakshy-backend/pkg/logger"
)

// memStore is an EventStore over a map, used to drive the service without a database.
type memStore struct {
	mu        sync.Mutex
	events    map[string][]Event
	creators  map[string]string
	contacts  map[string]string
	conflicts int

	// gateLoads makes the first gateLoads Load calls wait for each other.
	gate      sync.WaitGroup
	gateLoads int32
	loads     int32
}

func newMemStore() *memStore {
	return &memStore{
		events:   make(map[string][]Event),
		creators: make(map[string]string),
		contacts: make(map[string]string),
	}
}

// holdLoads makes the next n Load calls rendezvous before returning.
func (m *memStore) holdLoads(n int) {
	atomic.StoreInt32(&m.loads, 0)
	m.gateLoads = int32(n)
	m.gate.Add(n)
}

func (m *memStore) Append(_ context.Context, recordID string, expectedSeq int64, drafts ...Draft) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.events[recordID]
	headSeq := int64(len(history))
	if headSeq != expectedSeq-1 {
		m.conflicts++
		return nil, conflictError(recordID, expectedSeq, headSeq)
	}
	prev := GenesisHash
	if headSeq > 0 {
		prev = history[headSeq-1].Hash
	}
	appended := make([]Event, 0, len(drafts))
	seq := expectedSeq
	for _, draft := range drafts {
		data, err := CanonicalPayload(draft.Payload)
		if err != nil {
			return nil, err
		}
		hash, err := NextHash(prev, recordID, seq, draft.Type(), draft.ActorID, data)
		if err != nil {
			return nil, err
		}
		appended = append(appended, Event{
			RecordID:  recordID,
			Seq:       seq,
			Type:      draft.Type(),
			ActorID:   draft.ActorID,
			Payload:   draft.Payload,
			Data:      data,
			PrevHash:  prev,
			Hash:      hash,
			Timestamp: draft.Timestamp.UTC(),
		})
		prev = hash
		seq++
	}
	if expectedSeq == 1 {
		if created, ok := appended[0].Payload.(CreatedPayload); ok {
			m.creators[recordID] = appended[0].ActorID
			m.contacts[recordID] = created.CounterpartyContact
		}
	}
	m.events[recordID] = append(history, appended...)
	return appended, nil
}

func (m *memStore) Load(_ context.Context, recordID string) ([]Event, error) {
	m.mu.Lock()
	out := append([]Event{}, m.events[recordID]...)
	m.mu.Unlock()

	if n := atomic.AddInt32(&m.loads, 1); n <= m.gateLoads {
		m.gate.Done()
		m.gate.Wait()
	}
	return out, nil
}

func (m *memStore) LoadMany(ctx context.Context, recordIDs []string) (map[string][]Event, error) {
	out := make(map[string][]Event, len(recordIDs))
	for _, id := range recordIDs {
		m.mu.Lock()
		if events, ok := m.events[id]; ok {
			out[id] = append([]Event{}, events...)
		}
		m.mu.Unlock()
	}
	return out, nil
}

func (m *memStore) Head(_ context.Context, recordID string) (Head, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := m.events[recordID]
	if len(history) == 0 {
		return Head{Seq: 0, Hash: GenesisHash}, nil
	}
	last := history[len(history)-1]
	return Head{Seq: last.Seq, Hash: last.Hash}, nil
}

func (m *memStore) FindVisibleRecordIDs(_ context.Context, actorID, contact string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, creator := range m.creators {
		if creator == actorID || (contact != "" && m.contacts[id] == contact) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memStore) ListRecordIDs(_ context.Context, after string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id := range m.creators {
		if id > after {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// tamper rewrites a stored event in place, as a direct database edit would.
func (m *memStore) tamper(recordID string, seq int64, mutate func(*Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mutate(&m.events[recordID][seq-1])
}

var (
	testNow     = time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC)
	creator     = Actor{ID: "user-creator", Contact: "+1 (555) 000-1111", Authenticated: true, DisplayName: "Asha Traders"}
	linkHolder  = Actor{}
	counterpart = Actor{ID: "user-counterparty", Contact: "+91 98765 43210", Authenticated: true}
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: "debug", Output: io.Discard})
}

func newTestService(t *testing.T, store EventStore, opts ...func(*ServiceParams)) Service {
	t.Helper()
	ids := 0
	params := ServiceParams{
		Store:  store,
		Logger: testLogger(),
		Clock:  func() time.Time { return testNow },
		NewRecordID: func() string {
			ids++
			return []string{
				"11111111-1111-4111-8111-111111111111",
				"22222222-2222-4222-8222-222222222222",
				"33333333-3333-4333-8333-333333333333",
			}[(ids-1)%3]
		},
	}
	for _, opt := range opts {
		opt(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return svc
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func createInput(amount string) CreateRecordInput {
	return CreateRecordInput{
		CounterpartyName:    "Ravi Kumar",
		CounterpartyContact: "+91 98765 43210",
		Role:                enums.PartyRoleSeller,
		Amount:              dec(amount),
		DueDate:             "2025-01-01",
		Note:                "rice, 20 bags",
	}
}
