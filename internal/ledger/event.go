package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/shopspring/decimal"

	"github.com/saakshy/saakshy-backend/pkg/enums"
)

const (
	// SystemActorID is recorded on events the service derives on its own, such as auto-settlement.
	SystemActorID = "system"
	// CounterpartyActorID is recorded when an unauthenticated link holder acts on a record.
	CounterpartyActorID = "counterparty"
)

// Event is one immutable fact in a record's history. Data holds the canonical
// payload bytes covered by Hash; Payload is the decoded form of the same bytes.
type Event struct {
	RecordID  string
	Seq       int64
	Type      enums.LedgerEventType
	ActorID   string
	Payload   Payload
	Data      json.RawMessage
	PrevHash  string
	Hash      string
	Timestamp time.Time
}

// Payload is implemented only by the payload types in this file.
type Payload interface {
	eventType() enums.LedgerEventType
}

type CreatedPayload struct {
	CounterpartyName    string          `json:"counterpartyName"`
	CounterpartyContact string          `json:"counterpartyContact"`
	Role                enums.PartyRole `json:"role"`
	Amount              decimal.Decimal `json:"amount"`
	DueDate             string          `json:"dueDate"`
	Note                string          `json:"note,omitempty"`
}

type ConfirmedPayload struct {
	Method          enums.ConfirmationMethod `json:"method"`
	ConfirmedByName string                   `json:"confirmedByName,omitempty"`
}

type PaymentAddedPayload struct {
	Amount    decimal.Decimal `json:"amount"`
	Date      string          `json:"date"`
	Reference string          `json:"reference,omitempty"`
}

type DisputeRaisedPayload struct {
	Reason string `json:"reason"`
}

type SettledPayload struct{}

func (CreatedPayload) eventType() enums.LedgerEventType       { return enums.LedgerEventCreated }
func (ConfirmedPayload) eventType() enums.LedgerEventType     { return enums.LedgerEventConfirmed }
func (PaymentAddedPayload) eventType() enums.LedgerEventType  { return enums.LedgerEventPaymentAdded }
func (DisputeRaisedPayload) eventType() enums.LedgerEventType { return enums.LedgerEventDisputeRaised }
func (SettledPayload) eventType() enums.LedgerEventType       { return enums.LedgerEventSettled }

// TypeOf returns the event type a payload is recorded under.
func TypeOf(p Payload) enums.LedgerEventType {
	if p == nil {
		return ""
	}
	return p.eventType()
}

// DecodePayload turns stored payload bytes back into the typed payload for eventType.
func DecodePayload(eventType enums.LedgerEventType, data []byte) (Payload, error) {
	switch eventType {
	case enums.LedgerEventCreated:
		var p CreatedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode created payload: %w", err)
		}
		return p, nil
	case enums.LedgerEventConfirmed:
		var p ConfirmedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode confirmed payload: %w", err)
		}
		return p, nil
	case enums.LedgerEventPaymentAdded:
		var p PaymentAddedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode payment payload: %w", err)
		}
		return p, nil
	case enums.LedgerEventDisputeRaised:
		var p DisputeRaisedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode dispute payload: %w", err)
		}
		return p, nil
	case enums.LedgerEventSettled:
		return SettledPayload{}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
}

// Draft is an event a command wants to append; the store assigns seq and hashes.
type Draft struct {
	ActorID   string
	Payload   Payload
	Timestamp time.Time
}

func (d Draft) Type() enums.LedgerEventType {
	return TypeOf(d.Payload)
}

// eventJSON is the persisted and published shape of an event.
type eventJSON struct {
	RecordID  string                `json:"recordId"`
	Seq       int64                 `json:"seq"`
	Type      enums.LedgerEventType `json:"type"`
	ActorID   string                `json:"actorId"`
	Payload   json.RawMessage       `json:"payload"`
	PrevHash  string                `json:"prevHash"`
	Hash      string                `json:"hash"`
	Timestamp time.Time             `json:"timestamp"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	data := e.Data
	if len(data) == 0 && e.Payload != nil {
		canonical, err := CanonicalPayload(e.Payload)
		if err != nil {
			return nil, err
		}
		data = canonical
	}
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	return json.Marshal(eventJSON{
		RecordID:  e.RecordID,
		Seq:       e.Seq,
		Type:      e.Type,
		ActorID:   e.ActorID,
		Payload:   data,
		PrevHash:  e.PrevHash,
		Hash:      e.Hash,
		Timestamp: e.Timestamp,
	})
}

func (e *Event) UnmarshalJSON(raw []byte) error {
	var wire eventJSON
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}
	data := []byte(wire.Payload)
	if canonical, err := jcs.Transform(data); err == nil {
		data = canonical
	}
	payload, err := DecodePayload(wire.Type, data)
	if err != nil {
		return err
	}
	*e = Event{
		RecordID:  wire.RecordID,
		Seq:       wire.Seq,
		Type:      wire.Type,
		ActorID:   wire.ActorID,
		Payload:   payload,
		Data:      data,
		PrevHash:  wire.PrevHash,
		Hash:      wire.Hash,
		Timestamp: wire.Timestamp,
	}
	return nil
}
