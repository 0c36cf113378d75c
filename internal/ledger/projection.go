package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/saakshy/saakshy-backend/pkg/enums"
	pkgerrors "github.com/saakshy/saakshy-backend/pkg/errors"
)

// PaymentEntry is one payment as it appears in a record's history.
type PaymentEntry struct {
	Seq      int64           `json:"seq"`
	Amount   decimal.Decimal `json:"amount"`
	Date     string          `json:"date"`
	LoggedBy string          `json:"loggedBy"`
}

// RecordView is the state of a record derived from its events. It is disposable:
// the same events always produce the same view.
type RecordView struct {
	RecordID            string             `json:"recordId"`
	CreatorID           string             `json:"creatorId"`
	CounterpartyName    string             `json:"counterpartyName"`
	CounterpartyContact string             `json:"counterpartyContact"`
	Role                enums.PartyRole    `json:"role"`
	OriginalAmount      decimal.Decimal    `json:"originalAmount"`
	RemainingAmount     decimal.Decimal    `json:"remainingAmount"`
	DueDate             string             `json:"dueDate"`
	Note                string             `json:"note,omitempty"`
	Status              enums.RecordStatus `json:"status"`
	PaymentHistory      []PaymentEntry     `json:"paymentHistory"`
	DisputeReason       *string            `json:"disputeReason,omitempty"`
	ConfirmedByName     string             `json:"confirmedByName,omitempty"`
	ConfirmedAt         *time.Time         `json:"confirmedAt,omitempty"`
	CreatedAt           time.Time          `json:"createdAt"`
	HeadSeq             int64              `json:"headSeq"`
	HeadHash            string             `json:"headHash"`
	Events              []Event            `json:"events"`
	Integrity           *IntegrityReport   `json:"integrity,omitempty"`
}

// Head returns the chain position the view was derived at.
func (v RecordView) Head() Head {
	return Head{Seq: v.HeadSeq, Hash: v.HeadHash}
}

// tamperedJSON is what clients see for a record that failed verification: no
// balances or parties, only the evidence.
type tamperedJSON struct {
	RecordID  string             `json:"recordId"`
	Status    enums.RecordStatus `json:"status"`
	HeadSeq   int64              `json:"headSeq"`
	Integrity *IntegrityReport   `json:"integrity"`
	Events    []Event            `json:"events"`
}

func (v RecordView) MarshalJSON() ([]byte, error) {
	if v.Status == enums.RecordStatusTampered {
		return json.Marshal(tamperedJSON{
			RecordID:  v.RecordID,
			Status:    v.Status,
			HeadSeq:   v.HeadSeq,
			Integrity: v.Integrity,
			Events:    v.Events,
		})
	}
	type plain RecordView
	return json.Marshal(plain(v))
}

// Project folds events into a RecordView. It never reads the clock and never
// mutates its input. An empty history or one that does not start with created
// is reported as not found.
func Project(events []Event) (*RecordView, error) {
	if len(events) == 0 || events[0].Type != enums.LedgerEventCreated {
		return nil, errRecordNotFound()
	}

	view := &RecordView{
		RecordID: events[0].RecordID,
		Events:   append([]Event(nil), events...),
	}
	for _, event := range events {
		if err := apply(view, event); err != nil {
			return nil, err
		}
		view.HeadSeq = event.Seq
		view.HeadHash = event.Hash
	}
	return view, nil
}

func apply(view *RecordView, event Event) error {
	switch p := event.Payload.(type) {
	case CreatedPayload:
		if event.Seq != 1 {
			return fmt.Errorf("created event at seq %d", event.Seq)
		}
		view.CreatorID = event.ActorID
		view.CounterpartyName = p.CounterpartyName
		view.CounterpartyContact = p.CounterpartyContact
		view.Role = p.Role
		view.OriginalAmount = p.Amount
		view.RemainingAmount = p.Amount
		view.DueDate = p.DueDate
		view.Note = p.Note
		view.PaymentHistory = []PaymentEntry{}
		view.CreatedAt = event.Timestamp
	case ConfirmedPayload:
		view.ConfirmedByName = p.ConfirmedByName
		confirmedAt := event.Timestamp
		view.ConfirmedAt = &confirmedAt
	case PaymentAddedPayload:
		view.PaymentHistory = append(view.PaymentHistory, PaymentEntry{
			Seq:      event.Seq,
			Amount:   p.Amount,
			Date:     p.Date,
			LoggedBy: event.ActorID,
		})
		remaining := view.RemainingAmount.Sub(p.Amount)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		view.RemainingAmount = remaining
	case DisputeRaisedPayload:
		reason := p.Reason
		view.DisputeReason = &reason
	case SettledPayload:
	default:
		return fmt.Errorf("event %d of record %s has no decodable payload", event.Seq, event.RecordID)
	}
	if TypeOf(event.Payload) != event.Type {
		return fmt.Errorf("event %d payload does not match type %s", event.Seq, event.Type)
	}
	if status, moves := event.Type.ResultingStatus(); moves {
		view.Status = status
	}
	return nil
}

// tamperedView is served instead of a projection when the chain fails verification.
func tamperedView(recordID string, events []Event, report IntegrityReport) *RecordView {
	var createdAt time.Time
	if len(events) > 0 {
		createdAt = events[0].Timestamp
	}
	return &RecordView{
		CreatedAt: createdAt,
		RecordID:  recordID,
		Status:    enums.RecordStatusTampered,
		HeadSeq:   report.HeadSeq,
		HeadHash:  report.HeadHash,
		Events:    append([]Event(nil), events...),
		Integrity: &report,
	}
}

func errRecordNotFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "record not found")
}
