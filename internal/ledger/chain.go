package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"

	"github.com/saakshy/saakshy-backend/pkg/enums"
)

// GenesisHash is the prevHash of the first event of every record.
var GenesisHash = strings.Repeat("0", 64)

// IntegrityError reports the first event at which a record's chain stops verifying.
type IntegrityError struct {
	RecordID string
	Seq      int64
	Reason   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("record %s failed verification at seq %d: %s", e.RecordID, e.Seq, e.Reason)
}

// chainInput is the hashed preimage. JCS canonicalisation makes the digest
// independent of field order and whitespace in the stored payload.
type chainInput struct {
	RecordID string                `json:"recordId"`
	Seq      int64                 `json:"seq"`
	Type     enums.LedgerEventType `json:"type"`
	ActorID  string                `json:"actorId"`
	Payload  json.RawMessage       `json:"payload"`
	PrevHash string                `json:"prevHash"`
}

// CanonicalPayload returns the RFC 8785 form of p, which is what gets stored and hashed.
func CanonicalPayload(p Payload) (json.RawMessage, error) {
	if p == nil {
		return nil, fmt.Errorf("payload required")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}
	return canonical, nil
}

// NextHash computes the hash of an event from its predecessor's hash and its own contents.
func NextHash(prevHash, recordID string, seq int64, eventType enums.LedgerEventType, actorID string, payload json.RawMessage) (string, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	raw, err := json.Marshal(chainInput{
		RecordID: recordID,
		Seq:      seq,
		Type:     eventType,
		ActorID:  actorID,
		Payload:  payload,
		PrevHash: prevHash,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chain input: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize chain input: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyChain walks events in order and returns an *IntegrityError for the first
// event whose seq, prevHash or recomputed hash does not line up. nil means intact.
func VerifyChain(events []Event) error {
	if len(events) == 0 {
		return nil
	}
	recordID := events[0].RecordID
	prev := GenesisHash
	for i, event := range events {
		expectedSeq := int64(i + 1)
		fail := func(reason string) error {
			return &IntegrityError{RecordID: recordID, Seq: expectedSeq, Reason: reason}
		}
		if event.Seq != expectedSeq {
			return fail(fmt.Sprintf("expected seq %d, found %d", expectedSeq, event.Seq))
		}
		if event.RecordID != recordID {
			return fail("event belongs to another record")
		}
		if !event.Type.IsValid() {
			return fail(fmt.Sprintf("unknown event type %q", event.Type))
		}
		if event.PrevHash != prev {
			return fail("prevHash does not match previous event hash")
		}
		computed, err := NextHash(prev, event.RecordID, event.Seq, event.Type, event.ActorID, event.Data)
		if err != nil {
			return fail(err.Error())
		}
		if computed != event.Hash {
			return fail("stored hash does not match recomputed hash")
		}
		prev = event.Hash
	}
	return nil
}

// IntegrityReport is the verification outcome exposed to clients.
type IntegrityReport struct {
	RecordID    string `json:"recordId"`
	OK          bool   `json:"ok"`
	HeadSeq     int64  `json:"headSeq"`
	HeadHash    string `json:"headHash,omitempty"`
	FailedAtSeq int64  `json:"failedAtSeq,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Verify runs VerifyChain and summarises the result.
func Verify(recordID string, events []Event) IntegrityReport {
	report := IntegrityReport{RecordID: recordID, OK: true}
	if n := len(events); n > 0 {
		report.HeadSeq = events[n-1].Seq
		report.HeadHash = events[n-1].Hash
	}
	if err := VerifyChain(events); err != nil {
		report.OK = false
		if integrity, ok := err.(*IntegrityError); ok {
			report.FailedAtSeq = integrity.Seq
			report.Reason = integrity.Reason
		} else {
			report.Reason = err.Error()
		}
	}
	return report
}
