package enums

// LedgerEventType is the closed set of facts a record's history can hold.
type LedgerEventType string

const (
	LedgerEventCreated       LedgerEventType = "created"
	LedgerEventConfirmed     LedgerEventType = "confirmed"
	LedgerEventPaymentAdded  LedgerEventType = "payment_added"
	LedgerEventDisputeRaised LedgerEventType = "dispute_raised"
	LedgerEventSettled       LedgerEventType = "settled"
)

// ledgerEventOutcome maps each event to the status it leaves the record in.
// payment_added keeps the current status unless it settles the balance, in
// which case a separate settled event follows.
var ledgerEventOutcome = map[LedgerEventType]RecordStatus{
	LedgerEventCreated:       RecordStatusPendingConfirmation,
	LedgerEventConfirmed:     RecordStatusConfirmed,
	LedgerEventPaymentAdded:  "",
	LedgerEventDisputeRaised: RecordStatusDisputed,
	LedgerEventSettled:       RecordStatusSettled,
}

func (t LedgerEventType) IsValid() bool {
	_, ok := ledgerEventOutcome[t]
	return ok
}

// ResultingStatus is the status the event moves a record into. ok is false
// for events that leave the status unchanged.
func (t LedgerEventType) ResultingStatus() (RecordStatus, bool) {
	status := ledgerEventOutcome[t]
	return status, status != ""
}

func ParseLedgerEventType(value string) (LedgerEventType, error) {
	return parse[LedgerEventType]("ledger event type", value, false)
}
