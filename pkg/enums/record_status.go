package enums

// RecordStatus is the projected lifecycle state of a debt record.
type RecordStatus string

const (
	RecordStatusPendingConfirmation RecordStatus = "PENDING_CONFIRMATION"
	RecordStatusConfirmed           RecordStatus = "CONFIRMED"
	RecordStatusDisputed            RecordStatus = "DISPUTED"
	RecordStatusSettled             RecordStatus = "SETTLED"
	// RecordStatusTampered is never produced by replay; queries report it when the chain fails verification.
	RecordStatusTampered RecordStatus = "TAMPERED"
)

func (s RecordStatus) IsValid() bool {
	switch s {
	case RecordStatusPendingConfirmation, RecordStatusConfirmed, RecordStatusDisputed, RecordStatusSettled, RecordStatusTampered:
		return true
	}
	return false
}

// IsTerminal reports whether no further command is accepted in this status.
func (s RecordStatus) IsTerminal() bool {
	return s == RecordStatusSettled || s == RecordStatusDisputed || s == RecordStatusTampered
}

func ParseRecordStatus(value string) (RecordStatus, error) {
	return parse[RecordStatus]("record status", value, false)
}
