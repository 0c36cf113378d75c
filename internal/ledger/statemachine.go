package ledger

import (
	"github.com/saakshy/saakshy-backend/pkg/enums"
	pkgerrors "github.com/saakshy/saakshy-backend/pkg/errors"
)

// Command names a state-changing operation on a record.
type Command string

const (
	CommandCreate       Command = "create"
	CommandConfirm      Command = "confirm"
	CommandAddPayment   Command = "add_payment"
	CommandRaiseDispute Command = "raise_dispute"
)

// allowedFrom lists the statuses each command may run in. Create is handled
// separately because it requires the record to not exist.
var allowedFrom = map[Command][]enums.RecordStatus{
	CommandConfirm:      {enums.RecordStatusPendingConfirmation},
	CommandAddPayment:   {enums.RecordStatusConfirmed},
	CommandRaiseDispute: {enums.RecordStatusPendingConfirmation, enums.RecordStatusConfirmed},
}

// Allowed reports whether cmd may run against a record in status.
func Allowed(cmd Command, status enums.RecordStatus) bool {
	for _, candidate := range allowedFrom[cmd] {
		if candidate == status {
			return true
		}
	}
	return false
}

// CheckTransition returns an invalid-transition error when cmd is illegal for view.
// A nil view means the record does not exist yet.
func CheckTransition(cmd Command, view *RecordView) error {
	if cmd == CommandCreate {
		if view != nil {
			return invalidTransition(cmd, view.Status)
		}
		return nil
	}
	if view == nil {
		return errRecordNotFound()
	}
	if !Allowed(cmd, view.Status) {
		return invalidTransition(cmd, view.Status)
	}
	return nil
}

func invalidTransition(cmd Command, status enums.RecordStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, string(cmd)+" is not allowed when record is "+string(status)).
		WithDetails(map[string]any{
			"command": cmd,
			"status":  status,
		})
}
