package ledger

import (
	"errors"

	pkgerrors "github.com/saakshy/saakshy-backend/pkg/errors"
)

func validationError(field, reason string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, reason).
		WithDetails(map[string]string{field: reason})
}

func conflictError(recordID string, expectedSeq, headSeq int64) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "record was modified concurrently").
		WithDetails(map[string]any{
			"recordId":    recordID,
			"expectedSeq": expectedSeq,
			"headSeq":     headSeq,
		})
}

func integrityFailure(err *IntegrityError) error {
	return pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, "record history failed verification").
		WithDetails(map[string]any{
			"recordId":    err.RecordID,
			"failedAtSeq": err.Seq,
			"reason":      err.Reason,
		})
}

// IsConflict reports whether err is a lost optimistic-concurrency race.
func IsConflict(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeConflict)
}

// AsIntegrityError extracts the chain failure from err, if any.
func AsIntegrityError(err error) (*IntegrityError, bool) {
	var integrity *IntegrityError
	if errors.As(err, &integrity) {
		return integrity, true
	}
	return nil, false
}
