package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/saakshy/saakshy-backend/pkg/enums"
	pkgerrors "github.com/saakshy/saakshy-backend/pkg/errors"
)

func TestAllowedTransitions(t *testing.T) {
	statuses := []enums.RecordStatus{
		enums.RecordStatusPendingConfirmation,
		enums.RecordStatusConfirmed,
		enums.RecordStatusDisputed,
		enums.RecordStatusSettled,
		enums.RecordStatusTampered,
	}
	want := map[Command]map[enums.RecordStatus]bool{
		CommandConfirm: {
			enums.RecordStatusPendingConfirmation: true,
		},
		CommandAddPayment: {
			enums.RecordStatusConfirmed: true,
		},
		CommandRaiseDispute: {
			enums.RecordStatusPendingConfirmation: true,
			enums.RecordStatusConfirmed:           true,
		},
	}
	for cmd, allowed := range want {
		for _, status := range statuses {
			assert.Equal(t, allowed[status], Allowed(cmd, status), "%s from %s", cmd, status)
		}
	}
}

func TestCheckTransition(t *testing.T) {
	assert.NoError(t, CheckTransition(CommandCreate, nil))

	existing := &RecordView{Status: enums.RecordStatusPendingConfirmation}
	err := CheckTransition(CommandCreate, existing)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	err = CheckTransition(CommandConfirm, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	settled := &RecordView{Status: enums.RecordStatusSettled}
	err = CheckTransition(CommandRaiseDispute, settled)
	typed := pkgerrors.As(err)
	if assert.NotNil(t, typed) {
		assert.Equal(t, pkgerrors.CodeInvalidTransition, typed.Code())
		assert.Equal(t, map[string]any{"command": CommandRaiseDispute, "status": enums.RecordStatusSettled}, typed.Details())
	}
}
