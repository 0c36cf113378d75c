package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saakshy/saakshy-backend/pkg/enums"
	pkgerrors "github.com/saakshy/saakshy-backend/pkg/errors"
)

func TestProjectFoldsHistory(t *testing.T) {
	events := buildChain(t, standardDrafts()...)

	view, err := Project(events)
	require.NoError(t, err)
	assert.Equal(t, chainRecordID, view.RecordID)
	assert.Equal(t, creator.ID, view.CreatorID)
	assert.Equal(t, "919876543210", view.CounterpartyContact)
	assert.Equal(t, enums.PartyRoleSeller, view.Role)
	assert.Equal(t, enums.RecordStatusConfirmed, view.Status)
	assert.True(t, view.OriginalAmount.Equal(dec("1000")))
	assert.True(t, view.RemainingAmount.Equal(dec("749.50")))
	require.Len(t, view.PaymentHistory, 1)
	assert.Equal(t, int64(3), view.PaymentHistory[0].Seq)
	assert.Equal(t, creator.ID, view.PaymentHistory[0].LoggedBy)
	assert.Equal(t, int64(3), view.HeadSeq)
	assert.Equal(t, events[2].Hash, view.HeadHash)
	assert.Nil(t, view.DisputeReason)
}

func TestProjectDoesNotMutateInput(t *testing.T) {
	events := buildChain(t, standardDrafts()...)
	snapshot := append([]Event(nil), events...)

	view, err := Project(events)
	require.NoError(t, err)
	view.Events[0].ActorID = "changed"
	assert.Equal(t, snapshot, events)
}

func TestProjectClampsRemainingAtZero(t *testing.T) {
	drafts := standardDrafts()
	drafts = append(drafts, Draft{ActorID: creator.ID, Payload: PaymentAddedPayload{Amount: dec("5000"), Date: "2025-01-03"}})
	view, err := Project(buildChain(t, drafts...))
	require.NoError(t, err)
	assert.True(t, view.RemainingAmount.IsZero())
}

func TestProjectRejectsMissingCreation(t *testing.T) {
	_, err := Project(nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	events := buildChain(t, standardDrafts()...)
	_, err = Project(events[1:])
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestProjectRejectsUndecodablePayload(t *testing.T) {
	events := buildChain(t, standardDrafts()...)
	events[2].Payload = nil
	_, err := Project(events)
	assert.Error(t, err)

	events = buildChain(t, standardDrafts()...)
	events[2].Payload = DisputeRaisedPayload{Reason: "x"}
	_, err = Project(events)
	assert.Error(t, err, "payload must match the event type")
}

func TestTamperedViewJSONOmitsBalances(t *testing.T) {
	events := buildChain(t, standardDrafts()...)
	view := tamperedView(chainRecordID, events, IntegrityReport{RecordID: chainRecordID, FailedAtSeq: 2, Reason: "bad"})
	raw, err := view.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"status":"TAMPERED"`)
	assert.Contains(t, string(raw), `"failedAtSeq":2`)
	assert.NotContains(t, string(raw), "remainingAmount")
}
