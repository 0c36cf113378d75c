package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/saakshy/saakshy-backend/api/middleware"
	"github.com/saakshy/saakshy-backend/api/responses"
	"github.com/saakshy/saakshy-backend/api/validators"
	"github.com/saakshy/saakshy-backend/internal/ledger"
	pkgerrors "github.com/saakshy/saakshy-backend/pkg/errors"
	"github.com/saakshy/saakshy-backend/pkg/logger"
)

type createRecordRequest struct {
	CounterpartyName    string          `json:"counterpartyName" validate:"required,max=120"`
	CounterpartyContact string          `json:"counterpartyContact" validate:"required"`
	Role                string          `json:"role" validate:"required,party_role"`
	Amount              decimal.Decimal `json:"amount"`
	DueDate             string          `json:"dueDate" validate:"required,isodate"`
	Note                string          `json:"note" validate:"max=500"`
}

func (r createRecordRequest) toInput() (ledger.CreateRecordInput, error) {
	role, err := ledger.ParseRole(r.Role)
	if err != nil {
		return ledger.CreateRecordInput{}, err
	}
	return ledger.CreateRecordInput{
		CounterpartyName:    strings.TrimSpace(r.CounterpartyName),
		CounterpartyContact: strings.TrimSpace(r.CounterpartyContact),
		Role:                role,
		Amount:              r.Amount,
		DueDate:             strings.TrimSpace(r.DueDate),
		Note:                strings.TrimSpace(r.Note),
	}, nil
}

type confirmRecordRequest struct {
	ConfirmedByName string `json:"confirmedByName" validate:"max=120"`
}

type payRecordRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Date      string          `json:"date" validate:"omitempty,isodate"`
	Reference string          `json:"reference" validate:"max=120"`
}

type disputeRecordRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type createRecordResponse struct {
	RecordID string `json:"recordId"`
	Link     string `json:"link,omitempty"`
}

// actorFromRequest builds the ledger actor from whatever identity the auth middleware attached.
func actorFromRequest(r *http.Request) ledger.Actor {
	ctx := r.Context()
	userID := middleware.UserIDFromContext(ctx)
	return ledger.Actor{
		ID:            userID,
		Contact:       middleware.MobileFromContext(ctx),
		DisplayName:   middleware.DisplayNameFromContext(ctx),
		Authenticated: userID != "",
	}
}

func recordIDParam(r *http.Request) (string, error) {
	return validators.ParseRecordID(chi.URLParam(r, "recordId"))
}

// decodeOptionalBody accepts an empty body for commands whose fields are all optional.
func decodeOptionalBody(r *http.Request, dest any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return validators.DecodeJSONBody(r, dest)
}

// CreateRecord opens a new record for the authenticated creator.
func CreateRecord(svc ledger.Service, publicBaseURL string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		var payload createRecordRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), actorFromRequest(r), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, createRecordResponse{
			RecordID: result.RecordID,
			Link:     recordLink(publicBaseURL, result.RecordID),
		})
	}
}

func recordLink(base, recordID string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return ""
	}
	return base + "/records/" + recordID
}

// ConfirmRecord is reachable by any holder of the record link.
func ConfirmRecord(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recordID, err := recordIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload confirmRecordRequest
		if err := decodeOptionalBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Confirm(r.Context(), actorFromRequest(r), recordID, ledger.ConfirmInput{
			ConfirmedByName: strings.TrimSpace(payload.ConfirmedByName),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// PayRecord logs a payment made by one of the record's parties.
func PayRecord(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recordID, err := recordIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload payRecordRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.AddPayment(r.Context(), actorFromRequest(r), recordID, ledger.AddPaymentInput{
			Amount:    payload.Amount,
			Date:      strings.TrimSpace(payload.Date),
			Reference: strings.TrimSpace(payload.Reference),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func DisputeRecord(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recordID, err := recordIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload disputeRecordRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.RaiseDispute(r.Context(), actorFromRequest(r), recordID, ledger.DisputeInput{
			Reason: strings.TrimSpace(payload.Reason),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ListRecords returns every record the caller created or is the counterparty on.
func ListRecords(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := svc.RecordsForActor(r.Context(), actorFromRequest(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if views == nil {
			views = []ledger.RecordView{}
		}
		responses.WriteSuccess(w, views)
	}
}

func GetRecord(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recordID, err := recordIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.GetRecord(r.Context(), recordID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func VerifyRecord(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recordID, err := recordIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.VerifyRecord(r.Context(), recordID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// RecordSummary serves the dashboard; ?today= lets the client pin its local date.
func RecordSummary(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		today, err := validators.ParseQueryDate(r, "today")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Summary(r.Context(), actorFromRequest(r), today)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
