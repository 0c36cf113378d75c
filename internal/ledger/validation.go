package ledger

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/saakshy/saakshy-backend/pkg/enums"
)

const (
	maxNameLength      = 120
	maxNoteLength      = 500
	maxReasonLength    = 500
	maxReferenceLength = 120
	minContactDigits   = 10
	maxContactDigits   = 15
	amountScale        = 2
)

// NormalizeContact keeps only the digits of a phone number so that "+91 98765-43210"
// and "919876543210" compare equal.
func NormalizeContact(contact string) string {
	var b strings.Builder
	for _, r := range contact {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func validateCreate(input CreateRecordInput) (CreatedPayload, error) {
	name := strings.TrimSpace(input.CounterpartyName)
	if name == "" {
		return CreatedPayload{}, validationError("counterpartyName", "counterparty name is required")
	}
	if err := checkLength("counterpartyName", name, maxNameLength); err != nil {
		return CreatedPayload{}, err
	}

	contact := NormalizeContact(input.CounterpartyContact)
	if contact == "" {
		return CreatedPayload{}, validationError("counterpartyContact", "counterparty contact is required")
	}
	if len(contact) < minContactDigits || len(contact) > maxContactDigits {
		return CreatedPayload{}, validationError("counterpartyContact",
			fmt.Sprintf("must contain %d to %d digits", minContactDigits, maxContactDigits))
	}

	if !input.Role.IsValid() {
		return CreatedPayload{}, validationError("role", "role must be SELLER or BUYER")
	}
	if err := validateAmount("amount", input.Amount); err != nil {
		return CreatedPayload{}, err
	}
	dueDate := strings.TrimSpace(input.DueDate)
	if err := validateDate("dueDate", dueDate); err != nil {
		return CreatedPayload{}, err
	}
	note := strings.TrimSpace(input.Note)
	if err := checkLength("note", note, maxNoteLength); err != nil {
		return CreatedPayload{}, err
	}

	return CreatedPayload{
		CounterpartyName:    name,
		CounterpartyContact: contact,
		Role:                input.Role,
		Amount:              input.Amount,
		DueDate:             dueDate,
		Note:                note,
	}, nil
}

// checkLength counts characters, not bytes, so names and reasons written in
// Indic scripts get the same allowance as the HTTP validator gives them.
func checkLength(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return validationError(field, fmt.Sprintf("must be at most %d characters", max))
	}
	return nil
}

func validateAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return validationError(field, "must be greater than zero")
	}
	if !amount.Equal(amount.Round(amountScale)) {
		return validationError(field, "must have at most two decimal places")
	}
	return nil
}

func validateDate(field, value string) error {
	if value == "" {
		return validationError(field, "date is required")
	}
	if _, err := time.Parse(dateLayout, value); err != nil {
		return validationError(field, "must be a date in YYYY-MM-DD format")
	}
	return nil
}

// ParseRole is a convenience for transports that receive the role as text.
func ParseRole(value string) (enums.PartyRole, error) {
	role, err := enums.ParsePartyRole(value)
	if err != nil {
		return "", validationError("role", "role must be SELLER or BUYER")
	}
	return role, nil
}
