package enums

// ConfirmationMethod records how the counterparty acknowledged a record.
type ConfirmationMethod string

const (
	ConfirmationMethodDigitalLink ConfirmationMethod = "digital_link"
)

func (m ConfirmationMethod) IsValid() bool {
	return m == ConfirmationMethodDigitalLink
}
