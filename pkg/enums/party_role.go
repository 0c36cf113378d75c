package enums

// PartyRole is the creator's side of the transaction.
type PartyRole string

const (
	PartyRoleSeller PartyRole = "SELLER"
	PartyRoleBuyer  PartyRole = "BUYER"
)

func (r PartyRole) IsValid() bool {
	return r == PartyRoleSeller || r == PartyRoleBuyer
}

// Counterpart is the role the other party plays.
func (r PartyRole) Counterpart() PartyRole {
	if r == PartyRoleSeller {
		return PartyRoleBuyer
	}
	return PartyRoleSeller
}

// ParsePartyRole accepts the role case-insensitively.
func ParsePartyRole(value string) (PartyRole, error) {
	return parse[PartyRole]("party role", value, true)
}
