package auth

import "strings"

// AccountType is the role an identity signs in as. The set is closed.
type AccountType string

const (
	AccountFreelancer AccountType = "freelancer"
	AccountClient     AccountType = "client"
	AccountAdmin      AccountType = "admin"
)

// IsValid checks if the account type is one of the predefined types
func (a AccountType) IsValid() bool {
	switch a {
	case AccountFreelancer, AccountClient, AccountAdmin:
		return true
	default:
		return false
	}
}

// IsSelectable reports whether a pending user may pick this type during
// account setup. Administrators are provisioned, never self selected.
func (a AccountType) IsSelectable() bool {
	for _, at := range SelectableAccountTypes() {
		if at == a {
			return true
		}
	}
	return false
}

func (a AccountType) String() string {
	return string(a)
}

// AllAccountTypes returns every account type in a stable order
func AllAccountTypes() []AccountType {
	return []AccountType{
		AccountFreelancer,
		AccountClient,
		AccountAdmin,
	}
}

// SelectableAccountTypes returns the types a pending user can choose from
func SelectableAccountTypes() []AccountType {
	return []AccountType{
		AccountFreelancer,
		AccountClient,
	}
}

// ParseAccountType safely parses a string into an AccountType
func ParseAccountType(s string) (AccountType, bool) {
	at := AccountType(strings.ToLower(strings.TrimSpace(s)))
	return at, at.IsValid()
}
