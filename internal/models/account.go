package models

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Capability names an action guarded by role, checked via services.Authorizer.
type Capability string

const (
	CapManagePayments Capability = "manage_payments"
	CapManagePricing  Capability = "manage_pricing"
	CapManageCapacity Capability = "manage_capacity"
	CapViewAudit      Capability = "view_audit"
)

var roleCapabilities = map[Role][]Capability{
	RoleAdmin: {CapManagePayments, CapManagePricing, CapManageCapacity, CapViewAudit},
}

// Can reports whether the role grants the capability.
func (r Role) Can(c Capability) bool {
	for _, granted := range roleCapabilities[r] {
		if granted == c {
			return true
		}
	}
	return false
}

// Account holds a user's spendable credit balance. Balance is only mutated by the
// ledger engine, together with an appended LedgerEntry.
type Account struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email,omitempty" db:"email"`
	Role      Role      `json:"role" db:"role"`
	Balance   int64     `json:"balance" db:"balance"`
	Version   int       `json:"-" db:"version"` // for optimistic locking
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
