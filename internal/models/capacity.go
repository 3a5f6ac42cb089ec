package models

// BetaCapacity bounds free-tier admissions. CurrentFreeUsers never exceeds MaxFreeUsers.
type BetaCapacity struct {
	MaxFreeUsers     int `json:"max_free_users" db:"max_free_users"`
	CurrentFreeUsers int `json:"current_free_users" db:"current_free_users"`
}

// Remaining returns the number of free slots left.
func (c BetaCapacity) Remaining() int {
	if c.CurrentFreeUsers >= c.MaxFreeUsers {
		return 0
	}
	return c.MaxFreeUsers - c.CurrentFreeUsers
}
