// Package directory resolves farmer identities for the settlement engine.
// Registration and profile edits happen elsewhere; this package only reads.
package directory

import "time"

// FarmerStatus enumerates membership statuses.
type FarmerStatus string

const (
	FarmerActive    FarmerStatus = "active"
	FarmerInactive  FarmerStatus = "inactive"
	FarmerSuspended FarmerStatus = "suspended"
)

// Farmer is the identity anchor for deliveries, ledgers and payouts.
type Farmer struct {
	ID           int64
	MemberNo     string
	FirstName    string
	Surname      string
	Phone        string
	Status       FarmerStatus
	RegisteredAt time.Time
}

// DisplayName renders the farmer's full name.
func (f Farmer) DisplayName() string {
	if f.FirstName == "" {
		return f.Surname
	}
	return f.FirstName + " " + f.Surname
}
