package shared

import "fmt"

// SettlementLockKey builds redis keys serialising commit runs per period.
func SettlementLockKey(period Period) string {
	return fmt.Sprintf("settlement:period:%s:lock", period)
}
