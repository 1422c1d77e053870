package shared

import "fmt"

// ConsolidationLockKey builds the redis key serialising one run per (group, period).
func ConsolidationLockKey(groupID int64, period string) string {
	return fmt.Sprintf("consol:group:%d:period:%s:lock", groupID, period)
}

// InstrumentLockKey builds the redis key guarding instrument utilization recomputes.
func InstrumentLockKey(kind string, instrumentID int64) string {
	return fmt.Sprintf("instrument:%s:%d:lock", kind, instrumentID)
}
