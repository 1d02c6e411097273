package remote

// Remote tree layout. Path segments and field names are the wire contract
// shared with the parent application and must match exactly.

// SettingsPath is the family settings subtree (global, schedules,
// deviceOverrides). Notifications carry the whole subtree, so consumers
// navigate within the snapshot rather than addressing its children.
func SettingsPath(familyID string) string {
	return "families/" + familyID + "/settings"
}

// DeviceStatusPath addresses one device's status record (revocation flag).
func DeviceStatusPath(familyID, childUID string) string {
	return "families/" + familyID + "/devices/" + childUID
}

// LocksPath addresses the per-device content lock command queue.
func LocksPath(familyID, childUID string) string {
	return childPath(familyID, childUID) + "/locks"
}

// LockPath addresses a single lock command.
func LockPath(familyID, childUID, lockID string) string {
	return LocksPath(familyID, childUID) + "/" + lockID
}

// AppLockPath addresses the whole-application lock.
func AppLockPath(familyID, childUID string) string {
	return childPath(familyID, childUID) + "/appLock"
}

// MetricsPath addresses the watch-time counters pushed upstream.
func MetricsPath(familyID, childUID string) string {
	return childPath(familyID, childUID) + "/metrics"
}

// DeviceInfoPath addresses the live device status record.
func DeviceInfoPath(familyID, childUID string) string {
	return childPath(familyID, childUID) + "/deviceInfo"
}

func childPath(familyID, childUID string) string {
	return "families/" + familyID + "/children/" + childUID
}
