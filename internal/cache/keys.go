package cache

import "strconv"

// KeyPackage addresses a cached package record.
func KeyPackage(tenantID string, packageID int) string {
	return "package:" + tenantID + ":" + strconv.Itoa(packageID)
}

// KeyCustomForm addresses a cached custom form.
func KeyCustomForm(tenantID string, packageID int) string {
	return "custom-form:" + tenantID + ":" + strconv.Itoa(packageID)
}

// KeySession addresses a scheduling session.
func KeySession(id string) string {
	return "session:" + id
}

// KeySessionLock addresses the mutation lock of a scheduling session.
func KeySessionLock(id string) string {
	return "lock:session:" + id
}
