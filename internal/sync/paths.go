// Package sync implements the synchronization engine: the local apply
// engine, the remote batch-file protocol, the cycle orchestrator, the
// background scheduler, and operation capture.
package sync

import (
	"fmt"
	"time"
)

// Remote namespace layout. All paths are relative to the configured
// remote root.
const (
	SyncBase     = "sync"
	OpsDir       = SyncBase + "/ops"
	SnapshotsDir = SyncBase + "/snapshots"
	ControlDir   = SyncBase + "/control"
)

// YearMonth formats a time as the YYYYMM directory segment batch files
// are grouped under. UTC, so devices in different zones agree on the
// layout.
func YearMonth(t time.Time) string {
	return t.UTC().Format("200601")
}

// DeviceOpsDir is the per-device operation directory.
func DeviceOpsDir(deviceID string) string {
	return fmt.Sprintf("%s/%s", OpsDir, deviceID)
}

// MonthDir is the per-device, per-month batch file directory.
func MonthDir(deviceID, yearMonth string) string {
	return fmt.Sprintf("%s/%s/%s", OpsDir, deviceID, yearMonth)
}

// BatchPath is the full path of one batch file.
func BatchPath(deviceID, yearMonth, fileID string) string {
	return fmt.Sprintf("%s/%s/%s/%s.ndjson", OpsDir, deviceID, yearMonth, fileID)
}

// SnapshotDir is where a compactor would publish a materialized
// snapshot of one collection for a given day (YYYYMMDD).
func SnapshotDir(collection, day string) string {
	return fmt.Sprintf("%s/%s/%s", SnapshotsDir, collection, day)
}

// LatestMarkerPath points at the control file naming the newest
// snapshot of a collection.
func LatestMarkerPath(collection string) string {
	return fmt.Sprintf("%s/%s/latest.marker", ControlDir, collection)
}
