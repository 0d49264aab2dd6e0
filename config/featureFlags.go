package config

import (
	"os"
	"strings"
)

// SyncNotificationsEnabled gates the post-sync summary notification fan-out.
//
// Set via env:
// - SYNC_NOTIFICATIONS_ENABLED=true
func SyncNotificationsEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("SYNC_NOTIFICATIONS_ENABLED")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// PhotoArchiveEnabled gates job attachment archival to Cloud Storage during
// job sync. Disabled by default because attachment downloads dominate run time.
//
// Set via env:
// - PHOTO_ARCHIVE_ENABLED=true
func PhotoArchiveEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("PHOTO_ARCHIVE_ENABLED")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
