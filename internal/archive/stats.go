package archive

import "time"

// StatsRecord is the download_stats.json document published next to the
// archive so consumers can see how fresh and how large it is without
// fetching it.
type StatsRecord struct {
	// LastUpdated is when the archive was rebuilt, RFC 3339 in UTC
	LastUpdated string `json:"last_updated"`

	// FileSizeMB is the archive size rounded to the nearest megabyte
	FileSizeMB int64 `json:"file_size_mb"`

	// ArchiveURL is the public URL of the archive object
	ArchiveURL string `json:"archive_url"`
}

// NewStatsRecord builds the stats document for an archive of the given size.
func NewStatsRecord(sizeBytes int64, archiveURL string, at time.Time) StatsRecord {
	return StatsRecord{
		LastUpdated: at.UTC().Format(time.RFC3339),
		FileSizeMB:  RoundToMB(sizeBytes),
		ArchiveURL:  archiveURL,
	}
}

// RoundToMB rounds a byte count to the nearest whole megabyte.
func RoundToMB(bytes int64) int64 {
	return (bytes + 512*1024) / (1024 * 1024)
}
