package constants

// JobStatus is the canonical status for rows in export_jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusPending    JobStatus = "pending"    // created, not picked up yet
	JobStatusProcessing JobStatus = "processing" // run in progress
	JobStatusCompleted  JobStatus = "completed"  // artifact written
	JobStatusFailed     JobStatus = "failed"     // terminal failure, see error_message
	JobStatusExpired    JobStatus = "expired"    // derived by readers past expires_at; never written by the job itself
)

// Terminal reports whether a job in this status will never move again on its own.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}
