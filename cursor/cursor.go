// Package cursor tracks how far each log source has been scanned.
package cursor

// Cursor records the last processed block per source key, so a restarted
// poller resumes where it stopped instead of at the head.
type Cursor interface {
	// Load returns the last saved block for key and whether one was saved.
	Load(key string) (block uint64, ok bool, err error)

	// Save records block as processed for key.
	Save(key string, block uint64) error
}
