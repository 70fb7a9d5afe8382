package session

import "errors"

// Sentinel errors returned by Session's structural operations. Each one
// also gets appended to the op-log as a success:false entry — the error
// returned to the caller and the entry written to the log always agree.
var (
	// ErrFileMissing is returned by move_file/delete_file when the source
	// path does not currently exist.
	ErrFileMissing = errors.New("session: file does not exist")

	// ErrDestinationExists is returned by move_file when the target path
	// is already alive.
	ErrDestinationExists = errors.New("session: destination file already exists")
)
