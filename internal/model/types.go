// Package model holds the semantic wire types shared by the session, hub,
// client, and protocol packages: file metadata, operation-log entries, and
// per-user activity.
package model

// OperationKind identifies what a logged Operation did.
type OperationKind string

const (
	OpCreate OperationKind = "create"
	OpWrite  OperationKind = "write"
	OpMove   OperationKind = "move"
	OpDelete OperationKind = "delete"
)

// ActivityAction identifies what a user is currently doing to a file.
type ActivityAction string

const (
	ActivityIdle    ActivityAction = "idle"
	ActivityReading ActivityAction = "reading"
	ActivityEditing ActivityAction = "editing"
	ActivityMoving  ActivityAction = "moving"
	ActivityDeleting ActivityAction = "deleting"
)

// WriteMode selects whether write_file replaces or appends to a path's content.
type WriteMode string

const (
	WriteOverwrite WriteMode = "overwrite"
	WriteAppend    WriteMode = "append"
)

// FileMeta is the metadata index entry for one path.
type FileMeta struct {
	LastModifiedMs int64  `json:"last_modified_ms"`
	LastModifiedBy string `json:"last_modified_by"`
	Token          int64  `json:"token"`
	SizeBytes      int64  `json:"size_bytes"`
	IsBinary       bool   `json:"is_binary"`
}

// Operation is one append-only entry in a session's op-log.
type Operation struct {
	Token     int64         `json:"token"`
	Kind      OperationKind `json:"kind"`
	Path      string        `json:"path"`
	NewPath   string        `json:"new_path,omitempty"`
	By        string        `json:"by"`
	TimestampMs int64       `json:"timestamp_ms"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// Activity is the presence entry for one user-id.
type Activity struct {
	UserID      string         `json:"user_id"`
	CurrentFile string         `json:"current_file,omitempty"`
	Action      ActivityAction `json:"action"`
	TimestampMs int64          `json:"timestamp_ms"`
}

// FileEntry is a (path, meta) pair returned by list_files.
type FileEntry struct {
	Path string   `json:"path"`
	Meta FileMeta `json:"meta"`
}

// Stats is the read-only set of counters sent back to a client on join.
type Stats struct {
	ParticipantCount int `json:"participant_count"`
	FileCount        int `json:"file_count"`
	OpLogLength      int `json:"op_log_length"`
}
