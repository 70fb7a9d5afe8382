package protocol

import "encoding/json"

// MessageType enumerates the "type" discriminator of a kind-2 custom
// control frame's JSON payload.
type MessageType string

const (
	TypeJoin              MessageType = "join"
	TypeLeave             MessageType = "leave"
	TypeHeartbeat         MessageType = "heartbeat"
	TypeUpdateActivity    MessageType = "update_activity"
	TypeMoveFile          MessageType = "move_file"
	TypeDeleteFile        MessageType = "delete_file"
	TypeJoined            MessageType = "joined"
	TypeParticipantJoined MessageType = "participant_joined"
	TypeParticipantLeft   MessageType = "participant_left"
	TypeActivityUpdate    MessageType = "activity_update"
	TypeError             MessageType = "error"
)

// ActivityPayload is the activity sub-object carried by update_activity
// and activity_update messages.
type ActivityPayload struct {
	Action      string `json:"action"`
	CurrentFile string `json:"currentFile,omitempty"`
}

// Control is the envelope shape shared by every custom control message.
// Only the fields relevant to its Type are populated; json tags use
// omitempty throughout so a join frame doesn't serialize a null "data".
type Control struct {
	Type      MessageType      `json:"type"`
	UserID    string           `json:"userId,omitempty"`
	SessionID string           `json:"sessionId,omitempty"`
	Activity  *ActivityPayload `json:"activity,omitempty"`
	Path      string           `json:"path,omitempty"`
	NewPath   string           `json:"newPath,omitempty"`
	Data      json.RawMessage  `json:"data,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// JoinedData is the payload of a "joined" message's data field.
type JoinedData struct {
	SessionID string `json:"sessionId"`
	Stats     Stats  `json:"stats"`
}

// Stats mirrors model.Stats for the wire — kept separate so the protocol
// package has no dependency on internal/model's richer operation types.
type Stats struct {
	ParticipantCount int `json:"participantCount"`
	FileCount        int `json:"fileCount"`
	OpLogLength      int `json:"opLogLength"`
}

// ParticipantData is the payload of participant_joined/participant_left.
type ParticipantData struct {
	UserID string `json:"userId"`
}

// ActivityUpdateData is the payload of an activity_update message.
type ActivityUpdateData struct {
	UserID   string          `json:"userId"`
	Activity ActivityPayload `json:"activity"`
}

// EncodeControl marshals v as a kind-2 custom frame.
func EncodeControl(v Control) (Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Frame{}, err
	}
	return Custom(b), nil
}

// DecodeControl unmarshals a kind-2 frame's payload into a Control.
func DecodeControl(f Frame) (Control, error) {
	var c Control
	if err := json.Unmarshal(f.Payload, &c); err != nil {
		return Control{}, err
	}
	return c, nil
}

// withData marshals payload into Data, panicking only on a programmer
// error (payload types here are always trivially marshalable structs).
func withData(payload any) json.RawMessage {
	b, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return b
}

// NewJoined builds a "joined" control message.
func NewJoined(sessionID string, stats Stats) Control {
	return Control{Type: TypeJoined, Data: withData(JoinedData{SessionID: sessionID, Stats: stats})}
}

// NewParticipantJoined builds a "participant_joined" control message.
func NewParticipantJoined(userID string) Control {
	return Control{Type: TypeParticipantJoined, Data: withData(ParticipantData{UserID: userID})}
}

// NewParticipantLeft builds a "participant_left" control message.
func NewParticipantLeft(userID string) Control {
	return Control{Type: TypeParticipantLeft, Data: withData(ParticipantData{UserID: userID})}
}

// NewActivityUpdate builds an "activity_update" control message.
func NewActivityUpdate(userID string, activity ActivityPayload) Control {
	return Control{Type: TypeActivityUpdate, Data: withData(ActivityUpdateData{UserID: userID, Activity: activity})}
}

// NewError builds an "error" control message.
func NewError(message string) Control {
	return Control{Type: TypeError, Error: message}
}

// NewMoveFile builds a "move_file" request a client sends to the hub to
// have a move executed authoritatively against the session's document.
func NewMoveFile(userID, sessionID, oldPath, newPath string) Control {
	return Control{Type: TypeMoveFile, UserID: userID, SessionID: sessionID, Path: oldPath, NewPath: newPath}
}

// NewDeleteFile builds a "delete_file" request a client sends to the hub
// to have a delete executed authoritatively against the session's document.
func NewDeleteFile(userID, sessionID, path string) Control {
	return Control{Type: TypeDeleteFile, UserID: userID, SessionID: sessionID, Path: path}
}
