package protocol

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeSyncFrame(t *testing.T) {
	f := Sync(SyncStepUpdate, []byte{1, 2, 3})
	raw := EncodeFrame(f)

	got, err := DecodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, KindSync, got.Kind)
	assert.Equal(t, SyncStepUpdate, got.Step)
	assert.Equal(t, []byte{1, 2, 3}, got.Payload)
}

func TestEncodeDecodeAwarenessFrame(t *testing.T) {
	f := Awareness([]byte("opaque"))
	raw := EncodeFrame(f)

	got, err := DecodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, KindAwareness, got.Kind)
	assert.Equal(t, []byte("opaque"), got.Payload)
}

func TestEncodeDecodeCustomFrame(t *testing.T) {
	ctrl := Control{Type: TypeJoin, UserID: "alice", SessionID: "s1"}
	f, err := EncodeControl(ctrl)
	require.NoError(t, err)
	assert.Equal(t, KindCustom, f.Kind)

	raw := EncodeFrame(f)
	got, err := DecodeFrame(raw)
	require.NoError(t, err)

	decoded, err := DecodeControl(got)
	require.NoError(t, err)
	assert.Equal(t, TypeJoin, decoded.Type)
	assert.Equal(t, "alice", decoded.UserID)
	assert.Equal(t, "s1", decoded.SessionID)
}

func TestDecodeFrameRejectsEmpty(t *testing.T) {
	_, err := DecodeFrame(nil)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeFrameRejectsTruncatedSync(t *testing.T) {
	_, err := DecodeFrame([]byte{byte(KindSync)})
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeFrameRejectsUnknownKind(t *testing.T) {
	_, err := DecodeFrame([]byte{0xFF})
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestWriteReadFrameStream(t *testing.T) {
	var buf bytes.Buffer
	frames := []Frame{
		Sync(SyncStepVector, []byte("vector-bytes")),
		Awareness([]byte("aware")),
		Custom([]byte(`{"type":"heartbeat"}`)),
	}
	for _, f := range frames {
		require.NoError(t, WriteFrame(&buf, f))
	}

	for _, want := range frames {
		got, err := ReadFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, want.Kind, got.Kind)
		assert.Equal(t, want.Payload, got.Payload)
	}
}

func TestJoinedRoundTrip(t *testing.T) {
	ctrl := NewJoined("s1", Stats{ParticipantCount: 2, FileCount: 3, OpLogLength: 4})
	f, err := EncodeControl(ctrl)
	require.NoError(t, err)

	decoded, err := DecodeControl(f)
	require.NoError(t, err)
	assert.Equal(t, TypeJoined, decoded.Type)

	var data JoinedData
	require.NoError(t, json.Unmarshal(decoded.Data, &data))
	assert.Equal(t, "s1", data.SessionID)
	assert.Equal(t, 2, data.Stats.ParticipantCount)
}
