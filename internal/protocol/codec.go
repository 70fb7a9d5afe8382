// Package protocol implements the framed binary envelope the hub and
// client replica exchange over one bidirectional stream: a leading kind
// byte, a sync sub-envelope with its own step byte, and a custom-control
// payload carrying small JSON objects. No JSON at the outer layer — only
// the custom-control kind's payload is JSON.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrMalformedFrame is returned when a frame's envelope cannot be decoded.
// The caller (hub/client) closes the offending stream; no other peer is
// affected.
var ErrMalformedFrame = errors.New("protocol: malformed frame")

// Kind is the outer envelope's leading byte.
type Kind uint8

const (
	KindSync      Kind = 0
	KindAwareness Kind = 1
	KindCustom    Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindSync:
		return "sync"
	case KindAwareness:
		return "awareness"
	case KindCustom:
		return "custom"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// SyncStep is the sub-envelope byte carried by kind-0 frames.
type SyncStep uint8

const (
	SyncStepVector SyncStep = 0 // state-vector: "send me what I'm missing"
	SyncStepAnswer SyncStep = 1 // answer to step 0: the missing update
	SyncStepUpdate SyncStep = 2 // unsolicited incremental update
)

// Frame is one decoded message. Step is only meaningful when Kind ==
// KindSync; it is the zero value otherwise.
type Frame struct {
	Kind    Kind
	Step    SyncStep
	Payload []byte
}

// Sync builds a kind-0 frame for the given step.
func Sync(step SyncStep, payload []byte) Frame {
	return Frame{Kind: KindSync, Step: step, Payload: payload}
}

// Awareness builds a kind-1 frame. The hub relays it without interpreting
// payload or applying it to the document.
func Awareness(payload []byte) Frame {
	return Frame{Kind: KindAwareness, Payload: payload}
}

// Custom builds a kind-2 frame carrying a UTF-8 JSON payload.
func Custom(payload []byte) Frame {
	return Frame{Kind: KindCustom, Payload: payload}
}

// EncodeFrame renders f as a self-contained byte slice: kind byte,
// step byte (sync frames only), then the raw payload. This is the body
// of exactly one transport message — a message-oriented transport (e.g.
// a WebSocket frame) already delimits it at the transport layer.
func EncodeFrame(f Frame) []byte {
	hdr := 1
	if f.Kind == KindSync {
		hdr = 2
	}
	buf := make([]byte, hdr+len(f.Payload))
	buf[0] = byte(f.Kind)
	if f.Kind == KindSync {
		buf[1] = byte(f.Step)
	}
	copy(buf[hdr:], f.Payload)
	return buf
}

// DecodeFrame parses one transport message's body into a Frame.
func DecodeFrame(raw []byte) (Frame, error) {
	if len(raw) < 1 {
		return Frame{}, fmt.Errorf("%w: empty message", ErrMalformedFrame)
	}
	kind := Kind(raw[0])
	switch kind {
	case KindSync:
		if len(raw) < 2 {
			return Frame{}, fmt.Errorf("%w: sync frame missing step byte", ErrMalformedFrame)
		}
		return Frame{Kind: kind, Step: SyncStep(raw[1]), Payload: raw[2:]}, nil
	case KindAwareness, KindCustom:
		return Frame{Kind: kind, Payload: raw[1:]}, nil
	default:
		return Frame{}, fmt.Errorf("%w: unknown kind %d", ErrMalformedFrame, raw[0])
	}
}

// WriteFrame writes f to w as a varint-length-prefixed envelope, for byte-
// stream transports that don't delimit messages on their own. Message-
// oriented transports (the WebSocket transport) use EncodeFrame directly
// instead.
func WriteFrame(w io.Writer, f Frame) error {
	body := EncodeFrame(f)
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(body)))
	if _, err := w.Write(lenBuf[:n]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// ReadFrame reads one varint-length-prefixed frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	length, err := binary.ReadUvarint(byteReader{r})
	if err != nil {
		return Frame{}, err
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, err
	}
	return DecodeFrame(body)
}

// byteReader adapts an io.Reader to io.ByteReader one byte at a time, for
// binary.ReadUvarint. Fine for framing overhead: varints here are at most
// a handful of bytes.
type byteReader struct{ io.Reader }

func (b byteReader) ReadByte() (byte, error) {
	var buf [1]byte
	_, err := io.ReadFull(b.Reader, buf[:])
	return buf[0], err
}
