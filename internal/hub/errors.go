package hub

import "errors"

var (
	// ErrUnknownSession is returned by Serve when a sync frame arrives on
	// a stream that never sent "join": the stream is closed, no other
	// peer is affected.
	ErrUnknownSession = errors.New("hub: sync frame before join")

	// ErrBackpressure marks a peer dropped because its outbound queue hit
	// the high-water mark. No data is lost: the peer resyncs from its
	// state vector on reconnect.
	ErrBackpressure = errors.New("hub: peer outbound queue full")

	// ErrSnapshotIO wraps snapshot store failures. Recoverable: the
	// session stays up and the next snapshot tick retries.
	ErrSnapshotIO = errors.New("hub: snapshot store failure")
)
