package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theonlypal/collabfs/internal/client"
	"github.com/theonlypal/collabfs/internal/hub"
	"github.com/theonlypal/collabfs/internal/model"
)

// startTestHub serves a real hub over a real websocket listener and
// returns the ws:// URL clients should dial.
func startTestHub(t *testing.T) string {
	t.Helper()
	h := hub.New(hub.DefaultConfig(), nil, nil)
	srv := NewServer(h, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

// startClient runs c until the test ends and blocks until it reports
// connected.
func startClient(t *testing.T, c *client.Client) {
	t.Helper()
	connected := make(chan struct{}, 1)
	c.OnStateChange = func(state string, err error) {
		if state == "connected" {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Run(ctx)

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("client did not connect")
	}
}

func TestEndToEndWriteSyncsAcrossClients(t *testing.T) {
	url := startTestHub(t)

	a := client.New(client.DefaultConfig(url, "alice", "s1"), nil)
	startClient(t, a)

	a.Session().WriteFile("/a.txt", "hello", "alice", model.WriteOverwrite)

	// A late joiner pulls the full session state down through its own
	// sync step 0.
	b := client.New(client.DefaultConfig(url, "bob", "s1"), nil)
	startClient(t, b)

	require.Eventually(t, func() bool {
		text, ok := b.Session().ReadFile("/a.txt")
		return ok && text == "hello"
	}, 5*time.Second, 20*time.Millisecond)

	// And a live edit flows the other way, relayed peer to peer.
	b.Session().WriteFile("/a.txt", " world", "bob", model.WriteAppend)

	require.Eventually(t, func() bool {
		text, ok := a.Session().ReadFile("/a.txt")
		return ok && text == "hello world"
	}, 5*time.Second, 20*time.Millisecond)

	files := a.Session().ListFiles("")
	require.Len(t, files, 1)
	assert.Equal(t, "/a.txt", files[0].Path)
}

func TestEndToEndServerAuthoritativeDelete(t *testing.T) {
	url := startTestHub(t)

	a := client.New(client.DefaultConfig(url, "alice", "s1"), nil)
	startClient(t, a)

	a.Session().WriteFile("/doomed.txt", "x", "alice", model.WriteOverwrite)

	// A second replica observing the file proves the write reached the
	// hub, so the delete request can't race ahead of it.
	b := client.New(client.DefaultConfig(url, "bob", "s1"), nil)
	startClient(t, b)
	require.Eventually(t, func() bool {
		return b.Session().Document().Exists("/doomed.txt")
	}, 5*time.Second, 20*time.Millisecond)

	a.RequestDelete("/doomed.txt")

	// The hub executes the delete and the resulting update — removal plus
	// its op-log entry — flows back to the requester.
	require.Eventually(t, func() bool {
		if a.Session().Document().Exists("/doomed.txt") {
			return false
		}
		for _, e := range a.Session().OpLog() {
			if e.Kind == model.OpDelete && e.Success {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)
}
