package notify

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pagegrid/internal/registry"
	"github.com/vk/pagegrid/internal/testutil"
	sio "github.com/zishang520/socket.io/v2/socket"
)

// newHub starts a socket.io server that records every "build" event and,
// when ackEvent is set, answers it with ack.
func newHub(t *testing.T, ackEvent string, ack any) (string, <-chan map[string]any) {
	t.Helper()
	received := make(chan map[string]any, 4)
	io := sio.NewServer(nil, nil)
	io.On("connection", func(clients ...any) {
		client := clients[0].(*sio.Socket)
		client.On("build", func(args ...any) {
			if len(args) > 0 {
				if payload, ok := args[0].(map[string]any); ok {
					received <- payload
				}
			}
			if ackEvent != "" {
				client.Emit(ackEvent, ack)
			}
		})
	})
	mux := http.NewServeMux()
	mux.Handle("/socket.io/", io.ServeHandler(nil))
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		io.Close(nil)
		srv.Close()
	})
	return srv.URL + "/socket.io/", received
}

func waitPayload(t *testing.T, received <-chan map[string]any) map[string]any {
	t.Helper()
	select {
	case p := <-received:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("no build event received")
		return nil
	}
}

func defaultInput(t *testing.T) *Input {
	t.Helper()
	r := registry.New()
	(&Module{}).Register(r)
	return r.Runners["notify"].NewInput().(*Input)
}

func TestPayload(t *testing.T) {
	s := testutil.NewSite(t, nil)
	in := defaultInput(t)
	in.Data = map[string]string{"channel": "#web", "branch": "override"}

	assert.Equal(t, map[string]any{
		"build_id": "test-build",
		"branch":   "override",
		"commit":   "0123abc",
		"url_root": "",
		"channel":  "#web",
	}, Payload(s, in))
}

func TestResponseString(t *testing.T) {
	assert.Equal(t, "ok", responseString("ok"))
	assert.Equal(t, `{"status":"queued"}`, responseString(map[string]any{"status": "queued"}))
	assert.Equal(t, "3", responseString(3))
}

func TestRunInvalidInput(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s := testutil.NewSite(t, nil)

	tests := []struct {
		name    string
		url     string
		timeout string
		wantErr string
	}{
		{"missing host", "/socket.io/", "1s", "scheme and host are required"},
		{"bad timeout", "http://localhost:1", "soon", "invalid timeout"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := defaultInput(t)
			in.URL = tc.url
			in.Timeout = tc.timeout
			_, err := Run(ctx, s, in)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestRunUnreachable(t *testing.T) {
	ctx, _ := testutil.Context(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	in := defaultInput(t)
	in.URL = srv.URL + "/socket.io/"
	in.Timeout = "2s"
	out, err := Run(ctx, testutil.NewSite(t, nil), in)
	require.Error(t, err)
	assert.Nil(t, out)
}

func TestRunDelivers(t *testing.T) {
	ctx, _ := testutil.Context(t)
	url, received := newHub(t, "", nil)

	in := defaultInput(t)
	in.URL = url
	in.Data = map[string]string{"channel": "#web"}
	out, err := Run(ctx, testutil.NewSite(t, nil), in)
	require.NoError(t, err)
	assert.Equal(t, &Output{Delivered: true}, out)

	payload := waitPayload(t, received)
	assert.Equal(t, "test-build", payload["build_id"])
	assert.Equal(t, "master", payload["branch"])
	assert.Equal(t, "#web", payload["channel"])
}

func TestRunWaitsForAck(t *testing.T) {
	ctx, _ := testutil.Context(t)
	url, received := newHub(t, "build_ack", map[string]any{"status": "queued"})

	in := defaultInput(t)
	in.URL = url
	in.AckEvent = "build_ack"
	out, err := Run(ctx, testutil.NewSite(t, nil), in)
	require.NoError(t, err)
	assert.Equal(t, &Output{Delivered: true, Response: `{"status":"queued"}`}, out)
	assert.Equal(t, "test-build", waitPayload(t, received)["build_id"])
}

func TestRunAckTimeout(t *testing.T) {
	ctx, _ := testutil.Context(t)
	url, received := newHub(t, "", nil)

	in := defaultInput(t)
	in.URL = url
	in.AckEvent = "build_ack"
	in.Timeout = "1s"
	out, err := Run(ctx, testutil.NewSite(t, nil), in)
	assert.Nil(t, out)
	assert.ErrorContains(t, err, "timed out waiting for 'build_ack'")
	waitPayload(t, received)
}
