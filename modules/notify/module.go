// Package notify announces a finished build to a socket.io endpoint, e.g. a
// deploy dashboard or a chat bridge.
package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/vk/pagegrid/internal/ctxlog"
	"github.com/vk/pagegrid/internal/registry"
	"github.com/vk/pagegrid/internal/site"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the 'arguments' HCL block.
type Input struct {
	URL       string `hcl:"url"`
	Namespace string `hcl:"namespace,optional"`
	Event     string `hcl:"event,optional"`
	// Data is merged over the build fields of the payload.
	Data map[string]string `hcl:"data,optional"`
	// AckEvent, when set, is awaited after emitting.
	AckEvent           string `hcl:"ack_event,optional"`
	Timeout            string `hcl:"timeout,optional"`
	InsecureSkipVerify bool   `hcl:"insecure_skip_verify,optional"`
}

// Output defines the data structure returned by the runner.
type Output struct {
	Delivered bool   `cty:"delivered"`
	Response  string `cty:"response"`
}

type result struct {
	out *Output
	err error
}

// Payload returns the message emitted for the build of s.
func Payload(s *site.Site, in *Input) map[string]any {
	p := map[string]any{
		"build_id": s.BuildID,
		"branch":   s.Git.Branch,
		"commit":   s.Git.Commit,
		"url_root": s.URLRoot,
	}
	for k, v := range in.Data {
		p[k] = v
	}
	return p
}

// Run connects, emits the build event and optionally waits for AckEvent.
func Run(ctx context.Context, s *site.Site, in *Input) (*Output, error) {
	logger := ctxlog.FromContext(ctx).With("url", in.URL, "event", in.Event)

	timeout, err := time.ParseDuration(in.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout %q: %w", in.Timeout, err)
	}
	parsed, err := url.Parse(in.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid notify URL %q: scheme and host are required", in.URL)
	}

	opts := socket.DefaultOptions()
	if parsed.Path != "" && parsed.Path != "/" {
		opts.SetPath(parsed.Path)
	}
	if in.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result, 1)
	finish := func(r result) {
		select {
		case done <- r:
		default:
		}
	}
	var connected atomic.Bool

	manager := socket.NewManager(fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host), opts)
	io := manager.Socket(in.Namespace, opts)
	defer io.Disconnect()

	payload := Payload(s, in)
	io.On(types.EventName("connect"), func(...any) {
		if connected.Swap(true) {
			return
		}
		logger.Debug("Connected.", "sid", io.Id())
		io.Emit(in.Event, payload)
		logger.Info("Build announced.", "build_id", s.BuildID)
		if in.AckEvent == "" {
			finish(result{out: &Output{Delivered: true}})
		}
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("socket.io connection failed")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = fmt.Errorf("socket.io connection failed: %w", e)
			}
		}
		finish(result{err: err})
	})
	if in.AckEvent != "" {
		io.On(types.EventName(in.AckEvent), func(data ...any) {
			out := &Output{Delivered: true}
			if len(data) > 0 {
				out.Response = responseString(data[0])
			}
			finish(result{out: out})
		})
	}

	io.Connect()

	select {
	case <-opCtx.Done():
		if connected.Load() {
			return nil, fmt.Errorf("timed out waiting for '%s' after %s", in.AckEvent, timeout)
		}
		return nil, fmt.Errorf("timed out connecting to %s after %s", in.URL, timeout)
	case r := <-done:
		return r.out, r.err
	}
}

// responseString renders an acknowledgement payload; strings pass through,
// everything else is JSON encoded.
func responseString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// Register registers the runner with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("notify", &registry.RegisteredRunner{
		NewInput: func() any {
			return &Input{Namespace: "/", Event: "build", Timeout: "10s"}
		},
		Fn:          Run,
		Description: "announce the build over socket.io",
	})
}
