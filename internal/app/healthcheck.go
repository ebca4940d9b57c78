package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/vk/pagegrid/internal/ctxlog"
)

// healthHandler reports the state of the last build: 200 when it
// succeeded, 503 when it failed or none has finished yet.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)

	status := struct {
		Status  string `json:"status"`
		BuildID string `json:"build_id,omitempty"`
		Error   string `json:"error,omitempty"`
	}{Status: "starting"}
	code := http.StatusServiceUnavailable

	if last := a.LastBuild(); last != nil {
		status.BuildID = last.BuildID
		if last.Err != nil {
			status.Status = "failed"
			status.Error = last.Err.Error()
		} else {
			status.Status = "ok"
			code = http.StatusOK
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

// serveHTTP serves handler on ln until ctx is done, then shuts the server
// down gracefully.
func serveHTTP(ctx context.Context, name string, ln net.Listener, handler http.Handler) error {
	logger := ctxlog.FromContext(ctx)
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(name+" starting", "address", "http://"+ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s failed: %w", name, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	logger.Debug("Shutting down server.", "server", name)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed.", "server", name, "error", err)
		return err
	}
	<-errCh
	return nil
}
