// Package publish uploads the build directory to an object store or any
// HTTP endpoint that accepts PUT requests, such as pre-signed bucket URLs.
package publish

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/vk/pagegrid/internal/ctxlog"
	"github.com/vk/pagegrid/internal/fsutil"
	"github.com/vk/pagegrid/internal/registry"
	"github.com/vk/pagegrid/internal/site"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the 'arguments' HCL block.
type Input struct {
	// Endpoint is the base URL; each file is sent to <endpoint>/<prefix>/<rel>.
	Endpoint string            `hcl:"endpoint"`
	Prefix   string            `hcl:"prefix,optional"`
	Method   string            `hcl:"method,optional"`
	Headers  map[string]string `hcl:"headers,optional"`
	Include  []string          `hcl:"include,optional"`
	Exclude  []string          `hcl:"exclude,optional"`
	Timeout  string            `hcl:"timeout,optional"`
}

// Run uploads every selected file below the dest directory. Files holds the
// uploaded URLs.
func Run(ctx context.Context, s *site.Site, in *Input) (*site.FilesOutput, error) {
	logger := ctxlog.FromContext(ctx)

	if in.Endpoint == "" {
		return nil, fmt.Errorf("publish endpoint must not be empty")
	}
	timeout := time.Minute
	if in.Timeout != "" {
		d, err := time.ParseDuration(in.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", in.Timeout, err)
		}
		timeout = d
	}
	client := &http.Client{Timeout: timeout}

	files, err := fsutil.Selection{Include: in.Include, Exclude: in.Exclude}.Find(s.Config.Dest)
	if err != nil {
		return nil, err
	}
	logger.Info("Publishing build", "files", len(files), "endpoint", in.Endpoint)

	base := strings.TrimSuffix(in.Endpoint, "/")
	return s.ForEachFile(ctx, files, func(ctx context.Context, rel string) (string, error) {
		url := base + "/" + strings.TrimPrefix(path.Join(in.Prefix, rel), "/")
		if err := upload(ctx, client, in, filepath.Join(s.Config.Dest, filepath.FromSlash(rel)), url); err != nil {
			return "", err
		}
		return url, nil
	})
}

// upload sends one file with its content type.
func upload(ctx context.Context, client *http.Client, in *Input, src, url string) error {
	logger := ctxlog.FromContext(ctx)

	file, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file '%s': %w", src, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file stats for '%s': %w", src, err)
	}

	req, err := http.NewRequestWithContext(ctx, in.Method, url, file)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(src))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range in.Headers {
		req.Header.Set(k, v)
	}
	req.ContentLength = stat.Size()

	logger.Debug("Uploading file.", "source", src, "url", url, "size", stat.Size(), "contentType", contentType)
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", src, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upload of %s failed with status: %s", url, resp.Status)
	}
	return nil
}

// Register registers the runner with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("publish", &registry.RegisteredRunner{
		NewInput: func() any {
			return &Input{Method: http.MethodPut, Include: []string{"**"}}
		},
		Fn:          Run,
		Description: "upload the build directory",
	})
}
