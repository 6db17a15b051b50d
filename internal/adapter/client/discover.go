package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"lattice/pkg/protocol"
)

// DefaultServerURL is probed when the terminal starts without --server or
// --local.
const DefaultServerURL = "http://127.0.0.1:8000"

// NormalizeServerURL accepts "host:port" or a full URL and returns
// scheme://host with any path dropped.
func NormalizeServerURL(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid server URL: %s", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

// Healthy reports whether GET /health answers 200 within a second.
func Healthy(ctx context.Context, hc *http.Client, serverURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := hc.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// SameProject reports whether the server's /info names projectRoot as its
// project root. Paths are compared after resolving symlinks.
func SameProject(ctx context.Context, hc *http.Client, serverURL, projectRoot string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/info", nil)
	if err != nil {
		return false
	}
	resp, err := hc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	var info protocol.ServerInfoResponse
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&info) != nil || info.ProjectRoot == "" {
		return false
	}
	return samePath(info.ProjectRoot, projectRoot)
}

func samePath(a, b string) bool {
	ra, err := resolvePath(a)
	if err != nil {
		return false
	}
	rb, err := resolvePath(b)
	if err != nil {
		return false
	}
	return ra == rb
}

func resolvePath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return filepath.Clean(abs), nil
}

// Discover decides between a running server and a local backend. It returns
// the server URL and true when serverURL is healthy and serves projectRoot.
func Discover(ctx context.Context, hc *http.Client, serverURL, projectRoot string) (string, bool) {
	if hc == nil {
		hc = http.DefaultClient
	}
	if !Healthy(ctx, hc, serverURL) {
		return "", false
	}
	if !SameProject(ctx, hc, serverURL, projectRoot) {
		return "", false
	}
	return serverURL, true
}
