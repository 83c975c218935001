package engine

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// DiskTap persists raw provider traffic below a directory, one numbered set of files per
// model call: call-N-request.json, call-N-response.json, call-N-sse.log and
// call-N-provider-*.json.
type DiskTap struct {
	dir string

	mu      sync.Mutex
	call    int
	sseFile *os.File
	seq     int
}

var _ DebugTap = (*DiskTap)(nil)

func NewDiskTap(dir string) (*DiskTap, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create debug tap directory")
	}
	return &DiskTap{dir: dir}, nil
}

func (d *DiskTap) path(format string, args ...any) string {
	return filepath.Join(d.dir, fmt.Sprintf(format, args...))
}

// OnHTTP starts a new call.
func (d *DiskTap) OnHTTP(req *http.Request, body []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeSSE()
	d.call++
	writeJSON(d.path("call-%d-request.json", d.call), map[string]any{
		"method":  req.Method,
		"url":     req.URL.String(),
		"headers": headerMap(req.Header),
		"body":    jsonRawOrString(body),
	})
}

func (d *DiskTap) OnHTTPResponse(resp *http.Response, body []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	writeJSON(d.path("call-%d-response.json", d.call), map[string]any{
		"status":  resp.StatusCode,
		"headers": headerMap(resp.Header),
		"body":    jsonRawOrString(body),
	})
}

func (d *DiskTap) OnSSE(event string, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sseFile == nil {
		f, err := os.Create(d.path("call-%d-sse.log", d.call))
		if err != nil {
			return
		}
		d.sseFile = f
	}
	if event != "" {
		_, _ = d.sseFile.WriteString("event: " + event + "\n")
	}
	_, _ = d.sseFile.WriteString("data: " + string(data) + "\n\n")
}

func (d *DiskTap) OnProviderObject(name string, v any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	safeName := strings.NewReplacer("/", "-", "\\", "-", " ", "_").Replace(name)
	writeJSON(d.path("call-%d-provider-%06d-%s.json", d.call, d.seq, safeName), map[string]any{
		"seq":    d.seq,
		"type":   name,
		"object": v,
	})
}

func (d *DiskTap) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeSSE()
}

func (d *DiskTap) closeSSE() {
	if d.sseFile != nil {
		_ = d.sseFile.Close()
		d.sseFile = nil
	}
}

var redactedHeaders = map[string]bool{
	"Authorization": true,
	"X-Api-Key":     true,
}

func headerMap(h http.Header) map[string][]string {
	m := make(map[string][]string, len(h))
	for k, v := range h {
		if redactedHeaders[http.CanonicalHeaderKey(k)] {
			m[k] = []string{"<redacted>"}
			continue
		}
		m[k] = v
	}
	return m
}

func writeJSON(path string, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(path, b, 0o644)
}

func jsonRawOrString(b []byte) any {
	var v any
	if json.Unmarshal(b, &v) == nil {
		return v
	}
	return string(b)
}
