package transcript

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// YAMLDirStore writes each transcript as <id>.yaml in a directory.
type YAMLDirStore struct {
	dir string
	mu  sync.Mutex
}

var _ Recorder = (*YAMLDirStore)(nil)

func NewYAMLDirStore(dir string) (*YAMLDirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create transcript dir")
	}
	return &YAMLDirStore{dir: dir}, nil
}

func (y *YAMLDirStore) path(id string) string {
	return filepath.Join(y.dir, id+".yaml")
}

func (y *YAMLDirStore) load(id string) (*Transcript, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, errors.Wrap(ErrNotFound, id)
	}
	b, err := os.ReadFile(y.path(id))
	if os.IsNotExist(err) {
		return nil, errors.Wrap(ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	t := &Transcript{}
	if err := yaml.Unmarshal(b, t); err != nil {
		return nil, errors.Wrapf(err, "decode transcript %s", id)
	}
	return t, nil
}

// save writes through a temp file so readers never see a partial transcript.
func (y *YAMLDirStore) save(t *Transcript) error {
	b, err := yaml.Marshal(t)
	if err != nil {
		return errors.Wrap(err, "encode transcript")
	}
	tmp, err := os.CreateTemp(y.dir, ".tmp-"+t.ID+"-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), y.path(t.ID))
}

func (y *YAMLDirStore) Start(_ context.Context, sessionID string, metadata map[string]any) (string, error) {
	y.mu.Lock()
	defer y.mu.Unlock()
	t := &Transcript{
		ID:        NewID(),
		SessionID: sessionID,
		CreatedAt: time.Now(),
		Metadata:  metadata,
	}
	if err := y.save(t); err != nil {
		return "", err
	}
	return t.ID, nil
}

func (y *YAMLDirStore) Append(_ context.Context, id string, e Entry) (int, error) {
	y.mu.Lock()
	defer y.mu.Unlock()
	t, err := y.load(id)
	if err != nil {
		return 0, err
	}
	if t.Finalized() {
		return 0, errors.Wrap(ErrFinalized, id)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	t.Entries = append(t.Entries, e)
	if err := y.save(t); err != nil {
		return 0, err
	}
	return len(t.Entries) - 1, nil
}

func (y *YAMLDirStore) Finalize(_ context.Context, id string, finalResponse string) error {
	y.mu.Lock()
	defer y.mu.Unlock()
	t, err := y.load(id)
	if err != nil {
		return err
	}
	if t.Finalized() {
		return errors.Wrap(ErrFinalized, id)
	}
	now := time.Now()
	t.FinalizedAt = &now
	t.FinalResponse = finalResponse
	return y.save(t)
}

func (y *YAMLDirStore) Get(_ context.Context, id string) (*Transcript, error) {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.load(id)
}

func (y *YAMLDirStore) List(_ context.Context) ([]Summary, error) {
	y.mu.Lock()
	defer y.mu.Unlock()
	matches, err := filepath.Glob(filepath.Join(y.dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(matches))
	for _, m := range matches {
		t, err := y.load(strings.TrimSuffix(filepath.Base(m), ".yaml"))
		if err != nil {
			return nil, err
		}
		out = append(out, Summary{
			ID:        t.ID,
			SessionID: t.SessionID,
			CreatedAt: t.CreatedAt,
			Entries:   len(t.Entries),
			Finalized: t.Finalized(),
		})
	}
	sortSummaries(out)
	return out, nil
}
