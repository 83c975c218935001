// Package transcript records one append-only transcript per agent request.
package transcript

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/huandu/go-clone"
	"github.com/lithammer/shortuuid/v3"
	"github.com/pkg/errors"
)

var (
	ErrNotFound  = errors.New("transcript not found")
	ErrFinalized = errors.New("transcript already finalized")
)

// Entry is one recorded message.
type Entry struct {
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp"`
	Role      string         `json:"role" yaml:"role"`
	Content   string         `json:"content" yaml:"content"`
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

type Transcript struct {
	ID            string         `json:"id" yaml:"id"`
	SessionID     string         `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at" yaml:"created_at"`
	FinalizedAt   *time.Time     `json:"finalized_at,omitempty" yaml:"finalized_at,omitempty"`
	FinalResponse string         `json:"final_response,omitempty" yaml:"final_response,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Entries       []Entry        `json:"entries" yaml:"entries"`
}

func (t *Transcript) Finalized() bool {
	return t.FinalizedAt != nil
}

// Summary is the listing form of a transcript.
type Summary struct {
	ID        string    `json:"id" yaml:"id"`
	SessionID string    `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Entries   int       `json:"entries" yaml:"entries"`
	Finalized bool      `json:"finalized" yaml:"finalized"`
}

// Recorder persists transcripts. Append returns the index of the new entry.
type Recorder interface {
	Start(ctx context.Context, sessionID string, metadata map[string]any) (string, error)
	Append(ctx context.Context, id string, e Entry) (int, error)
	Finalize(ctx context.Context, id string, finalResponse string) error
	Get(ctx context.Context, id string) (*Transcript, error)
	List(ctx context.Context) ([]Summary, error)
}

// NewID generates a transcript id.
func NewID() string {
	return "tr_" + shortuuid.New()
}

func sortSummaries(s []Summary) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].CreatedAt.After(s[j].CreatedAt) })
}

// MemoryStore keeps transcripts in process memory.
type MemoryStore struct {
	mu          sync.Mutex
	transcripts map[string]*Transcript
	now         func() time.Time
}

var _ Recorder = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{transcripts: map[string]*Transcript{}, now: time.Now}
}

func (m *MemoryStore) Start(_ context.Context, sessionID string, metadata map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := NewID()
	md, _ := clone.Clone(metadata).(map[string]any)
	m.transcripts[id] = &Transcript{
		ID:        id,
		SessionID: sessionID,
		CreatedAt: m.now(),
		Metadata:  md,
	}
	return id, nil
}

func (m *MemoryStore) Append(_ context.Context, id string, e Entry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transcripts[id]
	if !ok {
		return 0, errors.Wrap(ErrNotFound, id)
	}
	if t.Finalized() {
		return 0, errors.Wrap(ErrFinalized, id)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = m.now()
	}
	t.Entries = append(t.Entries, clone.Clone(e).(Entry))
	return len(t.Entries) - 1, nil
}

func (m *MemoryStore) Finalize(_ context.Context, id string, finalResponse string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transcripts[id]
	if !ok {
		return errors.Wrap(ErrNotFound, id)
	}
	if t.Finalized() {
		return errors.Wrap(ErrFinalized, id)
	}
	now := m.now()
	t.FinalizedAt = &now
	t.FinalResponse = finalResponse
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Transcript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transcripts[id]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, id)
	}
	return clone.Clone(t).(*Transcript), nil
}

func (m *MemoryStore) List(_ context.Context) ([]Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Summary, 0, len(m.transcripts))
	for _, t := range m.transcripts {
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
