package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/interviewer/internal/interview"
	"github.com/spigell/interviewer/internal/logger"
)

// state is the on-disk document.
type state struct {
	Candidates         []interview.Candidate `json:"candidates"`
	CurrentCandidateID string                `json:"currentCandidateId,omitempty"`
}

// File keeps every candidate in a single JSON document.
type File struct {
	mu     sync.Mutex
	path   string
	state  state
	now    func() time.Time
	logger *zap.Logger
}

// NewFile loads path if it exists. A missing or empty file is an empty store.
func NewFile(path string, log *zap.Logger) (*File, error) {
	f := &File{
		path:   path,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.WithFields(log, zap.String("store", TypeFile), zap.String("path", path)),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("read state file: %w", err)
	case len(data) == 0:
		return f, nil
	}

	if err := json.Unmarshal(data, &f.state); err != nil {
		return nil, fmt.Errorf("decode state file %q: %w", path, err)
	}

	f.logger.Debug("state loaded", zap.Int("candidates", len(f.state.Candidates)))
	return f, nil
}

func (f *File) Create(_ context.Context, c interview.Candidate) (interview.Candidate, error) {
	if err := validate(c); err != nil {
		return interview.Candidate{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.index(c.ID) >= 0 {
		return interview.Candidate{}, fmt.Errorf("%w: %s", ErrExists, c.ID)
	}

	c = c.Clone()
	c.UpdatedAt = f.now()

	next := f.copyState()
	next.Candidates = append(next.Candidates, c)
	next.CurrentCandidateID = c.ID

	if err := f.persist(next); err != nil {
		return interview.Candidate{}, err
	}
	return c.Clone(), nil
}

func (f *File) Save(_ context.Context, c interview.Candidate) (interview.Candidate, error) {
	if err := validate(c); err != nil {
		return interview.Candidate{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	c = c.Clone()
	c.UpdatedAt = f.now()

	next := f.copyState()
	if i := f.index(c.ID); i >= 0 {
		next.Candidates[i] = c
	} else {
		next.Candidates = append(next.Candidates, c)
	}

	if err := f.persist(next); err != nil {
		return interview.Candidate{}, err
	}
	return c.Clone(), nil
}

func (f *File) Update(_ context.Context, id string, u interview.Update) (interview.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.index(id)
	if i < 0 {
		return interview.Candidate{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	c := u.Apply(f.state.Candidates[i])
	c.UpdatedAt = f.now()

	next := f.copyState()
	next.Candidates[i] = c

	if err := f.persist(next); err != nil {
		return interview.Candidate{}, err
	}
	return c.Clone(), nil
}

func (f *File) Get(_ context.Context, id string) (interview.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.index(id)
	if i < 0 {
		return interview.Candidate{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return f.state.Candidates[i].Clone(), nil
}

func (f *File) Current(ctx context.Context) (interview.Candidate, error) {
	f.mu.Lock()
	id := f.state.CurrentCandidateID
	f.mu.Unlock()

	if id == "" {
		return interview.Candidate{}, fmt.Errorf("%w: no current candidate", ErrNotFound)
	}
	return f.Get(ctx, id)
}

func (f *File) List(context.Context) ([]interview.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]interview.Candidate, 0, len(f.state.Candidates))
	for _, c := range f.state.Candidates {
		out = append(out, c.Clone())
	}
	return out, nil
}

func (f *File) Close() error { return nil }

func (f *File) index(id string) int {
	for i, c := range f.state.Candidates {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (f *File) copyState() state {
	return state{
		Candidates:         append([]interview.Candidate(nil), f.state.Candidates...),
		CurrentCandidateID: f.state.CurrentCandidateID,
	}
}

// persist writes next through a temporary file and only then swaps it into
// memory, so a failed write leaves both copies unchanged.
func (f *File) persist(next state) error {
	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}

	f.state = next
	return nil
}
