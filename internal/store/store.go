package store

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/spigell/interviewer/internal/interview"
)

const (
	TypeFile  = "file"
	TypeRedis = "redis"
)

var (
	// ErrNotFound is returned for unknown candidate ids and when no
	// candidate is current.
	ErrNotFound = errors.New("candidate not found")
	// ErrExists rejects Create for an id that is already stored.
	ErrExists = errors.New("candidate already exists")
)

// Store persists candidates between exchanges. Every write refreshes the
// candidate's UpdatedAt and returns the stored value.
type Store interface {
	// Create stores a new candidate and marks it current.
	Create(ctx context.Context, c interview.Candidate) (interview.Candidate, error)
	// Save replaces the stored candidate, creating it when missing.
	Save(ctx context.Context, c interview.Candidate) (interview.Candidate, error)
	// Update merges u into the stored candidate.
	Update(ctx context.Context, id string, u interview.Update) (interview.Candidate, error)
	Get(ctx context.Context, id string) (interview.Candidate, error)
	Current(ctx context.Context) (interview.Candidate, error)
	List(ctx context.Context) ([]interview.Candidate, error)
	Close() error
}

// Search filters candidates by a case-insensitive name or email substring
// and orders them by score, best first. Ties keep the newest first.
func Search(candidates []interview.Candidate, query string) []interview.Candidate {
	query = strings.ToLower(strings.TrimSpace(query))

	out := make([]interview.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if query != "" &&
			!strings.Contains(strings.ToLower(c.Name), query) &&
			!strings.Contains(strings.ToLower(c.Email), query) {
			continue
		}
		out = append(out, c)
	}

	slices.SortStableFunc(out, func(a, b interview.Candidate) int {
		if byScore := cmp.Compare(b.Score, a.Score); byScore != 0 {
			return byScore
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

func validate(c interview.Candidate) error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("candidate id is required")
	}
	return nil
}
