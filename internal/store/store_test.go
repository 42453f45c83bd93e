package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/interviewer/internal/interview"
)

var base = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func candidate(id string) interview.Candidate {
	return interview.Candidate{
		ID:             id,
		Status:         interview.StatusCollectingInfo,
		TotalQuestions: interview.TotalQuestions,
		ChatHistory: []interview.ChatMessage{
			{ID: id + "-greeting", Role: interview.RoleAssistant, Content: "Welcome!", Timestamp: base},
		},
		CreatedAt: base,
		UpdatedAt: base,
	}
}

// tick returns a clock advancing one minute per call.
func tick() func() time.Time {
	now := base
	return func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
}

func testStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Current(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	first, err := s.Create(ctx, candidate("c-1"))
	require.NoError(t, err)
	assert.True(t, first.UpdatedAt.After(base), "create refreshes updatedAt")

	_, err = s.Create(ctx, candidate("c-1"))
	require.ErrorIs(t, err, ErrExists)

	_, err = s.Create(ctx, candidate("c-2"))
	require.NoError(t, err)

	current, err := s.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c-2", current.ID, "create marks the candidate current")

	updated, err := s.Update(ctx, "c-1", interview.Update{
		Name:     ptr("John Smith"),
		Messages: []interview.ChatMessage{{ID: "m-1", Role: interview.RoleUser, Content: "hi", Timestamp: base}},
	})
	require.NoError(t, err)
	assert.Equal(t, "John Smith", updated.Name)
	assert.Len(t, updated.ChatHistory, 2)
	assert.True(t, updated.UpdatedAt.After(first.UpdatedAt), "update refreshes updatedAt")

	_, err = s.Update(ctx, "missing", interview.Update{Name: ptr("x")})
	require.ErrorIs(t, err, ErrNotFound)

	got, err := s.Get(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "John Smith", got.Name)
	assert.Len(t, got.ChatHistory, 2)

	got.Score = 80
	got.Status = interview.StatusCompleted
	saved, err := s.Save(ctx, got)
	require.NoError(t, err)
	assert.True(t, saved.UpdatedAt.After(updated.UpdatedAt), "save refreshes updatedAt")

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	ranked := Search(list, "")
	assert.Equal(t, "c-1", ranked[0].ID)
	assert.Equal(t, 80, ranked[0].Score)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	s, err := NewFile(path, zap.NewNop())
	require.NoError(t, err)
	s.now = tick()

	testStoreContract(t, s)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var onDisk map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Contains(t, onDisk, "candidates")
	assert.JSONEq(t, `"c-2"`, string(onDisk["currentCandidateId"]))

	reopened, err := NewFile(path, zap.NewNop())
	require.NoError(t, err)

	got, err := reopened.Get(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, interview.StatusCompleted, got.Status)
	assert.Equal(t, "John Smith", got.Name)

	current, err := reopened.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "c-2", current.ID)
}

func TestFileStoreReturnsCopies(t *testing.T) {
	s, err := NewFile(filepath.Join(t.TempDir(), "state.json"), nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = s.Create(ctx, candidate("c-1"))
	require.NoError(t, err)

	got, err := s.Get(ctx, "c-1")
	require.NoError(t, err)
	got.ChatHistory[0].Content = "tampered"

	again, err := s.Get(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "Welcome!", again.ChatHistory[0].Content)
}

func TestNewFileEdgeCases(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	s, err := NewFile(empty, nil)
	require.NoError(t, err)
	list, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte("{"), 0o644))
	_, err = NewFile(broken, nil)
	assert.Error(t, err)

	_, err = s.Create(context.Background(), interview.Candidate{})
	assert.Error(t, err, "candidates without an id are rejected")
}

func TestSearch(t *testing.T) {
	older := candidate("a")
	older.Name, older.Email, older.Score = "Ann Lee", "ann@lee.io", 60

	newer := candidate("b")
	newer.Name, newer.Email, newer.Score = "Bob Stone", "bob@stone.io", 60
	newer.CreatedAt = base.Add(time.Hour)

	best := candidate("c")
	best.Name, best.Email, best.Score = "Cara Diaz", "cara@ann-corp.io", 90

	all := []interview.Candidate{older, newer, best}

	ids := func(cs []interview.Candidate) []string {
		out := make([]string, 0, len(cs))
		for _, c := range cs {
			out = append(out, c.ID)
		}
		return out
	}

	assert.Equal(t, []string{"c", "b", "a"}, ids(Search(all, "")))
	assert.Equal(t, []string{"c", "a"}, ids(Search(all, " ANN ")), "matches name or email")
	assert.Empty(t, Search(all, "nobody"))
	assert.Equal(t, "a", all[0].ID, "input order is untouched")
}

func newTestRedis(t *testing.T, addr, prefix string) *Redis {
	t.Helper()

	ctx := context.Background()
	s, err := NewRedis(ctx, RedisConfig{Addr: addr, Prefix: prefix}, zap.NewNop())
	require.NoError(t, err)
	s.now = tick()

	t.Cleanup(func() {
		keys, _ := s.client.Keys(ctx, s.prefix+":*").Result()
		if len(keys) > 0 {
			s.client.Del(ctx, keys...)
		}
		s.Close()
	})
	return s
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)

	testStoreContract(t, newTestRedis(t, mr.Addr(), ""))
}

func TestRedisStoreExternal(t *testing.T) {
	addr := os.Getenv("INTERVIEWER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("INTERVIEWER_TEST_REDIS_ADDR is not set")
	}

	testStoreContract(t, newTestRedis(t, addr, "interviewer-test-"+uuid.NewString()))
}

func TestRedisStoreKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newTestRedis(t, mr.Addr(), "team:")
	ctx := context.Background()

	_, err := s.Create(ctx, candidate("a"))
	require.NoError(t, err)
	_, err = s.Create(ctx, candidate("b"))
	require.NoError(t, err)

	assert.True(t, mr.Exists("team:candidate:a"), "prefix is trimmed of its separator")
	current, err := mr.Get("team:current")
	require.NoError(t, err)
	assert.Equal(t, "b", current)
	members, err := mr.Members("team:candidates")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, members)

	mr.Del("team:candidate:a")

	list, err := s.List(ctx)
	require.NoError(t, err, "an indexed id without a value is skipped")
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].ID)

	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Update(ctx, "a", interview.Update{Name: ptr("Ann Lee")})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mr.Set("team:candidate:c", "{"))
	mr.SetAdd("team:candidates", "c")
	_, err = s.List(ctx)
	assert.Error(t, err, "corrupt values are reported")
}

func TestNewRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedis(context.Background(), RedisConfig{Addr: addr}, zap.NewNop())
	assert.Error(t, err)
}
