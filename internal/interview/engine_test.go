package interview

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/interviewer/internal/ai"
)

type stubGenerator struct {
	replies  []string
	err      error
	requests []ai.Request
}

func (s *stubGenerator) Generate(_ context.Context, req ai.Request) (string, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return "", s.err
	}
	if len(s.replies) == 0 {
		return "ok", nil
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

func (s *stubGenerator) Model() string { return "stub-model" }

func (s *stubGenerator) lastRequest(t *testing.T) ai.Request {
	t.Helper()
	require.NotEmpty(t, s.requests, "expected a backend request")
	return s.requests[len(s.requests)-1]
}

var testEpoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestEngine(gen ai.Generator, opts ...Option) *Engine {
	ids := 0
	ticks := 0
	base := []Option{
		WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("id-%d", ids)
		}),
		WithClock(func() time.Time {
			ticks++
			return testEpoch.Add(time.Duration(ticks) * time.Second)
		}),
	}
	return NewEngine(gen, zap.NewNop(), append(base, opts...)...)
}

func readyCandidate(e *Engine) Candidate {
	c := e.NewCandidate()
	c.Name, c.Email, c.Phone = "John Smith", "john@x.com", "555-123-4567"
	c.Status = StatusInProgress
	return c
}

func TestNewCandidate(t *testing.T) {
	c := newTestEngine(&stubGenerator{}).NewCandidate()

	assert.Equal(t, "id-1", c.ID)
	assert.Equal(t, StatusCollectingInfo, c.Status)
	assert.Equal(t, TotalQuestions, c.TotalQuestions)
	assert.Zero(t, c.CurrentQuestion)
	assert.Zero(t, c.Score)
	require.Len(t, c.ChatHistory, 1)
	assert.Equal(t, RoleAssistant, c.ChatHistory[0].Role)
	assert.Contains(t, c.ChatHistory[0].Content, "upload your resume")
	assert.Nil(t, c.CompletedAt)
}

func TestIngestDocument(t *testing.T) {
	t.Run("partial fields stay in collecting info", func(t *testing.T) {
		e := newTestEngine(&stubGenerator{})

		c, extraction, err := e.IngestDocument(e.NewCandidate(), "objective: build things\ncontact: john@x.com")
		require.NoError(t, err)

		assert.Equal(t, "john@x.com", extraction.Email)
		assert.Equal(t, StatusCollectingInfo, c.Status)
		assert.Equal(t, "john@x.com", c.Email)
		assert.Empty(t, c.Name)
		assert.Empty(t, c.Phone)
		assert.Equal(t, "objective: build things\ncontact: john@x.com", c.ResumeText)

		require.Len(t, c.ChatHistory, 2)
		confirmation := c.ChatHistory[1].Content
		assert.Contains(t, confirmation, "Name: Not found")
		assert.Contains(t, confirmation, "Email: john@x.com")
		assert.Contains(t, confirmation, "Please provide the missing information")
	})

	t.Run("all fields move to in progress", func(t *testing.T) {
		e := newTestEngine(&stubGenerator{})

		c, _, err := e.IngestDocument(e.NewCandidate(), "John Smith\njohn@x.com\n555-123-4567")
		require.NoError(t, err)

		assert.Equal(t, StatusInProgress, c.Status)
		assert.Zero(t, c.CurrentQuestion)
		assert.Contains(t, c.ChatHistory[len(c.ChatHistory)-1].Content, "Are you ready?")
	})

	t.Run("known fields are not overwritten", func(t *testing.T) {
		e := newTestEngine(&stubGenerator{})
		c := e.NewCandidate()
		c.Name = "Jane Roe"

		c, extraction, err := e.IngestDocument(c, "John Smith\njohn@x.com")
		require.NoError(t, err)

		assert.Equal(t, "John Smith", extraction.Name)
		assert.Equal(t, "Jane Roe", c.Name)
		assert.Equal(t, "john@x.com", c.Email)
	})

	t.Run("rejected once the interview started", func(t *testing.T) {
		e := newTestEngine(&stubGenerator{})
		c := readyCandidate(e)

		got, _, err := e.IngestDocument(c, "John Smith")
		require.ErrorIs(t, err, ErrInterviewStarted)
		assert.Equal(t, c, got)
	})
}

func TestCollectingInfoToInProgress(t *testing.T) {
	gen := &stubGenerator{replies: []string{"Nice to meet you, John!", "Question 1: why this role?"}}
	e := newTestEngine(gen)

	c, _, err := e.IngestDocument(e.NewCandidate(), "contact: john@x.com")
	require.NoError(t, err)
	require.Equal(t, StatusCollectingInfo, c.Status)

	c, err = e.IngestUserMessage(context.Background(), c, "My name is John Smith")
	require.NoError(t, err)
	assert.Equal(t, "John Smith", c.Name)
	assert.Equal(t, StatusCollectingInfo, c.Status)
	assert.NotContains(t, gen.lastRequest(t).Instruction, "The candidate is ready")

	c, err = e.IngestUserMessage(context.Background(), c, "you can reach me at 555-123-4567, I'm ready")
	require.NoError(t, err)

	assert.Equal(t, StatusInProgress, c.Status)
	assert.Equal(t, 1, c.CurrentQuestion)
	assert.Equal(t, "555-123-4567", c.Phone)
	assert.Contains(t, gen.lastRequest(t).Instruction, "The candidate is ready. Generate the first interview question.")

	last := c.ChatHistory[len(c.ChatHistory)-1]
	assert.Equal(t, RoleAssistant, last.Role)
	assert.Equal(t, "Question 1: why this role?", last.Content)
}

func TestCollectingInfoRequiresAffirmative(t *testing.T) {
	e := newTestEngine(&stubGenerator{})
	c := e.NewCandidate()
	c.Name, c.Email = "John Smith", "john@x.com"

	c, err := e.IngestUserMessage(context.Background(), c, "my phone is 555-123-4567")
	require.NoError(t, err)

	assert.Equal(t, "555-123-4567", c.Phone)
	assert.Equal(t, StatusCollectingInfo, c.Status)
	assert.Zero(t, c.CurrentQuestion)
}

func TestFullInterview(t *testing.T) {
	gen := &stubGenerator{}
	e := newTestEngine(gen)
	c := readyCandidate(e)
	ctx := context.Background()

	c, err := e.IngestUserMessage(ctx, c, "Let's start")
	require.NoError(t, err)
	require.Equal(t, 1, c.CurrentQuestion)
	require.Zero(t, c.Score)

	for k := 1; k < TotalQuestions; k++ {
		gen.replies = []string{fmt.Sprintf("[Score: 3/20]\nOK.\nQuestion %d", k+1)}
		before := len(c.ChatHistory)

		c, err = e.IngestUserMessage(ctx, c, fmt.Sprintf("answer %d", k))
		require.NoError(t, err)

		assert.Equal(t, k+1, c.CurrentQuestion)
		assert.Equal(t, CumulativeScore(k, TotalQuestions), c.Score, "literal score is informational only")
		assert.Equal(t, StatusInProgress, c.Status)
		assert.Len(t, c.ChatHistory, before+2)
		assert.Contains(t, gen.lastRequest(t).Instruction, fmt.Sprintf("just answered question %d", k))
	}
	require.Equal(t, 80, c.Score)

	gen.replies = []string{"[Final Score: 87/100]\n[Comprehensive Summary]\nSolid fundamentals.\n[Closing remarks]\nThanks!"}
	c, err = e.IngestUserMessage(ctx, c, "final answer")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, c.Status)
	assert.Equal(t, 87, c.Score)
	assert.Equal(t, "Solid fundamentals.", c.AISummary)
	assert.Equal(t, TotalQuestions, c.CurrentQuestion)
	require.NotNil(t, c.CompletedAt)
	assert.Contains(t, gen.lastRequest(t).Instruction, "[Final Score: X/100]")

	requests := len(gen.requests)
	done, err := e.IngestUserMessage(ctx, c, "one more thing")
	require.NoError(t, err)
	assert.Equal(t, c, done)
	assert.Len(t, gen.requests, requests, "completed interviews make no backend calls")
}

func TestFinalEvaluationWithoutMarkers(t *testing.T) {
	e := newTestEngine(&stubGenerator{replies: []string{"Thanks for your time!"}})
	c := readyCandidate(e)
	c.CurrentQuestion = TotalQuestions
	c.Score = 80

	c, err := e.IngestUserMessage(context.Background(), c, "done")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, c.Status)
	assert.Zero(t, c.Score)
	assert.Empty(t, c.AISummary)
}

func TestRequestCarriesPriorHistoryOnly(t *testing.T) {
	gen := &stubGenerator{}
	e := newTestEngine(gen)
	c := readyCandidate(e)

	_, err := e.IngestUserMessage(context.Background(), c, "hello there")
	require.NoError(t, err)

	req := gen.lastRequest(t)
	assert.Equal(t, "hello there", req.Message)
	require.Len(t, req.History, 1)
	assert.Equal(t, c.ChatHistory[0].Content, req.History[0].Text)
}

func TestBackendFailure(t *testing.T) {
	testCases := []struct {
		name string
		err  error
	}{
		{name: "plain error", err: errors.New("connection reset")},
		{name: "already categorised", err: fmt.Errorf("%w: status 503", ai.ErrBackend)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine(&stubGenerator{err: tc.err})
			c := readyCandidate(e)
			c.CurrentQuestion = 2
			c.Score = 20

			got, err := e.IngestUserMessage(context.Background(), c, "my answer")
			require.ErrorIs(t, err, ai.ErrBackend)

			require.Len(t, got.ChatHistory, len(c.ChatHistory)+1)
			pending := got.ChatHistory[len(got.ChatHistory)-1]
			assert.Equal(t, RoleUser, pending.Role)
			assert.Equal(t, "my answer", pending.Content)

			got.ChatHistory = got.ChatHistory[:len(got.ChatHistory)-1]
			assert.Equal(t, c, got)
		})
	}
}

func TestBackendFailureInCollectingInfoKeepsFields(t *testing.T) {
	e := newTestEngine(&stubGenerator{err: errors.New("boom")})
	c := e.NewCandidate()
	c.Name, c.Email = "John Smith", "john@x.com"

	got, err := e.IngestUserMessage(context.Background(), c, "555-123-4567 ready")
	require.ErrorIs(t, err, ai.ErrBackend)

	assert.Empty(t, got.Phone)
	assert.Equal(t, StatusCollectingInfo, got.Status)
}

func TestEmptyReplyIsBackendFailure(t *testing.T) {
	e := newTestEngine(&stubGenerator{replies: []string{"   "}})
	c := readyCandidate(e)

	got, err := e.IngestUserMessage(context.Background(), c, "hi")
	require.ErrorIs(t, err, ai.ErrBackend)
	assert.Zero(t, got.CurrentQuestion)
}

func TestEmptyMessageRejected(t *testing.T) {
	gen := &stubGenerator{}
	e := newTestEngine(gen)
	c := readyCandidate(e)

	got, err := e.IngestUserMessage(context.Background(), c, " \n\t")
	require.ErrorIs(t, err, ErrEmptyMessage)
	assert.Equal(t, c, got)
	assert.Empty(t, gen.requests)
}

func TestRetryPending(t *testing.T) {
	gen := &stubGenerator{err: errors.New("timeout")}
	e := newTestEngine(gen)
	c := readyCandidate(e)
	c.CurrentQuestion = 1
	ctx := context.Background()

	failed, err := e.IngestUserMessage(ctx, c, "answer one")
	require.Error(t, err)

	again, err := e.RetryPending(ctx, failed)
	require.ErrorIs(t, err, ai.ErrBackend)
	assert.Equal(t, failed, again)

	gen.err = nil
	gen.replies = []string{"[Score: 12/20] Next question?"}
	got, err := e.RetryPending(ctx, failed)
	require.NoError(t, err)

	assert.Equal(t, 2, got.CurrentQuestion)
	assert.Equal(t, 20, got.Score)
	require.Len(t, got.ChatHistory, len(c.ChatHistory)+2)
	assert.Equal(t, "answer one", got.ChatHistory[len(got.ChatHistory)-2].Content)
	assert.Equal(t, RoleAssistant, got.ChatHistory[len(got.ChatHistory)-1].Role)

	req := gen.lastRequest(t)
	assert.Equal(t, "answer one", req.Message)
	assert.Len(t, req.History, len(c.ChatHistory), "pending message is not repeated in history")

	_, err = e.RetryPending(ctx, got)
	assert.ErrorIs(t, err, ErrNothingPending)
}

type fixedParser struct{ reply Reply }

func (p fixedParser) Parse(string) Reply { return p.reply }

type fixedExtractor struct{ fields Fields }

func (x fixedExtractor) ExtractDocument(text string) Extraction {
	return Extraction{Fields: x.fields, ResumeText: text}
}

func (x fixedExtractor) ExtractMessage(string) Fields { return x.fields }

func TestReplaceableStrategies(t *testing.T) {
	fields := Fields{Name: "Ada Lovelace", Email: "ada@engine.org", Phone: "+44 207 555 0100"}
	e := newTestEngine(&stubGenerator{},
		WithExtractor(fixedExtractor{fields: fields}),
		WithParser(fixedParser{reply: Reply{Score: 64, ScoreFound: true, Final: true, Summary: "custom"}}),
	)

	c, _, err := e.IngestDocument(e.NewCandidate(), "whatever")
	require.NoError(t, err)
	assert.Equal(t, fields, c.Fields())
	assert.Equal(t, StatusInProgress, c.Status)

	c.CurrentQuestion = TotalQuestions
	c, err = e.IngestUserMessage(context.Background(), c, "last answer")
	require.NoError(t, err)
	assert.Equal(t, 64, c.Score)
	assert.Equal(t, "custom", c.AISummary)

	assert.Equal(t, fields, e.Extract("anything").Fields, "Extract goes through the configured extractor")
}

func TestAffirmative(t *testing.T) {
	for _, text := range []string{"Yes", "I'm READY", "let's start", "yesterday"} {
		assert.True(t, Affirmative(text), text)
	}
	for _, text := range []string{"no", "wait a moment", ""} {
		assert.False(t, Affirmative(text), text)
	}
}
