package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/interviewer/internal/ai"
	"github.com/spigell/interviewer/internal/logger"
	"github.com/spigell/interviewer/internal/utils"
)

const (
	defaultMaxLogLength = 200

	greeting = "Welcome! To begin the interview, please upload your resume (PDF format required)."
)

var (
	// ErrEmptyMessage rejects blank user input before any backend call.
	ErrEmptyMessage = errors.New("message must not be empty")
	// ErrInterviewStarted rejects a document once info collection is over.
	ErrInterviewStarted = errors.New("interview already started")
	// ErrNothingPending is returned by RetryPending when the last message
	// already has a reply.
	ErrNothingPending = errors.New("no pending user message")
)

var affirmatives = []string{"yes", "ready", "start"}

// Engine drives a candidate through the interview stages. It keeps no
// per-candidate state: every call takes a Candidate and returns the next one.
// Callers must not run two calls for the same candidate concurrently.
type Engine struct {
	generator ai.Generator
	extractor Extractor
	parser    ResponseParser
	logger    *zap.Logger
	maxLogLen int
	now       func() time.Time
	newID     func() string
}

type Option func(*Engine)

// WithExtractor replaces the pattern based field extractor.
func WithExtractor(x Extractor) Option {
	return func(e *Engine) { e.extractor = x }
}

// WithParser replaces the marker based reply parser.
func WithParser(p ResponseParser) Option {
	return func(e *Engine) { e.parser = p }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func WithMaxLogLength(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxLogLen = n
		}
	}
}

func NewEngine(generator ai.Generator, log *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		generator: generator,
		extractor: PatternExtractor{},
		parser:    MarkerParser{},
		logger:    logger.WithFields(log),
		maxLogLen: defaultMaxLogLength,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// NewCandidate starts a session waiting for a resume.
func (e *Engine) NewCandidate() Candidate {
	now := e.now()
	return Candidate{
		ID:             e.newID(),
		Status:         StatusCollectingInfo,
		TotalQuestions: TotalQuestions,
		ChatHistory:    []ChatMessage{e.message(RoleAssistant, greeting)},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Extract runs the configured extractor over decoded document text without
// touching any candidate.
func (e *Engine) Extract(rawText string) Extraction {
	return e.extractor.ExtractDocument(rawText)
}

// IngestDocument seeds the candidate from decoded resume text. Only empty
// fields are filled. With all fields known the candidate moves to
// in-progress and waits for the first question request.
func (e *Engine) IngestDocument(c Candidate, rawText string) (Candidate, Extraction, error) {
	if c.Status != StatusCollectingInfo {
		return c, Extraction{}, fmt.Errorf("%w: status is %s", ErrInterviewStarted, c.Status)
	}

	extraction := e.extractor.ExtractDocument(rawText)

	current := c.Fields()
	merged := current.Merge(extraction.Fields)

	update := current.Fill(extraction.Fields)
	update.ResumeText = &extraction.ResumeText
	if merged.Complete() {
		update.Status = ptr(StatusInProgress)
	}
	update.Messages = []ChatMessage{e.message(RoleAssistant, uploadConfirmation(merged))}

	next := update.Apply(c)

	e.logger.Info("resume ingested",
		append(logger.CandidateFields(next.ID, string(next.Status), next.CurrentQuestion),
			zap.Strings("missing", merged.Missing()),
			zap.Int("resume_length", utf8.RuneCountInString(extraction.ResumeText)),
		)...,
	)

	return next, extraction, nil
}

// IngestUserMessage runs one exchange with the generative backend. On a
// backend failure the returned candidate only differs from c by the appended
// user message, and the error wraps ai.ErrBackend.
func (e *Engine) IngestUserMessage(ctx context.Context, c Candidate, text string) (Candidate, error) {
	if strings.TrimSpace(text) == "" {
		return c, ErrEmptyMessage
	}

	if closed, ok := StageOf(c).(Closed); ok {
		e.logger.Debug("ignoring message for closed interview",
			logger.CandidateFields(c.ID, closed.Name(), c.CurrentQuestion)...)
		return c, nil
	}

	return e.respond(ctx, c, e.message(RoleUser, text))
}

// RetryPending re-runs the exchange for a trailing user message that was
// left without a reply by a failed call. The message is not appended twice.
func (e *Engine) RetryPending(ctx context.Context, c Candidate) (Candidate, error) {
	n := len(c.ChatHistory)
	if n == 0 || c.ChatHistory[n-1].Role != RoleUser {
		return c, ErrNothingPending
	}

	if _, ok := StageOf(c).(Closed); ok {
		return c, nil
	}

	base := c.Clone()
	base.ChatHistory = base.ChatHistory[:n-1]

	next, err := e.respond(ctx, base, c.ChatHistory[n-1])
	if err != nil {
		return c, err
	}
	return next, nil
}

// respond runs the exchange for userMessage against c, whose history does
// not contain the message yet.
func (e *Engine) respond(ctx context.Context, c Candidate, userMessage ChatMessage) (Candidate, error) {
	text := userMessage.Content
	stage := StageOf(c)

	var update Update
	if info, ok := stage.(CollectingInfo); ok {
		found := e.extractor.ExtractMessage(text)
		update = info.Fields.Fill(found)

		info.Fields = info.Fields.Merge(found)
		info.Ready = info.Fields.Complete() && Affirmative(text)
		stage = info
	}

	reply, err := e.exchange(ctx, c, stage, text)
	if err != nil {
		pending := Update{Messages: []ChatMessage{userMessage}}
		return pending.Apply(c), err
	}

	switch s := stage.(type) {
	case CollectingInfo:
		if s.Ready {
			update.Status = ptr(StatusInProgress)
			update.CurrentQuestion = ptr(1)
		}
	case OpeningQuestion:
		update.CurrentQuestion = ptr(1)
	case FollowUp:
		parsed := e.parser.Parse(reply)
		update.Score = ptr(max(c.Score, CumulativeScore(s.Answered, s.Total)))
		update.CurrentQuestion = ptr(s.Answered + 1)

		e.logger.Debug("answer evaluated",
			append(logger.CandidateFields(c.ID, s.Name(), s.Answered),
				zap.Bool("score_found", parsed.ScoreFound),
				zap.Int("literal_score", parsed.Score),
				zap.Int("cumulative_score", *update.Score),
			)...,
		)
	case FinalEvaluation:
		parsed := e.parser.Parse(reply)
		update.Score = ptr(parsed.FinalScore())
		update.Status = ptr(StatusCompleted)
		update.CompletedAt = ptr(e.now())
		update.AISummary = ptr(parsed.Summary)
	}

	update.Messages = []ChatMessage{userMessage, e.message(RoleAssistant, reply)}
	next := update.Apply(c)

	if next.Status != c.Status {
		e.logger.Info("stage transition",
			append(logger.CandidateFields(next.ID, string(next.Status), next.CurrentQuestion),
				zap.String("from", string(c.Status)),
				zap.Int("score", next.Score),
			)...,
		)
	}

	return next, nil
}

func (e *Engine) exchange(ctx context.Context, c Candidate, stage Stage, text string) (string, error) {
	prompt := BuildPrompt(stage, c.ChatHistory)
	fields := logger.CandidateFields(c.ID, stage.Name(), c.CurrentQuestion)

	e.logger.Debug("generate request", append(fields,
		zap.Int("history_turns", len(prompt.History)),
		zap.Int("instruction_length", utf8.RuneCountInString(prompt.Instruction)),
		zap.String("instruction_preview", utils.TruncateForLog(prompt.Instruction, e.maxLogLen)),
	)...)

	reply, err := e.generator.Generate(ctx, prompt.Request(text))
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		if !errors.Is(err, ai.ErrBackend) {
			err = fmt.Errorf("%w: %w", ai.ErrBackend, err)
		}
		e.logger.Warn("generate failed", append(fields, zap.Error(err))...)
		return "", fmt.Errorf("%s: %w", stage.Name(), err)
	}

	e.logger.Debug("generate response", append(fields,
		zap.Int("response_length", utf8.RuneCountInString(reply)),
		zap.String("response_preview", utils.TruncateForLog(reply, e.maxLogLen)),
	)...)

	return reply, nil
}

func (e *Engine) message(role Role, content string) ChatMessage {
	return ChatMessage{
		ID:        e.newID(),
		Role:      role,
		Content:   content,
		Timestamp: e.now(),
	}
}

// Affirmative reports whether text signals readiness to start.
func Affirmative(text string) bool {
	lower := strings.ToLower(text)
	for _, word := range affirmatives {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

func uploadConfirmation(f Fields) string {
	next := fmt.Sprintf("Great! Let's begin the interview. I'll ask you %d questions. Are you ready?", TotalQuestions)
	if !f.Complete() {
		next = "Please provide the missing information before we continue."
	}

	return fmt.Sprintf("Resume uploaded successfully! I found:\nName: %s\nEmail: %s\nPhone: %s\n\n%s",
		orNotFound(f.Name), orNotFound(f.Email), orNotFound(f.Phone), next)
}

func orNotFound(v string) string {
	if v == "" {
		return "Not found"
	}
	return v
}
