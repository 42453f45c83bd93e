package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/interviewer/internal/ai"
	"github.com/spigell/interviewer/internal/document"
	"github.com/spigell/interviewer/internal/interview"
	"github.com/spigell/interviewer/internal/logger"
	"github.com/spigell/interviewer/internal/store"
)

var (
	errBadRequest = errors.New("bad request")
	errClosed     = errors.New("interview is closed")
)

type messageRequest struct {
	Message string `json:"message"`
}

type contactPatch struct {
	Name  *string `mapstructure:"name"`
	Email *string `mapstructure:"email"`
	Phone *string `mapstructure:"phone"`
}

type resumeResponse struct {
	Candidate  interview.Candidate  `json:"candidate"`
	Extraction interview.Extraction `json:"extraction"`
}

type failedExchange struct {
	Error     string              `json:"error"`
	Candidate interview.Candidate `json:"candidate"`
}

func (s *Server) parse(c *gin.Context) {
	text, err := s.upload(c)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, s.engine.Extract(text))
}

func (s *Server) createCandidate(c *gin.Context) {
	created, err := s.store.Create(c.Request.Context(), s.engine.NewCandidate())
	if err != nil {
		s.abort(c, err)
		return
	}

	s.logger.Info("candidate created", zap.String(logger.FieldCandidate, created.ID))
	c.JSON(http.StatusCreated, created)
}

func (s *Server) listCandidates(c *gin.Context) {
	all, err := s.store.List(c.Request.Context())
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, store.Search(all, c.Query("q")))
}

func (s *Server) currentCandidate(c *gin.Context) {
	current, err := s.store.Current(c.Request.Context())
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, current)
}

func (s *Server) getCandidate(c *gin.Context) {
	found, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

func (s *Server) uploadResume(c *gin.Context) {
	id := c.Param("id")
	unlock := s.locks.lock(id)
	defer unlock()

	ctx := c.Request.Context()
	current, err := s.store.Get(ctx, id)
	if err != nil {
		s.abort(c, err)
		return
	}

	text, err := s.upload(c)
	if err != nil {
		s.abort(c, err)
		return
	}

	next, extraction, err := s.engine.IngestDocument(current, text)
	if err != nil {
		s.abort(c, err)
		return
	}

	saved, err := s.save(ctx, current, next)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, resumeResponse{Candidate: saved, Extraction: extraction})
}

func (s *Server) postMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.abort(c, interview.ErrEmptyMessage)
		return
	}

	s.exchange(c, func(ctx context.Context, current interview.Candidate) (interview.Candidate, error) {
		return s.engine.IngestUserMessage(ctx, current, req.Message)
	})
}

func (s *Server) retryPending(c *gin.Context) {
	s.exchange(c, s.engine.RetryPending)
}

// exchange runs one backend round trip for the candidate in the path. The
// outcome is persisted even on a backend failure so the user message is
// kept for a retry.
func (s *Server) exchange(c *gin.Context, run func(context.Context, interview.Candidate) (interview.Candidate, error)) {
	id := c.Param("id")
	unlock := s.locks.lock(id)
	defer unlock()

	ctx := c.Request.Context()
	current, err := s.store.Get(ctx, id)
	if err != nil {
		s.abort(c, err)
		return
	}

	if closed, ok := interview.StageOf(current).(interview.Closed); ok {
		s.abort(c, fmt.Errorf("%w: status is %s", errClosed, closed.Status))
		return
	}

	next, runErr := run(ctx, current)
	if runErr != nil && !errors.Is(runErr, ai.ErrBackend) {
		s.abort(c, runErr)
		return
	}

	saved, err := s.save(context.WithoutCancel(ctx), current, next)
	if err != nil {
		s.abort(c, err)
		return
	}

	if runErr != nil {
		s.logger.Warn("exchange failed", zap.String(logger.FieldCandidate, id), zap.Error(runErr))
		c.JSON(http.StatusBadGateway, failedExchange{Error: runErr.Error(), Candidate: saved})
		return
	}
	c.JSON(http.StatusOK, saved)
}

// patchContact applies a manual correction of the identity fields.
func (s *Server) patchContact(c *gin.Context) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		s.abort(c, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	var patch contactPatch
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      &patch,
	})
	if err != nil {
		s.abort(c, err)
		return
	}
	if err := decoder.Decode(raw); err != nil {
		s.abort(c, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	update := interview.Update{
		Name:  trimmed(patch.Name),
		Email: trimmed(patch.Email),
		Phone: trimmed(patch.Phone),
	}
	for _, f := range []struct {
		key   string
		value *string
	}{{"name", update.Name}, {"email", update.Email}, {"phone", update.Phone}} {
		if f.value != nil && *f.value == "" {
			s.abort(c, fmt.Errorf("%w: %s must not be empty", errBadRequest, f.key))
			return
		}
	}
	if update.Empty() {
		s.abort(c, fmt.Errorf("%w: no contact fields given", errBadRequest))
		return
	}

	id := c.Param("id")
	unlock := s.locks.lock(id)
	defer unlock()

	updated, err := s.store.Update(c.Request.Context(), id, update)
	if err != nil {
		s.abort(c, err)
		return
	}

	s.logger.Info("contact corrected", zap.String(logger.FieldCandidate, id))
	c.JSON(http.StatusOK, updated)
}

func (s *Server) upload(c *gin.Context) (string, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return "", fmt.Errorf("%w: %w", errBadRequest, err)
	}

	file, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	return s.decode(file, header.Filename, header.Header.Get("Content-Type"))
}

func (s *Server) save(ctx context.Context, before, after interview.Candidate) (interview.Candidate, error) {
	saved, err := s.store.Save(ctx, after)
	if err != nil {
		return interview.Candidate{}, err
	}
	s.metrics.Transition(string(before.Status), string(saved.Status))
	return saved, nil
}

func (s *Server) abort(c *gin.Context, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

func statusCode(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, document.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, errBadRequest),
		errors.Is(err, interview.ErrEmptyMessage),
		errors.Is(err, document.ErrEmptyDocument):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errClosed),
		errors.Is(err, interview.ErrInterviewStarted),
		errors.Is(err, interview.ErrNothingPending),
		errors.Is(err, store.ErrExists):
		return http.StatusConflict
	case errors.Is(err, ai.ErrBackend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}
