package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/interviewer/internal/ai"
	"github.com/spigell/interviewer/internal/document"
	"github.com/spigell/interviewer/internal/interview"
	"github.com/spigell/interviewer/internal/store"
)

const (
	PromptContinue = "Continue the unfinished interview"
	PromptStartNew = "Start a new interview"
	PromptRetry    = "Retry the last message"
	PromptWrite    = "Write a new message"
)

var errExit = errors.New("exit requested")

var interviewCmd = &cobra.Command{
	Use:   "interview",
	Short: "Run an interview in the terminal",
	Run: func(cmd *cobra.Command, _ []string) {
		runInterview(cmd)
	},
}

func init() {
	rootCmd.AddCommand(interviewCmd)
}

func runInterview(cmd *cobra.Command) {
	ctx := context.Background()
	config, logger := bootstrap()

	st, err := newStore(ctx, config.Store, logger)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}
	defer st.Close()

	generator, err := newGenerator(ctx, config.AI, nil, logger)
	if err != nil {
		logger.Fatal("creating the generative backend",
			zap.Error(err),
			zap.String("hint", "set GEMINI_API_KEY / OPENAI_API_KEY or the api-key-file key in the configuration file"),
		)
	}

	session := &terminalSession{
		out:    cmd.OutOrStdout(),
		engine: newEngine(generator, config.AI, logger),
		store:  st,
		logger: logger,
	}

	if err := session.run(ctx); err != nil {
		if errors.Is(err, errExit) || errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			logger.Info("exiting", zap.String("reason", "interview paused, progress is saved"))
			return
		}
		logger.Fatal("exiting", zap.Error(err))
	}
}

type terminalSession struct {
	out    io.Writer
	engine *interview.Engine
	store  store.Store
	logger *zap.Logger
}

func (s *terminalSession) run(ctx context.Context) error {
	candidate, err := s.resumeOrStart(ctx)
	if err != nil {
		return err
	}

	for candidate.Status != interview.StatusCompleted {
		switch {
		case candidate.Status == interview.StatusPaused:
			return fmt.Errorf("%w: candidate %s is paused", errExit, candidate.ID)
		case candidate.Status == interview.StatusCollectingInfo && candidate.ResumeText == "":
			candidate, err = s.uploadResume(ctx, candidate)
		default:
			candidate, err = s.exchange(ctx, candidate)
		}
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(s.out, "\nInterview completed. Final score: %d/100\n", candidate.Score)
	if candidate.AISummary != "" {
		fmt.Fprintf(s.out, "\nSummary:\n%s\n", candidate.AISummary)
	}
	return nil
}

// resumeOrStart offers to continue an unfinished current candidate.
func (s *terminalSession) resumeOrStart(ctx context.Context) (interview.Candidate, error) {
	current, err := s.store.Current(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return interview.Candidate{}, err
	case current.Status != interview.StatusCompleted:
		label := fmt.Sprintf("Welcome back %s! You have an interview in progress (%s, question %d of %d)",
			orUnknown(current.Name), current.Status, current.CurrentQuestion, current.TotalQuestions)
		prompt := promptui.Select{
			Label: label,
			Items: []string{PromptContinue, PromptStartNew},
		}
		_, choice, err := prompt.Run()
		if err != nil {
			return interview.Candidate{}, err
		}
		if choice == PromptContinue {
			s.replay(current)
			return current, nil
		}
	}

	created, err := s.store.Create(ctx, s.engine.NewCandidate())
	if err != nil {
		return interview.Candidate{}, err
	}
	s.logger.Info("new interview started", zap.String("candidate_id", created.ID))
	s.say(created)
	return created, nil
}

func (s *terminalSession) uploadResume(ctx context.Context, c interview.Candidate) (interview.Candidate, error) {
	prompt := promptui.Prompt{
		Label:    "Path to your resume (PDF)",
		Validate: validateResumePath,
	}
	path, err := prompt.Run()
	if err != nil {
		return c, err
	}

	text, err := decodeFile(strings.TrimSpace(path))
	if err != nil {
		s.logger.Warn("resume rejected", zap.Error(err))
		return c, nil
	}

	next, extraction, err := s.engine.IngestDocument(c, text)
	if err != nil {
		return c, err
	}
	s.logger.Debug("resume parsed", zap.Strings("missing", extraction.Missing()))

	saved, err := s.store.Save(ctx, next)
	if err != nil {
		return c, err
	}
	s.say(saved)
	return saved, nil
}

func (s *terminalSession) exchange(ctx context.Context, c interview.Candidate) (interview.Candidate, error) {
	run, err := s.nextStep(c)
	if err != nil {
		return c, err
	}

	next, runErr := run(ctx, c)
	if runErr != nil && !errors.Is(runErr, ai.ErrBackend) {
		if errors.Is(runErr, interview.ErrEmptyMessage) {
			return c, nil
		}
		return c, runErr
	}

	saved, err := s.store.Save(ctx, next)
	if err != nil {
		return c, err
	}

	if runErr != nil {
		s.logger.Warn("the interviewer could not answer, you can retry the message", zap.Error(runErr))
		return saved, nil
	}

	s.say(saved)
	return saved, nil
}

// nextStep asks for a new message, or offers a retry when the last message
// never got a reply.
func (s *terminalSession) nextStep(c interview.Candidate) (func(context.Context, interview.Candidate) (interview.Candidate, error), error) {
	if n := len(c.ChatHistory); n > 0 && c.ChatHistory[n-1].Role == interview.RoleUser {
		prompt := promptui.Select{
			Label: "The last message has no reply",
			Items: []string{PromptRetry, PromptWrite},
		}
		_, choice, err := prompt.Run()
		if err != nil {
			return nil, err
		}
		if choice == PromptRetry {
			return s.engine.RetryPending, nil
		}
	}

	prompt := promptui.Prompt{Label: "You"}
	text, err := prompt.Run()
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, c interview.Candidate) (interview.Candidate, error) {
		return s.engine.IngestUserMessage(ctx, c, text)
	}, nil
}

// say prints the last assistant message.
func (s *terminalSession) say(c interview.Candidate) {
	for i := len(c.ChatHistory) - 1; i >= 0; i-- {
		if msg := c.ChatHistory[i]; msg.Role == interview.RoleAssistant {
			fmt.Fprintf(s.out, "\nInterviewer: %s\n\n", msg.Content)
			return
		}
	}
}

func (s *terminalSession) replay(c interview.Candidate) {
	for _, msg := range c.ChatHistory {
		who := "You"
		if msg.Role == interview.RoleAssistant {
			who = "Interviewer"
		}
		fmt.Fprintf(s.out, "%s: %s\n", who, msg.Content)
	}
	fmt.Fprintln(s.out)
}

func validateResumePath(input string) error {
	path := strings.TrimSpace(input)
	if !document.IsPDF(path, "") {
		return errors.New("a PDF file is required")
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}
	return nil
}

func decodeFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	return document.Decode(file, filepath.Base(path), "")
}

func orUnknown(v string) string {
	if v == "" {
		return "there"
	}
	return v
}
