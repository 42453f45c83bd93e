package interview

import (
	"fmt"
	"strings"

	"github.com/spigell/interviewer/internal/ai"
)

// HistoryWindow is the number of prior messages sent with every request.
const HistoryWindow = 10

// Stage selects the prompt and parsing branch for one exchange.
type Stage interface {
	Name() string
	isStage()
}

// CollectingInfo gathers missing identity fields. Ready is decided by the
// engine, never by the backend.
type CollectingInfo struct {
	Fields Fields
	Ready  bool
}

// OpeningQuestion asks the first question when nothing has been answered yet.
type OpeningQuestion struct{}

// FollowUp evaluates answer Answered and asks the next question.
type FollowUp struct {
	Answered int
	Total    int
}

// FinalEvaluation scores the whole interview after the last answer.
type FinalEvaluation struct {
	Total int
}

// Closed accepts no further exchanges.
type Closed struct {
	Status Status
}

func (CollectingInfo) Name() string  { return "collecting-info" }
func (OpeningQuestion) Name() string { return "opening-question" }
func (FollowUp) Name() string        { return "follow-up" }
func (FinalEvaluation) Name() string { return "final-evaluation" }
func (c Closed) Name() string        { return string(c.Status) }

func (CollectingInfo) isStage()  {}
func (OpeningQuestion) isStage() {}
func (FollowUp) isStage()        {}
func (FinalEvaluation) isStage() {}
func (Closed) isStage()          {}

// StageOf maps a candidate to its stage. For collecting-info the readiness
// flag is left false; the engine sets it after inspecting the message.
func StageOf(c Candidate) Stage {
	total := c.total()

	switch c.Status {
	case StatusCollectingInfo:
		return CollectingInfo{Fields: c.Fields()}
	case StatusInProgress:
		switch q := c.CurrentQuestion; {
		case q <= 0:
			return OpeningQuestion{}
		case q < total:
			return FollowUp{Answered: q, Total: total}
		default:
			return FinalEvaluation{Total: total}
		}
	default:
		return Closed{Status: c.Status}
	}
}

// Prompt is what gets sent to the generative backend, minus the new message.
type Prompt struct {
	Instruction string
	History     []ai.Turn
}

// Request attaches the pending user message to the prompt.
func (p Prompt) Request(message string) ai.Request {
	return ai.Request{
		Instruction: p.Instruction,
		History:     p.History,
		Message:     message,
	}
}

// BuildPrompt renders the instruction for stage and the trailing window of
// history. history must not contain the pending user message.
func BuildPrompt(stage Stage, history []ChatMessage) Prompt {
	return Prompt{
		Instruction: instruction(stage),
		History:     window(history),
	}
}

func instruction(stage Stage) string {
	switch s := stage.(type) {
	case CollectingInfo:
		return collectingInfoInstruction(s)
	case OpeningQuestion:
		return "You are conducting a professional interview. Generate an engaging first question " +
			"that assesses the candidate's background and motivation. Be specific and thoughtful."
	case FollowUp:
		return followUpInstruction(s)
	case FinalEvaluation:
		return finalInstruction(s)
	default:
		return ""
	}
}

func collectingInfoInstruction(s CollectingInfo) string {
	var b strings.Builder

	b.WriteString("You are an AI interview assistant. The candidate has uploaded their resume but some information is missing.\n")
	fmt.Fprintf(&b, "Current info: Name: %s, Email: %s, Phone: %s\n",
		orMissing(s.Fields.Name), orMissing(s.Fields.Email), orMissing(s.Fields.Phone))
	if missing := s.Fields.Missing(); len(missing) > 0 {
		fmt.Fprintf(&b, "Still missing: %s\n", strings.Join(missing, ", "))
	}
	b.WriteString("\nYour task is to collect any missing information in a friendly, conversational way. ")
	b.WriteString("Once you have all the information (name, email, phone), confirm it with the candidate ")
	b.WriteString("and let them know you're ready to start the interview.\n\n")
	b.WriteString("If the user provides missing information, extract it from their message and respond with confirmation.\n")
	b.WriteString("Format your response naturally and be encouraging.")

	if s.Ready {
		b.WriteString("\n\nThe candidate is ready. Generate the first interview question. ")
		b.WriteString("Make it relevant to their experience and engaging.")
	}

	return b.String()
}

func followUpInstruction(s FollowUp) string {
	return fmt.Sprintf(`You are an AI interviewer. The candidate just answered question %d.

1. Evaluate their answer (score 0-20 points based on clarity, relevance, depth)
2. Provide brief feedback
3. Ask the next question (question %d of %d)

Make questions progressively more challenging. Focus on: problem-solving, technical skills, communication, and cultural fit.

Format your response as:
[Score: X/20]
[Feedback on their answer]
[Next question]`, s.Answered, s.Answered+1, s.Total)
}

func finalInstruction(s FinalEvaluation) string {
	return fmt.Sprintf(`You are completing the interview. The candidate just answered the final question (question %d of %d).

1. Evaluate their last answer (score 0-20 points)
2. Calculate a total score out of 100 (estimate based on the overall conversation quality)
3. Provide a comprehensive summary of their performance
4. Thank them for their time

Format your response as:
[Final Score: X/100]
[Comprehensive Summary]
<summary>
[Closing remarks]
<closing remarks>`, s.Total, s.Total)
}

func orMissing(v string) string {
	if v == "" {
		return "missing"
	}
	return v
}

// window keeps the last HistoryWindow messages, oldest first. System
// messages are sent as user turns.
func window(history []ChatMessage) []ai.Turn {
	start := max(len(history)-HistoryWindow, 0)

	turns := make([]ai.Turn, 0, len(history)-start)
	for _, msg := range history[start:] {
		role := ai.RoleUser
		if msg.Role == RoleAssistant {
			role = ai.RoleAssistant
		}
		turns = append(turns, ai.Turn{Role: role, Text: msg.Content})
	}
	return turns
}
