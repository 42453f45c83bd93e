package interview

import (
	"slices"
	"time"
)

// TotalQuestions is the fixed length of every interview.
const TotalQuestions = 5

type Status string

const (
	StatusCollectingInfo Status = "collecting-info"
	StatusInProgress     Status = "in-progress"
	StatusPaused         Status = "paused"
	StatusCompleted      Status = "completed"
)

// rank orders statuses along the interview progression. Paused sits with
// in-progress since it only interrupts it.
func (s Status) rank() int {
	switch s {
	case StatusCollectingInfo:
		return 0
	case StatusInProgress, StatusPaused:
		return 1
	case StatusCompleted:
		return 2
	default:
		return -1
	}
}

func (s Status) Valid() bool { return s.rank() >= 0 }

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type Candidate struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Email           string        `json:"email"`
	Phone           string        `json:"phone"`
	ResumeText      string        `json:"resumeText,omitempty"`
	Score           int           `json:"score"`
	Status          Status        `json:"status"`
	ChatHistory     []ChatMessage `json:"chatHistory"`
	CurrentQuestion int           `json:"currentQuestion"`
	TotalQuestions  int           `json:"totalQuestions"`
	AISummary       string        `json:"aiSummary,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
	CompletedAt     *time.Time    `json:"completedAt,omitempty"`
}

// Clone returns a copy that shares no mutable state with c.
func (c Candidate) Clone() Candidate {
	c.ChatHistory = slices.Clone(c.ChatHistory)
	if c.CompletedAt != nil {
		completed := *c.CompletedAt
		c.CompletedAt = &completed
	}
	return c
}

func (c Candidate) Fields() Fields {
	return Fields{Name: c.Name, Email: c.Email, Phone: c.Phone}
}

func (c Candidate) total() int {
	if c.TotalQuestions <= 0 {
		return TotalQuestions
	}
	return c.TotalQuestions
}

// Update is a typed partial update. Nil fields are left untouched, Messages
// are appended to the chat history.
type Update struct {
	Name            *string
	Email           *string
	Phone           *string
	ResumeText      *string
	Score           *int
	Status          *Status
	CurrentQuestion *int
	AISummary       *string
	CompletedAt     *time.Time
	Messages        []ChatMessage
}

func (u Update) Empty() bool {
	return u.Name == nil && u.Email == nil && u.Phone == nil && u.ResumeText == nil &&
		u.Score == nil && u.Status == nil && u.CurrentQuestion == nil &&
		u.AISummary == nil && u.CompletedAt == nil && len(u.Messages) == 0
}

// Apply returns c with u merged in. Timestamps other than CompletedAt are
// left to the persistence layer.
func (u Update) Apply(c Candidate) Candidate {
	c = c.Clone()

	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.Email != nil {
		c.Email = *u.Email
	}
	if u.Phone != nil {
		c.Phone = *u.Phone
	}
	if u.ResumeText != nil {
		c.ResumeText = *u.ResumeText
	}
	if u.Score != nil {
		c.Score = clampScore(*u.Score)
	}
	// Status never moves backwards and the question counter never decreases.
	if u.Status != nil && u.Status.rank() >= c.Status.rank() {
		c.Status = *u.Status
	}
	if u.CurrentQuestion != nil {
		c.CurrentQuestion = max(c.CurrentQuestion, min(*u.CurrentQuestion, c.total()))
	}
	if u.AISummary != nil && c.AISummary == "" {
		c.AISummary = *u.AISummary
	}
	if u.CompletedAt != nil {
		completed := *u.CompletedAt
		c.CompletedAt = &completed
	}

	c.ChatHistory = append(c.ChatHistory, u.Messages...)

	return c
}

// Fields are the identity fields collected before the interview starts.
type Fields struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Missing lists the empty fields in a stable order.
func (f Fields) Missing() []string {
	var missing []string
	if f.Name == "" {
		missing = append(missing, "name")
	}
	if f.Email == "" {
		missing = append(missing, "email")
	}
	if f.Phone == "" {
		missing = append(missing, "phone")
	}
	return missing
}

func (f Fields) Complete() bool { return len(f.Missing()) == 0 }

// Fill returns an update that sets every field empty in f and present in found.
func (f Fields) Fill(found Fields) Update {
	var u Update
	if f.Name == "" && found.Name != "" {
		u.Name = &found.Name
	}
	if f.Email == "" && found.Email != "" {
		u.Email = &found.Email
	}
	if f.Phone == "" && found.Phone != "" {
		u.Phone = &found.Phone
	}
	return u
}

// Merge returns f with its empty fields taken from found.
func (f Fields) Merge(found Fields) Fields {
	if f.Name == "" {
		f.Name = found.Name
	}
	if f.Email == "" {
		f.Email = found.Email
	}
	if f.Phone == "" {
		f.Phone = found.Phone
	}
	return f
}

func clampScore(score int) int {
	return min(max(score, 0), 100)
}

func ptr[T any](v T) *T { return &v }
