// RunContext - the mutable state container for one agent run.
//
// Information Hiding:
// - Append locking hidden behind mutating methods
// - Failure counter bookkeeping hidden
// - Turn counter advancement hidden
package run

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/richinex/theseus/llm"
	"github.com/richinex/theseus/model"
	"github.com/richinex/theseus/plan"
)

// DisableThreshold is the failure count at which a tool is excluded from
// the tool list offered to the model for the remainder of the run.
const DisableThreshold = 3

// Context holds all state for one conversational run. It is exclusively
// owned by its scheduler: no two turns mutate it concurrently. Tool calls
// within a turn may append to disjoint sub-fields concurrently; those
// appends go through the locked methods below.
type Context struct {
	RunID       string                `json:"run_id"`
	User        model.User            `json:"user"`
	Chat        model.ChatRef         `json:"chat"`
	Message     string                `json:"message"`
	Attachments []model.ImageArtifact `json:"attachments"`
	CreatedAt   time.Time             `json:"created_at"`

	Plan *plan.State `json:"plan,omitempty"`

	History        []ToolExecutionRecord `json:"tool_call_history"`
	Decisions      []Decision            `json:"decisions"`
	Clarifications []Clarification       `json:"clarifications"`

	Fragments     []model.Fragment             `json:"all_fragments"`
	TurnFragments map[uint32][]model.Fragment  `json:"turn_fragments"`
	Images        []model.ImageArtifact        `json:"all_images"`
	ImagesByTurn  map[uint32][]model.ImageArtifact `json:"images_by_turn"`
	RecentImages  []model.ImageArtifact        `json:"recent_images"`
	SeenDocuments map[string]struct{}          `json:"seen_documents"`

	FailedTools map[string]*ToolFailureInfo `json:"failed_tools"`

	Review         ReviewState         `json:"review"`
	FinalSynthesis FinalSynthesisState `json:"final_synthesis"`

	TurnCount    uint32         `json:"turn_count"`
	RetryCount   uint32         `json:"retry_count"`
	MaxRetries   uint32         `json:"max_retries"`
	TotalLatency time.Duration  `json:"total_latency_ns"`
	TotalCostUSD float64        `json:"total_cost_usd"`
	Tokens       llm.TokenUsage `json:"token_usage"`

	recMu     sync.Mutex // guards History and Decisions
	contentMu sync.Mutex // guards Fragments, Images, SeenDocuments
}

// New creates the context for a fresh run. Attachments are recorded as
// user images at turn zero.
func New(user model.User, chat model.ChatRef, message string, attachments []model.ImageArtifact) *Context {
	c := &Context{
		RunID:       uuid.New().String(),
		User:        user,
		Chat:        chat,
		Message:     message,
		Attachments: []model.ImageArtifact{},
		CreatedAt:   time.Now().UTC(),

		History:        []ToolExecutionRecord{},
		Decisions:      []Decision{},
		Clarifications: []Clarification{},

		Fragments:     []model.Fragment{},
		TurnFragments: make(map[uint32][]model.Fragment),
		Images:        []model.ImageArtifact{},
		ImagesByTurn:  make(map[uint32][]model.ImageArtifact),
		RecentImages:  []model.ImageArtifact{},
		SeenDocuments: make(map[string]struct{}),

		FailedTools: make(map[string]*ToolFailureInfo),

		Review: ReviewState{
			ReviewFrequency:        2,
			OutstandingAnomalies:   []string{},
			ClarificationQuestions: []string{},
		},
		MaxRetries: 3,
	}
	for _, a := range attachments {
		a.IsUserAttachment = true
		a.AddedAtTurn = 0
		c.Attachments = append(c.Attachments, a)
		c.Images = append(c.Images, a)
		c.RecentImages = append(c.RecentImages, a)
	}
	return c
}

// NextTurn advances the turn counter and returns the new turn number.
// Called only by the scheduler at iteration boundaries, never per tool call.
func (c *Context) NextTurn() uint32 {
	c.TurnCount++
	return c.TurnCount
}

// SetPlan installs or replaces the plan. Guarded so a plan update landing
// inside a tool batch cannot tear.
func (c *Context) SetPlan(p *plan.State) {
	c.recMu.Lock()
	defer c.recMu.Unlock()
	c.Plan = p
}

// Terminal reports whether final synthesis has completed. No tool call may
// mutate the run after this returns true.
func (c *Context) Terminal() bool {
	return c.FinalSynthesis.Completed
}

// AppendRecord appends an execution record in completion order.
func (c *Context) AppendRecord(rec ToolExecutionRecord) {
	c.recMu.Lock()
	defer c.recMu.Unlock()
	c.History = append(c.History, rec)
}

// AppendDecision appends an audit entry.
func (c *Context) AppendDecision(kind, detail string) {
	c.recMu.Lock()
	defer c.recMu.Unlock()
	c.Decisions = append(c.Decisions, NewDecision(c.TurnCount, kind, detail))
}

// AddClarification records a human answer received after a suspension and
// marks the ambiguity resolved.
func (c *Context) AddClarification(question, answer string) {
	c.recMu.Lock()
	defer c.recMu.Unlock()
	c.Clarifications = append(c.Clarifications, Clarification{
		Question: question,
		Answer:   answer,
		At:       time.Now().UTC(),
	})
	c.Review.AmbiguityResolved = true
	c.Review.ClarificationQuestions = []string{}
}

// ClarificationLog returns a copy of the received clarification answers.
func (c *Context) ClarificationLog() []Clarification {
	c.recMu.Lock()
	defer c.recMu.Unlock()
	out := make([]Clarification, len(c.Clarifications))
	copy(out, c.Clarifications)
	return out
}

// DecisionLog returns a copy of the audit log.
func (c *Context) DecisionLog() []Decision {
	c.recMu.Lock()
	defer c.recMu.Unlock()
	out := make([]Decision, len(c.Decisions))
	copy(out, c.Decisions)
	return out
}

// HistoryLen returns the current history length.
func (c *Context) HistoryLen() int {
	c.recMu.Lock()
	defer c.recMu.Unlock()
	return len(c.History)
}

// HistorySince returns records appended at or after the given index.
func (c *Context) HistorySince(idx int) []ToolExecutionRecord {
	c.recMu.Lock()
	defer c.recMu.Unlock()
	if idx < 0 || idx > len(c.History) {
		return []ToolExecutionRecord{}
	}
	out := make([]ToolExecutionRecord, len(c.History)-idx)
	copy(out, c.History[idx:])
	return out
}

// RecordToolFailure increments the failure counter for a tool and returns
// the new count. The counter persists for audit even after disablement.
func (c *Context) RecordToolFailure(name string, errMsg string) uint32 {
	c.recMu.Lock()
	defer c.recMu.Unlock()
	info, ok := c.FailedTools[name]
	if !ok {
		info = &ToolFailureInfo{}
		c.FailedTools[name] = info
	}
	info.Count++
	info.LastError = errMsg
	info.LastAttempt = time.Now().UTC()
	return info.Count
}

// ResetToolFailure clears the failure counter after a success.
func (c *Context) ResetToolFailure(name string) {
	c.recMu.Lock()
	defer c.recMu.Unlock()
	if info, ok := c.FailedTools[name]; ok {
		info.Count = 0
	}
}

// ToolDisabled reports whether a tool has hit the disable threshold.
func (c *Context) ToolDisabled(name string) bool {
	c.recMu.Lock()
	defer c.recMu.Unlock()
	info, ok := c.FailedTools[name]
	return ok && info.Count >= DisableThreshold
}

// ToolFailureCount returns the current failure count for a tool.
func (c *Context) ToolFailureCount(name string) uint32 {
	c.recMu.Lock()
	defer c.recMu.Unlock()
	if info, ok := c.FailedTools[name]; ok {
		return info.Count
	}
	return 0
}

// DisabledTools lists tools currently excluded from the offered tool list.
func (c *Context) DisabledTools() []string {
	c.recMu.Lock()
	defer c.recMu.Unlock()
	out := []string{}
	for name, info := range c.FailedTools {
		if info.Count >= DisableThreshold {
			out = append(out, name)
		}
	}
	return out
}

// AddFragments appends fragments for a turn and marks their sources seen.
func (c *Context) AddFragments(turn uint32, fragments []model.Fragment) {
	if len(fragments) == 0 {
		return
	}
	c.contentMu.Lock()
	defer c.contentMu.Unlock()
	c.Fragments = append(c.Fragments, fragments...)
	c.TurnFragments[turn] = append(c.TurnFragments[turn], fragments...)
	for _, f := range fragments {
		if f.Source.DocID != "" {
			c.SeenDocuments[f.Source.DocID] = struct{}{}
		}
	}
}

// AddImages appends images for a turn.
func (c *Context) AddImages(turn uint32, images []model.ImageArtifact) {
	if len(images) == 0 {
		return
	}
	c.contentMu.Lock()
	defer c.contentMu.Unlock()
	for _, img := range images {
		img.AddedAtTurn = turn
		c.Images = append(c.Images, img)
		c.ImagesByTurn[turn] = append(c.ImagesByTurn[turn], img)
		c.RecentImages = append(c.RecentImages, img)
	}
}

// AllFragments returns a copy of every fragment gathered so far, in
// accumulation order.
func (c *Context) AllFragments() []model.Fragment {
	c.contentMu.Lock()
	defer c.contentMu.Unlock()
	out := make([]model.Fragment, len(c.Fragments))
	copy(out, c.Fragments)
	return out
}

// HasSeenDocument reports whether a doc id was already retrieved this run.
func (c *Context) HasSeenDocument(docID string) bool {
	c.contentMu.Lock()
	defer c.contentMu.Unlock()
	_, ok := c.SeenDocuments[docID]
	return ok
}

// SeenDocumentIDs returns the exclusion set for retrieval tools.
func (c *Context) SeenDocumentIDs() []string {
	c.contentMu.Lock()
	defer c.contentMu.Unlock()
	out := []string{}
	for id := range c.SeenDocuments {
		out = append(out, id)
	}
	return out
}

// TurnImages returns the images recorded for one turn.
func (c *Context) TurnImages(turn uint32) []model.ImageArtifact {
	c.contentMu.Lock()
	defer c.contentMu.Unlock()
	imgs := c.ImagesByTurn[turn]
	out := make([]model.ImageArtifact, len(imgs))
	copy(out, imgs)
	return out
}

// RecentImagesCopy returns a copy of the recent-image window.
func (c *Context) RecentImagesCopy() []model.ImageArtifact {
	c.contentMu.Lock()
	defer c.contentMu.Unlock()
	out := make([]model.ImageArtifact, len(c.RecentImages))
	copy(out, c.RecentImages)
	return out
}

// TrimRecentImages drops the oldest entries beyond max, keeping the newest.
func (c *Context) TrimRecentImages(max int) {
	c.contentMu.Lock()
	defer c.contentMu.Unlock()
	if max > 0 && len(c.RecentImages) > max {
		c.RecentImages = append([]model.ImageArtifact{}, c.RecentImages[len(c.RecentImages)-max:]...)
	}
}

// RequestFinalSynthesis marks the terminal synthesis as requested. It
// returns false if synthesis was already requested.
func (c *Context) RequestFinalSynthesis() bool {
	if c.FinalSynthesis.Requested {
		return false
	}
	c.FinalSynthesis.Requested = true
	return true
}

// CompleteFinalSynthesis records the streamed answer text and closes the
// run to further tool calls.
func (c *Context) CompleteFinalSynthesis(text string) {
	c.FinalSynthesis.StreamedText = text
	c.FinalSynthesis.Completed = true
}

// AddUsage accumulates provider token usage and cost onto the run.
func (c *Context) AddUsage(usage *llm.TokenUsage, costUSD float64, latency time.Duration) {
	if usage != nil {
		c.Tokens.PromptTokens += usage.PromptTokens
		c.Tokens.CompletionTokens += usage.CompletionTokens
		c.Tokens.TotalTokens += usage.TotalTokens
	}
	c.TotalCostUSD += costUSD
	c.TotalLatency += latency
}
