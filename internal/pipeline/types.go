package pipeline

import "time"

type Mode string

const (
	ModeGenerate Mode = "generate"
	ModeEdit     Mode = "edit"
)

// DefaultBudget is the wall-clock allowance for one pipeline run,
// covering every stage from prompt assembly to parsed output.
const DefaultBudget = 60 * time.Second

type HistoryTurn struct {
	Role    string
	Content string
}

// Request carries everything one run needs. The orchestrator reads it
// and produces a Result; it never touches locks, ledgers, or any other
// shared state.
type Request struct {
	Mode        Mode
	Prompt      string
	ProjectName string
	History     []HistoryTurn

	// BaseFiles is the site being edited. Only meaningful in edit
	// mode; files the engine does not return come through unchanged.
	BaseFiles   map[string]string
	BaseVersion int
}

// FilePatch describes how one file differs from the base version.
type FilePatch struct {
	Path   string `json:"path"`
	Status string `json:"status"` // added, modified, removed
	Patch  string `json:"patch,omitempty"`
}

// Usage is the token spend reported by the engine.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Result is the complete outcome of a run. A failed run is still a
// Result; Success and FailureStage say what happened, and the caller
// decides what that means for locks and ledgers.
type Result struct {
	Success      bool
	Files        map[string]string
	Summary      string
	FilesChanged []string
	Patches      []FilePatch
	FailureStage string
	ErrorDetail  string
	Elapsed      time.Duration
	Usage        Usage
}

// SiteOutput is what an Engine produces: file contents keyed by
// relative path, plus a short human summary.
type SiteOutput struct {
	Files   map[string]string
	Summary string
	Usage   Usage
}

// Failure stages reported in Result.FailureStage.
const (
	StageValidate = "validate"
	StageEngine   = "engine"
	StageBudget   = "budget"
	StageEmpty    = "empty"
)
