package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Engine turns a request into site files. Implementations talk to a
// model; tests substitute their own.
type Engine interface {
	GenerateSite(ctx context.Context, req Request) (*SiteOutput, error)
}

// Orchestrator runs the generation pipeline inside a wall-clock budget.
// It is deliberately free of side effects: no lock, ledger, or cache
// access happens here, so a run can be retried or tested in isolation.
type Orchestrator struct {
	engine Engine
	budget time.Duration
}

func NewOrchestrator(engine Engine, budget time.Duration) *Orchestrator {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Orchestrator{engine: engine, budget: budget}
}

// Run executes one pipeline pass. The run is detached from the caller's
// cancellation: a client that disconnects mid-build does not abort the
// work, only the budget does. Failures come back inside the Result.
func (o *Orchestrator) Run(ctx context.Context, req Request) *Result {
	start := time.Now()

	res := &Result{}
	fail := func(stage, detail string) *Result {
		res.Success = false
		res.FailureStage = stage
		res.ErrorDetail = detail
		res.Elapsed = time.Since(start)
		return res
	}

	if req.Mode != ModeGenerate && req.Mode != ModeEdit {
		return fail(StageValidate, "unknown mode "+string(req.Mode))
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return fail(StageValidate, "prompt required")
	}
	if req.Mode == ModeEdit && len(req.BaseFiles) == 0 {
		return fail(StageValidate, "edit requires a base version")
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.budget)
	defer cancel()

	out, err := o.engine.GenerateSite(runCtx, req)
	recordRun(time.Since(start), err == nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fail(StageBudget, "run exceeded "+o.budget.String())
		}
		return fail(StageEngine, err.Error())
	}

	files := normalizeFiles(out.Files)
	if req.Mode == ModeEdit {
		files = mergeOntoBase(req.BaseFiles, files)
	}
	if len(files) == 0 {
		return fail(StageEmpty, "engine produced no files")
	}

	base := req.BaseFiles
	if req.Mode == ModeGenerate {
		base = nil
	}
	changed, patches := computePatches(base, files)

	res.Success = true
	res.Files = files
	res.Summary = out.Summary
	res.FilesChanged = changed
	res.Patches = patches
	res.Usage = out.Usage
	res.Elapsed = time.Since(start)
	return res
}

// normalizeFiles cleans engine output paths. Blank paths are dropped;
// leading "./" is stripped so the same file never appears under two
// names.
func normalizeFiles(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for path, content := range in {
		path = strings.TrimSpace(path)
		path = strings.TrimPrefix(path, "./")
		path = strings.TrimPrefix(path, "/")
		if path == "" {
			continue
		}
		out[path] = content
	}
	return out
}

// mergeOntoBase applies an edit on top of the base site. Files the
// engine did not mention carry over untouched. An empty body is an
// explicit delete marker.
func mergeOntoBase(base, edits map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(edits))
	for path, content := range base {
		merged[path] = content
	}
	for path, content := range edits {
		if strings.TrimSpace(content) == "" {
			delete(merged, path)
			continue
		}
		merged[path] = content
	}
	return merged
}
