package sitegen

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/siteforge-labs/siteforge-backend/internal/archive"
	"github.com/siteforge-labs/siteforge-backend/internal/builds"
	"github.com/siteforge-labs/siteforge-backend/internal/conversations"
	"github.com/siteforge-labs/siteforge-backend/internal/pipeline"
	"github.com/siteforge-labs/siteforge-backend/internal/projects"
)

var (
	ErrNotFound  = errors.New("project not found")
	ErrForbidden = errors.New("not your project")

	// ErrNoBuilds means an edit was requested before any build exists.
	ErrNoBuilds = errors.New("project has no builds yet")

	// ErrPublishingDisabled means no publishing backend is configured.
	ErrPublishingDisabled = errors.New("publishing is not enabled")
)

// PipelineError reports a run that failed inside the pipeline. Stage is
// one of the pipeline stage constants.
type PipelineError struct {
	Stage  string
	Detail string
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline failed at %s: %s", e.Stage, e.Detail)
}

// ProjectStore resolves public IDs to projects.
type ProjectStore interface {
	GetByPublicID(ctx context.Context, publicID string) (*projects.Project, error)
}

// Locker serializes builds per project.
type Locker interface {
	Acquire(ctx context.Context, projectID, holderID string) error
	Release(ctx context.Context, projectID string) error
}

// BuildStore is the append-only version ledger.
type BuildStore interface {
	Append(ctx context.Context, projectID string, in builds.AppendInput) (*builds.Build, error)
	GetByVersion(ctx context.Context, projectID string, version int) (*builds.Build, error)
	GetLatest(ctx context.Context, projectID string) (*builds.Build, error)
	List(ctx context.Context, projectID string) ([]builds.Meta, error)
}

// MessageStore is the append-only conversation ledger.
type MessageStore interface {
	Append(ctx context.Context, projectID, role, content string, buildVersion *int) (*conversations.Message, error)
	LoadRecent(ctx context.Context, projectID string, limit int) ([]conversations.Message, error)
}

// Runner executes one pipeline pass.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) *pipeline.Result
}

// EventSink receives build lifecycle notifications. Optional; delivery
// is best effort and never fails a build.
type EventSink interface {
	BuildStarted(ctx context.Context, publicID string) error
	BuildCompleted(ctx context.Context, publicID string, version int) error
	BuildFailed(ctx context.Context, publicID, detail string) error
}

// SitePublisher pushes a finished version to public hosting. Optional.
type SitePublisher interface {
	PublishSite(ctx context.Context, publicID string, version int, files map[string]string) (string, error)
}

// ArchiveCache stores packaged zips keyed by project and version.
// Optional.
type ArchiveCache interface {
	Get(ctx context.Context, projectID string, version int) ([]byte, bool, error)
	Put(ctx context.Context, projectID string, version int, data []byte) error
}

// Service drives the full build flow: ownership checks, the per-project
// lock, history assembly, the pipeline run, and the ledger writes that
// record the outcome.
type Service struct {
	projects  ProjectStore
	locks     Locker
	builds    BuildStore
	messages  MessageStore
	runner    Runner
	events    EventSink
	publisher SitePublisher
	archives  ArchiveCache
	pack      func(map[string]string) ([]byte, error)
	budget    time.Duration
}

// Deps carries everything a Service needs. Events, Publisher and
// Archives may be nil; those features degrade to no-ops.
type Deps struct {
	Projects  ProjectStore
	Locks     Locker
	Builds    BuildStore
	Messages  MessageStore
	Runner    Runner
	Events    EventSink
	Publisher SitePublisher
	Archives  ArchiveCache

	// Packager overrides the zip packager, mainly for tests.
	Packager func(map[string]string) ([]byte, error)

	Budget time.Duration
}

func NewService(d Deps) *Service {
	if d.Budget <= 0 {
		d.Budget = pipeline.DefaultBudget
	}
	if d.Packager == nil {
		d.Packager = archive.Package
	}
	return &Service{
		projects:  d.Projects,
		locks:     d.Locks,
		builds:    d.Builds,
		messages:  d.Messages,
		runner:    d.Runner,
		events:    d.Events,
		publisher: d.Publisher,
		archives:  d.Archives,
		pack:      d.Packager,
		budget:    d.Budget,
	}
}

// BuildRequest is one user-initiated build turn.
type BuildRequest struct {
	Prompt string

	// History is a caller-provided transcript. It is used verbatim, and
	// only, when HistoryProvided is set; an empty provided transcript
	// means "run with no context", it never falls back to the ledger.
	History         []pipeline.HistoryTurn
	HistoryProvided bool

	// HistoryLimit is how many prior ledger turns feed the run when the
	// caller did not provide a transcript. Zero means the ledger
	// default. The limit is always passed down explicitly; the ledger
	// never decides on its own.
	HistoryLimit int

	// BaseVersion picks the version an edit starts from. Zero means the
	// latest build. Ignored for generate.
	BaseVersion int
}

// BuildOutcome is the result of a successful build turn.
type BuildOutcome struct {
	Build        *builds.Build        `json:"build"`
	FilesChanged []string             `json:"files_changed"`
	Patches      []pipeline.FilePatch `json:"patches"`
	Elapsed      time.Duration        `json:"-"`
	Usage        pipeline.Usage       `json:"usage"`
	PreviewURL   string               `json:"preview_url,omitempty"`
}

// Generate creates a fresh site from the prompt and appends it as the
// project's next version.
func (s *Service) Generate(ctx context.Context, userDBID, publicID string, req BuildRequest) (*BuildOutcome, error) {
	return s.build(ctx, userDBID, publicID, pipeline.ModeGenerate, req)
}

// Edit reworks an existing version per the prompt. Files the model does
// not touch carry over from the base.
func (s *Service) Edit(ctx context.Context, userDBID, publicID string, req BuildRequest) (*BuildOutcome, error) {
	return s.build(ctx, userDBID, publicID, pipeline.ModeEdit, req)
}

func (s *Service) build(ctx context.Context, userDBID, publicID string, mode pipeline.Mode, req BuildRequest) (*BuildOutcome, error) {
	p, err := s.verifyOwned(ctx, userDBID, publicID)
	if err != nil {
		return nil, err
	}

	if err := s.locks.Acquire(ctx, p.ID, userDBID); err != nil {
		return nil, err
	}

	// Past this point the client's connection no longer matters. The
	// run gets its own deadline, and the release below fires on every
	// exit path, panic included.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.budget+30*time.Second)
	defer cancel()
	defer s.release(p)

	s.notifyStarted(runCtx, p.PublicID)

	turns := req.History
	if !req.HistoryProvided {
		history, err := s.messages.LoadRecent(runCtx, p.ID, req.HistoryLimit)
		if err != nil {
			return nil, s.failed(runCtx, p.PublicID, fmt.Errorf("load history: %w", err))
		}
		turns = toTurns(history)
	}

	var base *builds.Build
	if mode == pipeline.ModeEdit {
		base, err = s.resolveBase(runCtx, p.ID, req.BaseVersion)
		if err != nil {
			return nil, s.failed(runCtx, p.PublicID, err)
		}
	}

	if _, err := s.messages.Append(runCtx, p.ID, conversations.RoleUser, req.Prompt, nil); err != nil {
		return nil, s.failed(runCtx, p.PublicID, fmt.Errorf("record prompt: %w", err))
	}

	preq := pipeline.Request{
		Mode:        mode,
		Prompt:      req.Prompt,
		ProjectName: p.Name,
		History:     turns,
	}
	if base != nil {
		preq.BaseFiles = base.Files
		preq.BaseVersion = base.Version
	}

	res := s.runner.Run(runCtx, preq)
	if !res.Success {
		perr := &PipelineError{Stage: res.FailureStage, Detail: res.ErrorDetail}
		return nil, s.failed(runCtx, p.PublicID, perr)
	}

	b, err := s.builds.Append(runCtx, p.ID, builds.AppendInput{
		Files:       res.Files,
		Summary:     res.Summary,
		PreviewHTML: res.Files["index.html"],
	})
	if err != nil {
		if errors.Is(err, builds.ErrProjectNotFound) {
			return nil, s.failed(runCtx, p.PublicID, ErrNotFound)
		}
		return nil, s.failed(runCtx, p.PublicID, fmt.Errorf("append build: %w", err))
	}

	summary := res.Summary
	if summary == "" {
		summary = fmt.Sprintf("Generated site version %d", b.Version)
	}
	if _, err := s.messages.Append(runCtx, p.ID, conversations.RoleAssistant, summary, &b.Version); err != nil {
		// the build is committed; a missing assistant turn is not worth
		// failing the request over
		log.Printf("[sitegen] record reply failed project=%s version=%d err=%v", p.PublicID, b.Version, err)
	}

	out := &BuildOutcome{
		Build:        b,
		FilesChanged: res.FilesChanged,
		Patches:      res.Patches,
		Elapsed:      res.Elapsed,
		Usage:        res.Usage,
	}

	if s.publisher != nil {
		url, err := s.publisher.PublishSite(runCtx, p.PublicID, b.Version, b.Files)
		if err != nil {
			log.Printf("[sitegen] publish failed project=%s version=%d err=%v", p.PublicID, b.Version, err)
		} else {
			out.PreviewURL = url
		}
	}

	if s.events != nil {
		if err := s.events.BuildCompleted(runCtx, p.PublicID, b.Version); err != nil {
			log.Printf("[sitegen] event publish failed project=%s err=%v", p.PublicID, err)
		}
	}

	log.Printf("[sitegen] build ok project=%s version=%d files=%d elapsed=%s",
		p.PublicID, b.Version, len(b.Files), res.Elapsed.Round(time.Millisecond))
	return out, nil
}

// Builds lists version metadata for an owned project, newest first.
func (s *Service) Builds(ctx context.Context, userDBID, publicID string) ([]builds.Meta, error) {
	p, err := s.verifyOwned(ctx, userDBID, publicID)
	if err != nil {
		return nil, err
	}
	return s.builds.List(ctx, p.ID)
}

// BuildDetail returns one full version. Version zero means the latest.
func (s *Service) BuildDetail(ctx context.Context, userDBID, publicID string, version int) (*builds.Build, error) {
	p, err := s.verifyOwned(ctx, userDBID, publicID)
	if err != nil {
		return nil, err
	}
	if version <= 0 {
		return s.builds.GetLatest(ctx, p.ID)
	}
	return s.builds.GetByVersion(ctx, p.ID, version)
}

// History returns recent conversation turns, oldest first.
func (s *Service) History(ctx context.Context, userDBID, publicID string, limit int) ([]conversations.Message, error) {
	p, err := s.verifyOwned(ctx, userDBID, publicID)
	if err != nil {
		return nil, err
	}
	return s.messages.LoadRecent(ctx, p.ID, limit)
}

// Archive packages one version as a zip, serving from cache when the
// same version was packaged before. Version zero means the latest.
func (s *Service) Archive(ctx context.Context, userDBID, publicID string, version int) (string, []byte, error) {
	p, err := s.verifyOwned(ctx, userDBID, publicID)
	if err != nil {
		return "", nil, err
	}

	var b *builds.Build
	if version <= 0 {
		b, err = s.builds.GetLatest(ctx, p.ID)
	} else {
		b, err = s.builds.GetByVersion(ctx, p.ID, version)
	}
	if err != nil {
		return "", nil, err
	}

	name := archive.Name(b.Files, b.Version)

	if s.archives != nil {
		if data, ok, err := s.archives.Get(ctx, p.ID, b.Version); err != nil {
			log.Printf("[sitegen] archive cache read failed project=%s err=%v", p.PublicID, err)
		} else if ok {
			return name, data, nil
		}
	}

	data, err := s.pack(b.Files)
	if err != nil {
		return "", nil, err
	}

	if s.archives != nil {
		if err := s.archives.Put(ctx, p.ID, b.Version, data); err != nil {
			log.Printf("[sitegen] archive cache write failed project=%s err=%v", p.PublicID, err)
		}
	}

	return name, data, nil
}

// PublishOutcome reports where a published version can be reached.
type PublishOutcome struct {
	Version    int    `json:"version"`
	URL        string `json:"url"`
	ArchiveURL string `json:"archive_url,omitempty"`
}

// archivePublisher is the optional upgrade a SitePublisher can offer for
// hosting packaged zips next to the site.
type archivePublisher interface {
	PublishArchive(ctx context.Context, publicID, name string, data []byte) (string, error)
}

// Publish pushes one version to public hosting. Version zero means the
// latest build. When the publisher also hosts archives, the packaged zip
// is uploaded alongside, best effort.
func (s *Service) Publish(ctx context.Context, userDBID, publicID string, version int) (*PublishOutcome, error) {
	p, err := s.verifyOwned(ctx, userDBID, publicID)
	if err != nil {
		return nil, err
	}
	if s.publisher == nil {
		return nil, ErrPublishingDisabled
	}

	var b *builds.Build
	if version <= 0 {
		b, err = s.builds.GetLatest(ctx, p.ID)
	} else {
		b, err = s.builds.GetByVersion(ctx, p.ID, version)
	}
	if err != nil {
		return nil, err
	}

	url, err := s.publisher.PublishSite(ctx, p.PublicID, b.Version, b.Files)
	if err != nil {
		return nil, fmt.Errorf("publish site: %w", err)
	}

	out := &PublishOutcome{Version: b.Version, URL: url}

	if ap, ok := s.publisher.(archivePublisher); ok {
		data, err := s.pack(b.Files)
		if err != nil {
			log.Printf("[sitegen] archive publish skipped project=%s version=%d err=%v", p.PublicID, b.Version, err)
			return out, nil
		}
		archiveURL, err := ap.PublishArchive(ctx, p.PublicID, archive.Name(b.Files, b.Version), data)
		if err != nil {
			log.Printf("[sitegen] archive publish failed project=%s version=%d err=%v", p.PublicID, b.Version, err)
			return out, nil
		}
		out.ArchiveURL = archiveURL
	}

	log.Printf("[sitegen] publish ok project=%s version=%d url=%s", p.PublicID, b.Version, url)
	return out, nil
}

func (s *Service) verifyOwned(ctx context.Context, userDBID, publicID string) (*projects.Project, error) {
	p, err := s.projects.GetByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, projects.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if p.UserID != userDBID {
		return nil, ErrForbidden
	}
	return p, nil
}

func (s *Service) resolveBase(ctx context.Context, projectID string, version int) (*builds.Build, error) {
	if version <= 0 {
		b, err := s.builds.GetLatest(ctx, projectID)
		if errors.Is(err, builds.ErrNotFound) {
			return nil, ErrNoBuilds
		}
		return b, err
	}
	return s.builds.GetByVersion(ctx, projectID, version)
}

// release clears the build flag on its own context so a canceled or
// expired request cannot leave the project stuck in processing.
func (s *Service) release(p *projects.Project) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.locks.Release(ctx, p.ID); err != nil {
		log.Printf("[sitegen] release failed project=%s err=%v", p.PublicID, err)
	}
}

func (s *Service) notifyStarted(ctx context.Context, publicID string) {
	if s.events == nil {
		return
	}
	if err := s.events.BuildStarted(ctx, publicID); err != nil {
		log.Printf("[sitegen] event publish failed project=%s err=%v", publicID, err)
	}
}

// failed emits the failure event and passes the error through.
func (s *Service) failed(ctx context.Context, publicID string, err error) error {
	if s.events != nil {
		if perr := s.events.BuildFailed(ctx, publicID, err.Error()); perr != nil {
			log.Printf("[sitegen] event publish failed project=%s err=%v", publicID, perr)
		}
	}
	return err
}

func toTurns(msgs []conversations.Message) []pipeline.HistoryTurn {
	if len(msgs) == 0 {
		return nil
	}
	turns := make([]pipeline.HistoryTurn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, pipeline.HistoryTurn{Role: m.Role, Content: m.Content})
	}
	return turns
}
