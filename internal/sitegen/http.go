package sitegen

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/siteforge-labs/siteforge-backend/internal/archive"
	"github.com/siteforge-labs/siteforge-backend/internal/auth"
	"github.com/siteforge-labs/siteforge-backend/internal/builds"
	"github.com/siteforge-labs/siteforge-backend/internal/conversations"
	"github.com/siteforge-labs/siteforge-backend/internal/locks"
	"github.com/siteforge-labs/siteforge-backend/internal/pipeline"
)

// maxPromptLen matches the per-message cap of the conversation ledger.
const maxPromptLen = 10000

type Handler struct {
	svc *Service
}

// Register mounts the build routes onto the project group. The group is
// expected to already carry authentication.
func Register(rg *gin.RouterGroup, svc *Service) {
	h := &Handler{svc: svc}

	rg.POST("/:public_id/generate", h.generate)
	rg.POST("/:public_id/edit", h.edit)
	rg.POST("/:public_id/publish", h.publish)
	rg.GET("/:public_id/builds", h.listBuilds)
	rg.GET("/:public_id/builds/:version", h.getBuild)
	rg.GET("/:public_id/builds/:version/archive", h.downloadArchive)
	rg.GET("/:public_id/download", h.download)
	rg.GET("/:public_id/messages", h.history)
}

type historyTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type buildReq struct {
	Prompt string `json:"prompt"`

	// History, when the key is present, is used verbatim instead of the
	// stored transcript. A pointer keeps "absent" and "empty" apart.
	History *[]historyTurn `json:"history"`

	HistoryLimit int `json:"history_limit"`
	BaseVersion  int `json:"base_version"`
}

func (h *Handler) generate(c *gin.Context) {
	req, ok := h.bindBuildReq(c)
	if !ok {
		return
	}

	out, err := h.svc.Generate(c.Request.Context(), auth.UserDBID(c), c.Param("public_id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOutcome(c, out)
}

func (h *Handler) edit(c *gin.Context) {
	req, ok := h.bindBuildReq(c)
	if !ok {
		return
	}

	out, err := h.svc.Edit(c.Request.Context(), auth.UserDBID(c), c.Param("public_id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOutcome(c, out)
}

func (h *Handler) bindBuildReq(c *gin.Context) (BuildRequest, bool) {
	var body buildReq
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return BuildRequest{}, false
	}

	prompt := strings.TrimSpace(body.Prompt)
	if prompt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "prompt required"})
		return BuildRequest{}, false
	}
	if len(prompt) > maxPromptLen {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "prompt too long"})
		return BuildRequest{}, false
	}
	if body.HistoryLimit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "history_limit must not be negative"})
		return BuildRequest{}, false
	}
	if body.BaseVersion < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "base_version must not be negative"})
		return BuildRequest{}, false
	}

	req := BuildRequest{
		Prompt:       prompt,
		HistoryLimit: body.HistoryLimit,
		BaseVersion:  body.BaseVersion,
	}

	if body.History != nil {
		turns, ok := validateHistory(c, *body.History)
		if !ok {
			return BuildRequest{}, false
		}
		req.History = turns
		req.HistoryProvided = true
	}

	return req, true
}

func validateHistory(c *gin.Context, raw []historyTurn) ([]pipeline.HistoryTurn, bool) {
	if len(raw) > conversations.MaxHistoryLimit {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "history too long"})
		return nil, false
	}

	turns := make([]pipeline.HistoryTurn, 0, len(raw))
	for i, t := range raw {
		if t.Role != conversations.RoleUser && t.Role != conversations.RoleAssistant {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": fmt.Sprintf("history[%d]: invalid role", i)})
			return nil, false
		}
		content := strings.TrimSpace(t.Content)
		if content == "" || len(content) > maxPromptLen {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": fmt.Sprintf("history[%d]: content must be 1-%d characters", i, maxPromptLen)})
			return nil, false
		}
		turns = append(turns, pipeline.HistoryTurn{Role: t.Role, Content: content})
	}
	return turns, true
}

func respondOutcome(c *gin.Context, out *BuildOutcome) {
	resp := gin.H{
		"ok":            true,
		"build":         out.Build,
		"files_changed": out.FilesChanged,
		"patches":       out.Patches,
		"usage":         out.Usage,
		"elapsed_ms":    out.Elapsed.Milliseconds(),
	}
	if out.PreviewURL != "" {
		resp["preview_url"] = out.PreviewURL
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) listBuilds(c *gin.Context) {
	items, err := h.svc.Builds(c.Request.Context(), auth.UserDBID(c), c.Param("public_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "builds": items})
}

func (h *Handler) getBuild(c *gin.Context) {
	version, ok := parseVersion(c)
	if !ok {
		return
	}

	b, err := h.svc.BuildDetail(c.Request.Context(), auth.UserDBID(c), c.Param("public_id"), version)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "build": b})
}

func (h *Handler) downloadArchive(c *gin.Context) {
	version, ok := parseVersion(c)
	if !ok {
		return
	}
	h.serveArchive(c, version)
}

// download is the query-parameter flavor of the archive route. No
// version means the latest build.
func (h *Handler) download(c *gin.Context) {
	version := 0
	if raw := c.Query("version"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid version"})
			return
		}
		version = n
	}
	h.serveArchive(c, version)
}

func (h *Handler) serveArchive(c *gin.Context, version int) {
	name, data, err := h.svc.Archive(c.Request.Context(), auth.UserDBID(c), c.Param("public_id"), version)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/zip", data)
}

type publishReq struct {
	Version int `json:"version"`
}

func (h *Handler) publish(c *gin.Context) {
	var body publishReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
			return
		}
	}
	if body.Version < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "version must not be negative"})
		return
	}

	out, err := h.svc.Publish(c.Request.Context(), auth.UserDBID(c), c.Param("public_id"), body.Version)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{"ok": true, "version": out.Version, "url": out.URL}
	if out.ArchiveURL != "" {
		resp["archive_url"] = out.ArchiveURL
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) history(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid limit"})
			return
		}
		limit = n
	}

	msgs, err := h.svc.History(c.Request.Context(), auth.UserDBID(c), c.Param("public_id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "messages": msgs})
}

// parseVersion reads the :version segment. "latest" and 0 both mean the
// newest build.
func parseVersion(c *gin.Context) (int, bool) {
	raw := c.Param("version")
	if raw == "latest" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid version"})
		return 0, false
	}
	return n, true
}

// respondError maps service failures onto the API's status codes.
func respondError(c *gin.Context, err error) {
	var perr *PipelineError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoBuilds), errors.Is(err, builds.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": err.Error()})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"ok": false, "error": err.Error()})
	case errors.Is(err, locks.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"ok": false, "error": err.Error()})
	case errors.Is(err, archive.ErrNoFiles):
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": err.Error()})
	case errors.Is(err, ErrPublishingDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": err.Error()})
	case errors.As(err, &perr):
		status := http.StatusBadGateway
		if perr.Stage == pipeline.StageValidate {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"ok": false, "error": perr.Detail, "stage": perr.Stage})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
	}
}
