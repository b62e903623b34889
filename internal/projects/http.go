package projects

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/siteforge-labs/siteforge-backend/internal/auth"
)

const maxNameLen = 120

type Handler struct {
	repo *Repo
}

func Register(rg *gin.RouterGroup, repo *Repo) {
	h := &Handler{repo: repo}

	rg.POST("", h.create)
	rg.GET("", h.list)
	rg.GET("/:public_id", h.get)
	rg.GET("/:public_id/status", h.status)
	rg.PATCH("/:public_id", h.rename)
	rg.DELETE("/:public_id", h.delete)
}

// requireOwned loads the project and enforces ownership. A project that
// exists but belongs to someone else is reported as forbidden, not as
// missing.
func (h *Handler) requireOwned(c *gin.Context) (*Project, bool) {
	publicID := c.Param("public_id")

	p, err := h.repo.GetByPublicID(c.Request.Context(), publicID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "project not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return nil, false
	}

	if p.UserID != auth.UserDBID(c) {
		c.JSON(http.StatusForbidden, gin.H{"ok": false, "error": "not your project"})
		return nil, false
	}

	return p, true
}

type createReq struct {
	Name string `json:"name"`
}

func (h *Handler) create(c *gin.Context) {
	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > maxNameLen {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "name must be 1-120 characters"})
		return
	}

	p, err := h.repo.Create(c.Request.Context(), auth.UserDBID(c), name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true, "project": p})
}

func (h *Handler) list(c *gin.Context) {
	items, err := h.repo.List(c.Request.Context(), auth.UserDBID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "projects": items})
}

func (h *Handler) get(c *gin.Context) {
	p, ok := h.requireOwned(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": p})
}

// status is a cheap poll target for clients watching a running build.
func (h *Handler) status(c *gin.Context) {
	p, ok := h.requireOwned(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":             true,
		"build_status":   p.BuildStatus,
		"locked_at":      p.LockedAt,
		"latest_version": p.LatestVersion,
	})
}

type renameReq struct {
	Name string `json:"name"`
}

func (h *Handler) rename(c *gin.Context) {
	p, ok := h.requireOwned(c)
	if !ok {
		return
	}

	var req renameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > maxNameLen {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "name must be 1-120 characters"})
		return
	}

	updated, err := h.repo.Rename(c.Request.Context(), p.ID, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "project not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "project": updated})
}

func (h *Handler) delete(c *gin.Context) {
	p, ok := h.requireOwned(c)
	if !ok {
		return
	}

	deleted, err := h.repo.SoftDelete(c.Request.Context(), p.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "project not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
