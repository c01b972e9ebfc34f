package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/guesthost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/guesthost/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/guesthost/internal/permissions"
)

// DefaultAuditLimit is how many decisions /permissions/audit returns when
// no limit is given
const DefaultAuditLimit = 100

// Handlers serves the operator-facing admin API
type Handlers struct {
	allowlist *permissions.Allowlist // nil when the backend is not mutable
	audit     *permissions.Audited   // nil when auditing is off
	metrics   *monitoring.Metrics
	breaker   *resilience.Breaker
	logger    *zap.Logger
	started   time.Time
}

// Deps are the components the admin API reports on and mutates
type Deps struct {
	Allowlist *permissions.Allowlist
	Audit     *permissions.Audited
	Metrics   *monitoring.Metrics
	Breaker   *resilience.Breaker
	Logger    *zap.Logger
}

// NewHandlers creates admin handlers
func NewHandlers(deps Deps) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		allowlist: deps.Allowlist,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		breaker:   deps.Breaker,
		logger:    logger,
		started:   time.Now(),
	}
}

// GrantRequest adds or removes one allowlist entry
type GrantRequest struct {
	Kind  string `json:"kind" binding:"required,oneof=url host env read write open sys"`
	Value string `json:"value" binding:"required"`
	Read  bool   `json:"read"`  // open only
	Write bool   `json:"write"` // open only
}

// FlagsRequest sets master switches; omitted fields are left unchanged
type FlagsRequest struct {
	HRTime   *bool `json:"hrtime"`
	Exec     *bool `json:"exec"`
	ReadAll  *bool `json:"read_all"`
	WriteAll *bool `json:"write_all"`
}

// Health reports liveness and the fetch breaker state
func (h *Handlers) Health(c *gin.Context) {
	resp := gin.H{
		"status":   "healthy",
		"uptime":   time.Since(h.started).Round(time.Second).String(),
		"runtimes": h.metrics.Snapshot().RuntimesActive,
	}
	if h.breaker != nil {
		resp["fetch_breaker"] = h.breaker.State().String()
	}
	c.JSON(http.StatusOK, resp)
}

// GetPermissions returns a snapshot of the allowlist
func (h *Handlers) GetPermissions(c *gin.Context) {
	if !h.mutable(c) {
		return
	}
	c.JSON(http.StatusOK, h.allowlist.Snapshot())
}

// Allow adds an entry
func (h *Handlers) Allow(c *gin.Context) {
	h.grant(c, true)
}

// Deny removes an entry
func (h *Handlers) Deny(c *gin.Context) {
	h.grant(c, false)
}

func (h *Handlers) grant(c *gin.Context, allow bool) {
	if !h.mutable(c) {
		return
	}
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Kind == "open" && !req.Read && !req.Write {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open entries need read or write"})
		return
	}

	value, err := permissions.NormalizeEntry(permissions.Category(req.Kind), req.Value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a := h.allowlist
	switch req.Kind {
	case "url":
		pick(allow, a.AllowURL, a.DenyURL)(value)
	case "host":
		pick(allow, a.AllowHost, a.DenyHost)(value)
	case "env":
		pick(allow, a.AllowEnv, a.DenyEnv)(value)
	case "read":
		pick(allow, a.AllowRead, a.DenyRead)(value)
	case "write":
		pick(allow, a.AllowWrite, a.DenyWrite)(value)
	case "open":
		if allow {
			a.AllowOpen(value, req.Read, req.Write)
		} else {
			a.DenyOpen(value, req.Read, req.Write)
		}
	case "sys":
		kind := permissions.NewSystemKind(req.Value)
		if allow {
			a.AllowSys(kind)
		} else {
			a.DenySys(kind)
		}
	}

	h.logger.Info("Allowlist updated",
		zap.Bool("allow", allow),
		zap.String("kind", req.Kind),
		zap.String("value", value),
	)
	c.JSON(http.StatusOK, a.Snapshot())
}

func pick(allow bool, add, remove func(string)) func(string) {
	if allow {
		return add
	}
	return remove
}

// SetFlags updates master switches
func (h *Handlers) SetFlags(c *gin.Context) {
	if !h.mutable(c) {
		return
	}
	var req FlagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a := h.allowlist
	for _, f := range []struct {
		v   *bool
		set func(bool)
	}{
		{req.HRTime, a.SetHRTime},
		{req.Exec, a.SetExec},
		{req.ReadAll, a.SetReadAll},
		{req.WriteAll, a.SetWriteAll},
	} {
		if f.v != nil {
			f.set(*f.v)
		}
	}
	h.logger.Info("Allowlist flags updated")
	c.JSON(http.StatusOK, a.Snapshot())
}

// Audit returns recent permission decisions, newest first
func (h *Handlers) Audit(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "auditing is disabled"})
		return
	}
	limit := DefaultAuditLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	denied := c.Query("denied") == "true"

	entries := h.audit.Recent(limit, denied)
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

func (h *Handlers) mutable(c *gin.Context) bool {
	if h.allowlist == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "permission backend is not an allowlist"})
		return false
	}
	return true
}
