package permissions

import (
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/guesthost/internal/infrastructure/monitoring"
)

// AuditEntry records one permission decision
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Category  Category  `json:"category"`
	Access    string    `json:"access"`
	API       string    `json:"api,omitempty"`
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason,omitempty"`
}

// auditRing is a thread-safe circular buffer of decisions
type auditRing struct {
	entries []AuditEntry
	head    int
	size    int
	mu      sync.Mutex
}

func newAuditRing(maxSize int) *auditRing {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &auditRing{entries: make([]AuditEntry, maxSize)}
}

func (r *auditRing) add(e AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.head] = e
	r.head = (r.head + 1) % len(r.entries)
	if r.size < len(r.entries) {
		r.size++
	}
}

// recent returns up to limit entries, newest first
func (r *auditRing) recent(limit int, deniedOnly bool) []AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 || limit > r.size {
		limit = r.size
	}
	out := make([]AuditEntry, 0, limit)
	for i := 0; i < r.size && len(out) < limit; i++ {
		idx := (r.head - 1 - i + len(r.entries)) % len(r.entries)
		e := r.entries[idx]
		if deniedOnly && e.Allowed {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Audited wraps a backend and records every decision it makes.
// Denials are logged at info level; allowed checks are only counted.
type Audited struct {
	inner   WebPermissions
	logger  *zap.Logger
	metrics *monitoring.Metrics
	ring    *auditRing
}

var _ WebPermissions = (*Audited)(nil)

// AuditOption configures an Audited backend
type AuditOption func(*Audited)

// WithAuditLogger sets the logger denials are written to
func WithAuditLogger(l *zap.Logger) AuditOption {
	return func(a *Audited) { a.logger = l }
}

// WithAuditMetrics sets the metrics decisions are counted in
func WithAuditMetrics(m *monitoring.Metrics) AuditOption {
	return func(a *Audited) { a.metrics = m }
}

// WithAuditCapacity sets how many decisions are retained for Recent
func WithAuditCapacity(n int) AuditOption {
	return func(a *Audited) { a.ring = newAuditRing(n) }
}

// NewAudited decorates inner with auditing
func NewAudited(inner WebPermissions, opts ...AuditOption) *Audited {
	a := &Audited{
		inner:  inner,
		logger: zap.NewNop(),
		ring:   newAuditRing(256),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Inner returns the wrapped backend
func (a *Audited) Inner() WebPermissions {
	return a.inner
}

// Recent returns up to limit decisions, newest first
func (a *Audited) Recent(limit int, deniedOnly bool) []AuditEntry {
	return a.ring.recent(limit, deniedOnly)
}

func (a *Audited) record(category Category, access, api string, err error) {
	entry := AuditEntry{
		Timestamp: time.Now(),
		Category:  category,
		Access:    access,
		API:       api,
		Allowed:   err == nil,
	}
	if err != nil {
		entry.Reason = err.Error()
		if c, ok := CategoryOf(err); ok {
			entry.Category = c
		}
		a.logger.Info("Permission denied",
			zap.String("category", string(entry.Category)),
			zap.String("access", access),
			zap.String("api", api),
			zap.Error(err),
		)
	}
	a.ring.add(entry)
	a.metrics.RecordPermission(string(entry.Category), entry.Allowed)
}

func (a *Audited) AllowHRTime() bool {
	return a.inner.AllowHRTime()
}

func (a *Audited) CheckURL(u *url.URL, api string) error {
	err := a.inner.CheckURL(u, api)
	a.record(CategoryURL, URLKey(u), api, err)
	return err
}

func (a *Audited) CheckHost(host string, port int, api string) error {
	err := a.inner.CheckHost(host, port, api)
	a.record(CategoryHost, host, api, err)
	return err
}

func (a *Audited) CheckOpen(path string, kind AccessKind, api string) (CheckedPath, error) {
	cp, err := a.inner.CheckOpen(path, kind, api)
	a.record(CategoryOpen, path, api, err)
	return cp, err
}

func (a *Audited) CheckOpenBlind(path string, kind AccessKind, display, api string) (CheckedPath, error) {
	cp, err := a.inner.CheckOpenBlind(path, kind, display, api)
	a.record(CategoryOpen, display, api, err)
	return cp, err
}

func (a *Audited) CheckRead(path, api string) (string, error) {
	p, err := a.inner.CheckRead(path, api)
	a.record(CategoryRead, path, api, err)
	return p, err
}

func (a *Audited) CheckReadPath(path, api string) (CheckedPath, error) {
	cp, err := a.inner.CheckReadPath(path, api)
	a.record(CategoryRead, path, api, err)
	return cp, err
}

func (a *Audited) CheckReadAll(api string) error {
	err := a.inner.CheckReadAll(api)
	a.record(CategoryRead, "<all>", api, err)
	return err
}

func (a *Audited) CheckReadBlind(path, display, api string) error {
	err := a.inner.CheckReadBlind(path, display, api)
	a.record(CategoryRead, display, api, err)
	return err
}

func (a *Audited) CheckWrite(path, api string) (string, error) {
	p, err := a.inner.CheckWrite(path, api)
	a.record(CategoryWrite, path, api, err)
	return p, err
}

func (a *Audited) CheckWriteAll(api string) error {
	err := a.inner.CheckWriteAll(api)
	a.record(CategoryWrite, "<all>", api, err)
	return err
}

func (a *Audited) CheckWritePartial(path, api string) (CheckedPath, error) {
	cp, err := a.inner.CheckWritePartial(path, api)
	a.record(CategoryWrite, path, api, err)
	return cp, err
}

func (a *Audited) CheckWriteBlind(path, display, api string) error {
	err := a.inner.CheckWriteBlind(path, display, api)
	a.record(CategoryWrite, display, api, err)
	return err
}

func (a *Audited) CheckEnv(name string) error {
	err := a.inner.CheckEnv(name)
	a.record(CategoryEnv, name, "", err)
	return err
}

func (a *Audited) CheckSys(kind SystemKind, api string) error {
	err := a.inner.CheckSys(kind, api)
	a.record(CategorySys, kind.String(), api, err)
	return err
}

func (a *Audited) CheckExec() error {
	err := a.inner.CheckExec()
	a.record(CategoryExec, "exec", "", err)
	return err
}
