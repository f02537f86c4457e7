// Package api exposes the sync layer to a local UI over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/civicsync/internal/fallback"
	"github.com/jmerrifield20/civicsync/internal/health"
	"github.com/jmerrifield20/civicsync/internal/model"
	"github.com/jmerrifield20/civicsync/internal/reports"
	"github.com/jmerrifield20/civicsync/internal/session"
	"github.com/jmerrifield20/civicsync/internal/validation"
	"go.uber.org/zap"
)

// ReportStore is the report repository as seen by the HTTP layer.
type ReportStore interface {
	Create(ctx context.Context, d model.Draft) reports.CreateResult
	Get(id model.ReportID) (model.Report, bool)
	ListAll(ctx context.Context, f *model.Filter) (reports.Listing, error)
	ListForMap(ctx context.Context, f *model.Filter) (reports.Listing, error)
	ListMine(f *model.Filter) []model.Report
	UpdateStatus(ctx context.Context, id model.ReportID, status model.ReportStatus) (bool, error)
	SyncPending(ctx context.Context) (reports.SyncResult, error)
	RefreshMine(ctx context.Context) (int, error)
	Pending() []model.Report
}

// CategoryDirectory is the category directory as seen by the HTTP layer.
type CategoryDirectory interface {
	ListActive(ctx context.Context) []model.Category
	Get(ctx context.Context, id int64) (model.Category, fallback.Tier, error)
	Lookup(ctx context.Context, id int64) (model.Category, fallback.Tier, error)
	Search(ctx context.Context, term string) []model.Category
	ForceRefresh(ctx context.Context) bool
}

// Validator scores drafts without storing them.
type Validator interface {
	Validate(d model.Draft, cat *model.Category) validation.Verdict
	Decide(v validation.Verdict) validation.Decision
	Recommendations(v validation.Verdict) []string
}

// StatusReporter reports backend reachability.
type StatusReporter interface {
	Status() health.Status
}

// Handler serves the local API.
type Handler struct {
	reports    ReportStore
	categories CategoryDirectory
	validator  Validator
	monitor    StatusReporter
	logger     *zap.Logger
}

// NewHandler creates a new Handler. monitor may be nil.
func NewHandler(rs ReportStore, cats CategoryDirectory, v Validator, monitor StatusReporter, logger *zap.Logger) *Handler {
	return &Handler{reports: rs, categories: cats, validator: v, monitor: monitor, logger: logger}
}

// Register mounts the API routes on the given router group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	r := rg.Group("/reports")
	{
		r.POST("", h.CreateReport)
		r.GET("", h.ListReports)
		r.GET("/mine", h.ListMine)
		r.GET("/map", h.ListMap)
		r.GET("/:id", h.GetReport)
		r.PATCH("/:id/status", h.UpdateStatus)
	}

	c := rg.Group("/categories")
	{
		c.GET("", h.ListCategories)
		c.GET("/search", h.SearchCategories)
		c.GET("/:id", h.GetCategory)
	}

	rg.POST("/validate", h.Validate)
	rg.POST("/validate/decision", h.ValidateDecision)
	rg.POST("/sync", h.Sync)
}

// ── Reports ──────────────────────────────────────────────────────────────────

// CreateReport handles POST /reports. The owner is taken from the bearer
// session token when one is sent.
func (h *Handler) CreateReport(c *gin.Context) {
	var d model.Draft
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})
		return
	}

	sess, err := sessionFrom(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	d.Owner = sess.Owner()

	res := h.reports.Create(c.Request.Context(), d)
	switch {
	case res.Success:
		c.JSON(http.StatusCreated, res)
	case len(res.Reasons) > 0:
		c.JSON(http.StatusUnprocessableEntity, res)
	default:
		c.JSON(http.StatusInternalServerError, res)
	}
}

// GetReport handles GET /reports/:id. Local ids use the "local-N" form.
func (h *Handler) GetReport(c *gin.Context) {
	id, err := model.ParseReportID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rep, ok := h.reports.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}
	c.JSON(http.StatusOK, rep)
}

// ListReports handles GET /reports.
func (h *Handler) ListReports(c *gin.Context) {
	h.listing(c, h.reports.ListAll)
}

// ListMap handles GET /reports/map.
func (h *Handler) ListMap(c *gin.Context) {
	h.listing(c, h.reports.ListForMap)
}

func (h *Handler) listing(c *gin.Context, list func(context.Context, *model.Filter) (reports.Listing, error)) {
	f, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := list(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("list reports", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reports unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reports": res.Reports,
		"count":   len(res.Reports),
		"tier":    res.Tier,
	})
}

// ListMine handles GET /reports/mine.
func (h *Handler) ListMine(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mine := h.reports.ListMine(f)
	c.JSON(http.StatusOK, gin.H{"reports": mine, "count": len(mine)})
}

type statusRequest struct {
	Status model.ReportStatus `json:"status" binding:"required"`
}

// UpdateStatus handles PATCH /reports/:id/status.
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := model.ParseReportID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})
		return
	}
	if !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of new, in-process, resolved or rejected"})
		return
	}

	found, err := h.reports.UpdateStatus(c.Request.Context(), id, req.Status)
	switch {
	case !found:
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
	case errors.Is(err, reports.ErrPersist):
		h.logger.Error("update status", zap.String("id", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status changed but could not be saved"})
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"id": id.String(), "status": req.Status})
	}
}

// ── Categories ───────────────────────────────────────────────────────────────

// ListCategories handles GET /categories.
func (h *Handler) ListCategories(c *gin.Context) {
	cats := h.categories.ListActive(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"categories": cats, "count": len(cats)})
}

// SearchCategories handles GET /categories/search?q=.
func (h *Handler) SearchCategories(c *gin.Context) {
	cats := h.categories.Search(c.Request.Context(), c.Query("q"))
	c.JSON(http.StatusOK, gin.H{"categories": cats, "count": len(cats)})
}

// GetCategory handles GET /categories/:id.
func (h *Handler) GetCategory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return
	}
	cat, tier, err := h.categories.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "category not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": cat, "tier": tier})
}

// ── Validation ───────────────────────────────────────────────────────────────

func (h *Handler) verdict(c *gin.Context) (validation.Verdict, bool) {
	var d model.Draft
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})
		return validation.Verdict{}, false
	}
	var cat *model.Category
	if d.CategoryID != 0 {
		if found, _, err := h.categories.Lookup(c.Request.Context(), d.CategoryID); err == nil {
			cat = &found
		}
	}
	return h.validator.Validate(d, cat), true
}

// Validate handles POST /validate.
func (h *Handler) Validate(c *gin.Context) {
	v, ok := h.verdict(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"verdict":         v,
		"recommendations": h.validator.Recommendations(v),
	})
}

// ValidateDecision handles POST /validate/decision.
func (h *Handler) ValidateDecision(c *gin.Context) {
	v, ok := h.verdict(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"verdict":  v,
		"decision": h.validator.Decide(v),
	})
}

// ── Sync ─────────────────────────────────────────────────────────────────────

// Sync handles POST /sync: push pending reports, refresh the owned list and
// refresh categories.
func (h *Handler) Sync(c *gin.Context) {
	ctx := c.Request.Context()

	pushed, err := h.reports.SyncPending(ctx)
	RecordSync(pushed.Pushed, pushed.Failed)
	resp := gin.H{"pushed": pushed.Pushed, "failed": pushed.Failed}
	if err != nil {
		h.logger.Warn("sync pending", zap.Error(err))
		resp["sync_error"] = err.Error()
	}

	if n, err := h.reports.RefreshMine(ctx); err != nil {
		resp["refresh_error"] = err.Error()
	} else {
		resp["mine"] = n
	}
	resp["categories_refreshed"] = h.categories.ForceRefresh(ctx)

	resp["pending"] = len(h.reports.Pending())
	c.JSON(http.StatusOK, resp)
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(c *gin.Context) {
	resp := gin.H{"status": "ok", "pending": len(h.reports.Pending())}
	if h.monitor != nil {
		resp["backend"] = h.monitor.Status()
	}
	c.JSON(http.StatusOK, resp)
}

// ── helpers ──────────────────────────────────────────────────────────────────

func sessionFrom(c *gin.Context) (*session.Session, error) {
	auth := c.GetHeader("Authorization")
	if auth == "" {
		return session.Anonymous, nil
	}
	raw, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return nil, errors.New("authorization header must use the Bearer scheme")
	}
	s, err := session.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if s.Expired() {
		return nil, session.ErrExpired
	}
	return s, nil
}

// parseFilter reads the report filter from the query string.
func parseFilter(c *gin.Context) (*model.Filter, error) {
	f := &model.Filter{
		Status:   model.ReportStatus(c.Query("status")),
		Priority: model.Priority(c.Query("priority")),
		Text:     strings.TrimSpace(c.Query("q")),
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, errors.New("unknown status")
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return nil, errors.New("unknown priority")
	}
	if s := c.Query("category_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, errors.New("category_id must be an integer")
		}
		f.CategoryID = &id
	}
	var err error
	if f.DateFrom, err = parseDate(c.Query("date_from"), false); err != nil {
		return nil, err
	}
	if f.DateTo, err = parseDate(c.Query("date_to"), true); err != nil {
		return nil, err
	}

	if r := c.Query("radius_km"); r != "" {
		radius, err1 := strconv.ParseFloat(r, 64)
		lat, err2 := strconv.ParseFloat(c.Query("lat"), 64)
		lng, err3 := strconv.ParseFloat(c.Query("lng"), 64)
		if err1 != nil || err2 != nil || err3 != nil || radius <= 0 {
			return nil, errors.New("radius_km, lat and lng must be numbers and radius_km positive")
		}
		f.Near = &model.GeoRadius{Center: model.GeoPoint{Latitude: lat, Longitude: lng}, RadiusKm: radius}
	}
	return f, nil
}

// parseDate accepts RFC 3339 timestamps and plain dates. A plain end date
// covers the whole day.
func parseDate(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, errors.New("dates must be RFC 3339 or YYYY-MM-DD")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
