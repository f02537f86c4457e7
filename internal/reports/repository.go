// Package reports owns civic report identity and storage. Writes go to the
// backend first and fall back to a device-local copy with a locally
// allocated id; reads prefer the backend and fall back to the cache.
package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/civicsync/internal/cachestore"
	"github.com/jmerrifield20/civicsync/internal/fallback"
	"github.com/jmerrifield20/civicsync/internal/model"
	"github.com/jmerrifield20/civicsync/internal/validation"
	"github.com/jmerrifield20/civicsync/pkg/imageref"
	"go.uber.org/zap"
)

// Cache keys.
const (
	KeyAllReports = "reports:all"
	KeyMyReports  = "reports:mine"
	KeyNextID     = "reports:next_local_id"
)

// ErrPersist is returned when the report collections could not be written
// to the cache.
var ErrPersist = errors.New("persist reports")

// Remote is the subset of the backend API the repository depends on.
type Remote interface {
	CreateReport(ctx context.Context, clientRef uuid.UUID, d model.Draft) (model.Report, error)
	ListReports(ctx context.Context, f *model.Filter) ([]model.Report, error)
	ListMapReports(ctx context.Context, f *model.Filter) ([]model.Report, error)
	ListMyReports(ctx context.Context) ([]model.Report, error)
}

// CategoryLookup resolves the category a draft refers to, preferring the
// local set over the backend.
type CategoryLookup interface {
	Lookup(ctx context.Context, id int64) (model.Category, fallback.Tier, error)
}

// Validator scores drafts and decides whether they may be submitted.
type Validator interface {
	Validate(d model.Draft, cat *model.Category) validation.Verdict
	Decide(v validation.Verdict) validation.Decision
}

// CreateResult is the outcome of Create. It is plain data: a rejected or
// failed creation is reported here, not as a Go error.
type CreateResult struct {
	Success  bool                `json:"success"`
	Report   *model.Report       `json:"report,omitempty"`
	Error    string              `json:"error,omitempty"`
	Reasons  []string            `json:"reasons,omitempty"`
	Warnings []string            `json:"warnings,omitempty"`
	Tier     fallback.Tier       `json:"tier,omitempty"`
	Verdict  *validation.Verdict `json:"verdict,omitempty"`
}

// Listing is a list result together with the tier that served it.
type Listing struct {
	Reports []model.Report `json:"reports"`
	Tier    fallback.Tier  `json:"tier"`
}

const (
	msgPendingSync  = "saved on this device; it will be sent when the connection returns"
	msgCacheFailed  = "saved on the server but could not be cached on this device"
	msgInternal     = "internal error while creating the report"
	msgLocalFailure = "could not save the report on this device"
)

// Repository is the report store. It is safe for concurrent use.
type Repository struct {
	remote     Remote
	cache      *cachestore.Cache
	categories CategoryLookup
	validator  Validator
	logger     *zap.Logger

	timeout  time.Duration
	attempts int
	now      func() time.Time

	// mu guards all, mine and nextID.
	mu     sync.Mutex
	all    []model.Report
	mine   []model.Report
	nextID int64

	// persistMu serializes cache writes so a newer snapshot is never
	// overwritten by an older one.
	persistMu sync.Mutex

	onTier fallback.Recorder
}

// Option configures a Repository.
type Option func(*Repository)

// WithTimeout bounds each remote call. Expiry counts as a remote failure.
func WithTimeout(d time.Duration) Option {
	return func(r *Repository) { r.timeout = d }
}

// WithPersistAttempts sets how many times a cache write is tried.
func WithPersistAttempts(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.attempts = n
		}
	}
}

// WithClock overrides the time source for timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// NewRepository creates a Repository. Call Open before use.
func NewRepository(remote Remote, cache *cachestore.Cache, categories CategoryLookup, validator Validator, logger *zap.Logger, opts ...Option) *Repository {
	r := &Repository{
		remote:     remote,
		cache:      cache,
		categories: categories,
		validator:  validator,
		logger:     logger,
		timeout:    10 * time.Second,
		attempts:   3,
		now:        time.Now,
		nextID:     1,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SetTierRecorder configures the callback told which tier served each call.
func (r *Repository) SetTierRecorder(fn fallback.Recorder) {
	r.onTier = fn
}

// Open loads both collections from the cache and seeds the id counter.
// An unreadable cache is logged and treated as empty.
func (r *Repository) Open(ctx context.Context) error {
	var all, mine []model.Report
	if _, err := r.cache.Get(ctx, KeyAllReports, &all); err != nil {
		r.logger.Warn("report cache unreadable, starting empty", zap.String("key", KeyAllReports), zap.Error(err))
		all = nil
	}
	if _, err := r.cache.Get(ctx, KeyMyReports, &mine); err != nil {
		r.logger.Warn("report cache unreadable, starting empty", zap.String("key", KeyMyReports), zap.Error(err))
		mine = nil
	}
	var stored int64
	if _, err := r.cache.Get(ctx, KeyNextID, &stored); err != nil {
		r.logger.Warn("id counter unreadable", zap.Error(err))
	}

	next := int64(1)
	for _, list := range [][]model.Report{all, mine} {
		for _, rep := range list {
			if rep.ID.Value >= next {
				next = rep.ID.Value + 1
			}
		}
	}
	if stored > next {
		next = stored
	}

	r.mu.Lock()
	r.all, r.mine, r.nextID = all, mine, next
	r.mu.Unlock()

	r.logger.Info("report repository opened",
		zap.Int("all", len(all)),
		zap.Int("mine", len(mine)),
		zap.Int64("next_local_id", next),
	)
	return nil
}

// Close flushes both collections to the cache.
func (r *Repository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.persist(ctx)
}

// Create validates d and stores it, on the backend when reachable and
// locally otherwise. It never panics and never returns a Go error: every
// outcome is described by the result.
func (r *Repository) Create(ctx context.Context, d model.Draft) (res CreateResult) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic while creating report", zap.Any("panic", p), zap.Stack("stack"))
			res = CreateResult{Error: msgInternal}
		}
	}()

	if missing := missingFields(&d); len(missing) > 0 {
		return CreateResult{Error: "missing required fields", Reasons: missing}
	}

	if err := normalizeImages(&d); err != nil {
		return CreateResult{Error: "invalid image reference", Reasons: []string{err.Error()}}
	}

	var cat *model.Category
	if c, _, err := r.categories.Lookup(ctx, d.CategoryID); err == nil {
		cat = &c
	}

	verdict := r.validator.Validate(d, cat)
	decision := r.validator.Decide(verdict)
	if !decision.CanSubmit {
		return CreateResult{
			Error:    "report did not pass validation",
			Reasons:  decision.RejectionReasons,
			Warnings: decision.Recommendations,
			Verdict:  &verdict,
		}
	}

	clientRef := uuid.New()
	rep, err := r.createRemote(ctx, clientRef, d, cat)
	if err == nil {
		r.record("create_report", fallback.TierRemote)
		res = CreateResult{Success: true, Report: &rep, Tier: fallback.TierRemote, Verdict: &verdict}
		if err := r.persist(ctx); err != nil {
			r.logger.Warn("remote report not cached", zap.String("id", rep.ID.String()), zap.Error(err))
			res.Warnings = append(res.Warnings, msgCacheFailed)
		}
		return res
	}
	r.logger.Info("backend unavailable, creating report locally", zap.Error(err))

	rep, err = r.createLocal(ctx, clientRef, d, cat)
	if err != nil {
		r.logger.Error("local report creation failed", zap.Error(err))
		return CreateResult{Error: msgLocalFailure, Verdict: &verdict}
	}
	r.record("create_report", fallback.TierCache)
	return CreateResult{
		Success:  true,
		Report:   &rep,
		Warnings: []string{msgPendingSync},
		Tier:     fallback.TierCache,
		Verdict:  &verdict,
	}
}

func (r *Repository) createRemote(ctx context.Context, clientRef uuid.UUID, d model.Draft, cat *model.Category) (model.Report, error) {
	rctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rep, err := r.remote.CreateReport(rctx, clientRef, d)
	if err != nil {
		return model.Report{}, err
	}
	if rep.ID.IsZero() {
		return model.Report{}, fmt.Errorf("backend returned a report without id")
	}
	rep.ID.Kind = model.IDRemote
	merged := mergeDraft(rep, clientRef, &d, cat, r.now())

	r.mu.Lock()
	r.all = upsert(r.all, merged)
	r.mine = upsert(r.mine, merged)
	if merged.ID.Value >= r.nextID {
		r.nextID = merged.ID.Value + 1
	}
	r.mu.Unlock()
	return merged.Clone(), nil
}

func (r *Repository) createLocal(ctx context.Context, clientRef uuid.UUID, d model.Draft, cat *model.Category) (model.Report, error) {
	now := r.now().UTC()

	r.mu.Lock()
	id := model.LocalID(r.nextID)
	r.nextID++
	rep := model.Report{
		ID:          id,
		ClientRef:   clientRef,
		Title:       strings.TrimSpace(d.Title),
		Description: strings.TrimSpace(d.Description),
		CategoryID:  d.CategoryID,
		Location:    *d.Location,
		Address:     d.Address,
		Images:      d.AllPhotos(),
		Status:      model.StatusNew,
		Priority:    effectivePriority(&d, cat),
		CreatedAt:   now,
		UpdatedAt:   now,
		Owner:       d.Owner,
	}
	if cat != nil {
		rep.Category = cat.Snapshot()
	}
	r.all = append(r.all, rep)
	r.mine = append(r.mine, rep)
	r.mu.Unlock()

	if err := r.persist(ctx); err != nil {
		// The id stays consumed; only the entries are rolled back.
		r.mu.Lock()
		r.all = removeID(r.all, id)
		r.mine = removeID(r.mine, id)
		r.mu.Unlock()
		return model.Report{}, err
	}
	return rep.Clone(), nil
}

// Get looks a report up in the local collections only.
func (r *Repository) Get(id model.ReportID) (model.Report, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, list := range [][]model.Report{r.all, r.mine} {
		for i := range list {
			if list[i].ID == id {
				return list[i].Clone(), true
			}
		}
	}
	return model.Report{}, false
}

// ListMine returns the owned reports matching f, newest first.
func (r *Repository) ListMine(f *model.Filter) []model.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return apply(r.mine, f, nil)
}

// ListAll returns the backend's report feed when it is reachable and
// non-empty, and the local collection otherwise.
func (r *Repository) ListAll(ctx context.Context, f *model.Filter) (Listing, error) {
	res, err := fallback.Resolve(ctx, r.logger, "list_reports",
		fallback.Remote(func(ctx context.Context) ([]model.Report, error) {
			rctx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			reps, err := r.remote.ListReports(rctx, f)
			if err != nil {
				return nil, err
			}
			if len(reps) == 0 {
				return nil, fallback.ErrEmpty
			}
			r.absorb(ctx, reps)
			return nearOnly(reps, f), nil
		}),
		fallback.Cache(func(context.Context) ([]model.Report, error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			return apply(r.all, f, nil), nil
		}),
	)
	if err != nil {
		return Listing{}, err
	}
	r.record("list_reports", res.Tier)
	return Listing{Reports: res.Value, Tier: res.Tier}, nil
}

// ListForMap returns reports an administrator validated. Offline, only
// local reports with the validated flag set are shown.
func (r *Repository) ListForMap(ctx context.Context, f *model.Filter) (Listing, error) {
	res, err := fallback.Resolve(ctx, r.logger, "list_map_reports",
		fallback.Remote(func(ctx context.Context) ([]model.Report, error) {
			rctx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			reps, err := r.remote.ListMapReports(rctx, f)
			if err != nil {
				return nil, err
			}
			if len(reps) == 0 {
				return nil, fallback.ErrEmpty
			}
			r.absorb(ctx, reps)
			return nearOnly(reps, f), nil
		}),
		fallback.Cache(func(context.Context) ([]model.Report, error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			return apply(r.all, f, func(rep *model.Report) bool { return rep.Validated }), nil
		}),
	)
	if err != nil {
		return Listing{}, err
	}
	r.record("list_map_reports", res.Tier)
	return Listing{Reports: res.Value, Tier: res.Tier}, nil
}

// UpdateStatus changes the status of a local copy and reports whether the
// report was found. The backend is not contacted.
func (r *Repository) UpdateStatus(ctx context.Context, id model.ReportID, status model.ReportStatus) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("invalid status %q", status)
	}

	now := r.now().UTC()
	found := false
	r.mu.Lock()
	for _, list := range [][]model.Report{r.all, r.mine} {
		for i := range list {
			if list[i].ID == id {
				list[i].Status = status
				list[i].UpdatedAt = now
				found = true
			}
		}
	}
	r.mu.Unlock()

	if !found {
		return false, nil
	}
	if err := r.persist(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// Pending returns the owned reports still waiting for backend acknowledgment.
func (r *Repository) Pending() []model.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return apply(r.mine, nil, func(rep *model.Report) bool { return rep.ID.Pending() })
}

// absorb merges remote reports into the all-reports collection so the cache
// tier can serve them later, and keeps the id counter above every id held.
// Failures to persist are logged only.
func (r *Repository) absorb(ctx context.Context, reps []model.Report) {
	r.mu.Lock()
	for _, rep := range reps {
		r.all = upsert(r.all, rep)
		if rep.ID.Value >= r.nextID {
			r.nextID = rep.ID.Value + 1
		}
	}
	r.mu.Unlock()
	if err := r.persist(ctx); err != nil {
		r.logger.Warn("remote reports not cached", zap.Error(err))
	}
}

func (r *Repository) record(op string, tier fallback.Tier) {
	if r.onTier != nil {
		r.onTier(op, tier)
	}
}

// ── helpers ──────────────────────────────────────────────────────────────────

func missingFields(d *model.Draft) []string {
	var out []string
	if strings.TrimSpace(d.Title) == "" {
		out = append(out, "title is required")
	}
	if strings.TrimSpace(d.Description) == "" {
		out = append(out, "description is required")
	}
	if d.Location == nil {
		out = append(out, "location is required")
	}
	return out
}

func normalizeImages(d *model.Draft) error {
	if d.Image != "" {
		norm, err := imageref.Normalize(d.Image)
		if err != nil {
			return err
		}
		d.Image = norm
	}
	d.Photos = append([]string(nil), d.Photos...)
	for i, p := range d.Photos {
		norm, err := imageref.Normalize(p)
		if err != nil {
			return fmt.Errorf("photo %d: %w", i+1, err)
		}
		d.Photos[i] = norm
	}
	return nil
}

func effectivePriority(d *model.Draft, cat *model.Category) model.Priority {
	if d.Priority.Valid() {
		return d.Priority
	}
	if cat != nil && cat.Priority.Valid() {
		return cat.Priority
	}
	return model.PriorityMedium
}

// mergeDraft fills the fields the backend left empty from the draft.
func mergeDraft(rep model.Report, clientRef uuid.UUID, d *model.Draft, cat *model.Category, now time.Time) model.Report {
	rep.ClientRef = clientRef
	if rep.Title == "" {
		rep.Title = strings.TrimSpace(d.Title)
	}
	if rep.Description == "" {
		rep.Description = strings.TrimSpace(d.Description)
	}
	if rep.CategoryID == 0 {
		rep.CategoryID = d.CategoryID
	}
	if rep.Location == (model.GeoPoint{}) && d.Location != nil {
		rep.Location = *d.Location
	}
	if rep.Address == "" {
		rep.Address = d.Address
	}
	if len(rep.Images) == 0 {
		rep.Images = d.AllPhotos()
	}
	if !rep.Status.Valid() {
		rep.Status = model.StatusNew
	}
	if !rep.Priority.Valid() {
		rep.Priority = effectivePriority(d, cat)
	}
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = now.UTC()
	}
	if rep.UpdatedAt.IsZero() {
		rep.UpdatedAt = rep.CreatedAt
	}
	if rep.Owner == model.AnonymousOwner {
		rep.Owner = d.Owner
	}
	if rep.Category == nil && cat != nil {
		rep.Category = cat.Snapshot()
	}
	return rep
}

// upsert replaces the entry with the same id or client reference, or
// appends rep when there is none. Any further duplicates are dropped.
func upsert(list []model.Report, rep model.Report) []model.Report {
	out := list[:0]
	replaced := false
	for _, cur := range list {
		same := cur.ID == rep.ID || (rep.ClientRef != uuid.Nil && cur.ClientRef == rep.ClientRef)
		if !same {
			out = append(out, cur)
			continue
		}
		if !replaced {
			out = append(out, rep)
			replaced = true
		}
	}
	if !replaced {
		out = append(out, rep)
	}
	return out
}

func removeID(list []model.Report, id model.ReportID) []model.Report {
	out := list[:0]
	for _, cur := range list {
		if cur.ID != id {
			out = append(out, cur)
		}
	}
	return out
}
