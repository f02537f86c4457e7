// Package category provides the category directory: a remote-backed lookup
// table of report categories with a durable cache and a built-in default set.
package category

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmerrifield20/civicsync/internal/cachestore"
	"github.com/jmerrifield20/civicsync/internal/fallback"
	"github.com/jmerrifield20/civicsync/internal/model"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// CacheKey is the cache entry holding the last synced category set.
const CacheKey = "categories"

// DefaultTTL is how long a synced category set is considered fresh.
const DefaultTTL = time.Hour

// ErrNotFound is returned by Get when no tier knows the category.
var ErrNotFound = errors.New("category not found")

//go:embed defaults.yaml
var defaultsYAML []byte

var builtin = func() []model.Category {
	var cats []model.Category
	if err := yaml.Unmarshal(defaultsYAML, &cats); err != nil {
		panic(fmt.Sprintf("category: parse embedded defaults: %v", err))
	}
	if len(cats) == 0 {
		panic("category: embedded defaults are empty")
	}
	return cats
}()

// Defaults returns a copy of the built-in category set.
func Defaults() []model.Category {
	out := make([]model.Category, len(builtin))
	for i, c := range builtin {
		out[i] = c.Clone()
	}
	return out
}

// Remote is the subset of the backend API the directory depends on.
type Remote interface {
	ListCategories(ctx context.Context) ([]model.Category, error)
	GetCategory(ctx context.Context, id int64) (*model.Category, error)
}

// Directory serves categories from the freshest available tier.
type Directory struct {
	remote  Remote
	cache   *cachestore.Cache
	logger  *zap.Logger
	ttl     time.Duration
	timeout time.Duration

	mu     sync.RWMutex
	loaded []model.Category

	onTier fallback.Recorder
}

// Option configures a Directory.
type Option func(*Directory)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(d *Directory) { d.ttl = ttl }
}

// WithTimeout bounds each remote call.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Directory) { d.timeout = timeout }
}

// NewDirectory creates a Directory. Call Open before serving requests.
func NewDirectory(remote Remote, cache *cachestore.Cache, logger *zap.Logger, opts ...Option) *Directory {
	d := &Directory{
		remote:  remote,
		cache:   cache,
		logger:  logger,
		ttl:     DefaultTTL,
		timeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// SetTierRecorder configures the callback told which tier served each lookup.
func (d *Directory) SetTierRecorder(fn fallback.Recorder) {
	d.onTier = fn
}

// Open loads the cached category set and, when it is missing or older than
// the TTL, attempts a sync. A failed sync is not an error: the directory then
// serves the cached set or the built-in defaults.
func (d *Directory) Open(ctx context.Context) error {
	d.loadCache(ctx)
	if d.Stale(ctx) {
		d.Sync(ctx)
	}
	return nil
}

// Close releases nothing today; it exists so the directory can be managed
// alongside the other services.
func (d *Directory) Close() error { return nil }

// Stale reports whether the cached set is missing or older than the TTL.
func (d *Directory) Stale(ctx context.Context) bool {
	d.mu.RLock()
	empty := len(d.loaded) == 0
	d.mu.RUnlock()
	return empty || d.cache.IsStale(ctx, CacheKey, d.ttl)
}

func (d *Directory) loadCache(ctx context.Context) {
	var cats []model.Category
	ok, err := d.cache.Get(ctx, CacheKey, &cats)
	if err != nil {
		d.logger.Warn("category cache unreadable, continuing without it", zap.Error(err))
		return
	}
	if !ok || len(cats) == 0 {
		return
	}
	d.mu.Lock()
	d.loaded = cats
	d.mu.Unlock()
}

// Sync fetches every category from the backend, enriches display icons and
// replaces the cached set wholesale. It reports whether the sync succeeded;
// on failure the current set is left untouched.
func (d *Directory) Sync(ctx context.Context) bool {
	rctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cats, err := d.remote.ListCategories(rctx)
	if err != nil {
		d.logger.Info("category sync failed, keeping current set", zap.Error(err))
		return false
	}
	if len(cats) == 0 {
		d.logger.Info("category sync returned no categories, keeping current set")
		return false
	}

	enrich(cats)

	if err := d.cache.PutFresh(ctx, CacheKey, cats); err != nil {
		d.logger.Warn("persist synced categories", zap.Error(err))
	}

	d.mu.Lock()
	d.loaded = cats
	d.mu.Unlock()

	d.logger.Debug("categories synced", zap.Int("count", len(cats)))
	return true
}

// ForceRefresh discards the cached set and syncs again.
func (d *Directory) ForceRefresh(ctx context.Context) bool {
	if err := d.cache.Clear(ctx, CacheKey); err != nil {
		d.logger.Warn("clear category cache", zap.Error(err))
	}
	d.mu.Lock()
	d.loaded = nil
	d.mu.Unlock()
	return d.Sync(ctx)
}

// current returns the in-memory set, lazily loading it from the cache and
// then the backend, and finally falling back to the built-in defaults.
func (d *Directory) current(ctx context.Context) ([]model.Category, fallback.Tier) {
	d.mu.RLock()
	cats := d.loaded
	d.mu.RUnlock()
	if len(cats) > 0 {
		return cats, fallback.TierCache
	}

	d.loadCache(ctx)
	d.mu.RLock()
	cats = d.loaded
	d.mu.RUnlock()
	if len(cats) > 0 {
		return cats, fallback.TierCache
	}

	if d.Sync(ctx) {
		d.mu.RLock()
		cats = d.loaded
		d.mu.RUnlock()
		return cats, fallback.TierRemote
	}
	return builtin, fallback.TierDefaults
}

// ListActive returns the active categories of the freshest available set,
// ordered by display order.
func (d *Directory) ListActive(ctx context.Context) []model.Category {
	cats, tier := d.current(ctx)
	out := active(cats)
	if len(out) == 0 {
		tier, out = fallback.TierDefaults, active(builtin)
	}
	d.record("list_categories", tier)
	return out
}

// Get looks a category up on the backend first and falls back to the cached
// set and then the built-in defaults.
func (d *Directory) Get(ctx context.Context, id int64) (model.Category, fallback.Tier, error) {
	res, err := fallback.Resolve(ctx, d.logger, "get_category",
		fallback.Remote(func(ctx context.Context) (model.Category, error) {
			rctx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()
			c, err := d.remote.GetCategory(rctx, id)
			if err != nil {
				return model.Category{}, err
			}
			if c == nil {
				return model.Category{}, fallback.ErrEmpty
			}
			one := []model.Category{c.Clone()}
			enrich(one)
			return one[0], nil
		}),
		fallback.Cache(func(ctx context.Context) (model.Category, error) {
			d.mu.RLock()
			cats := d.loaded
			d.mu.RUnlock()
			if len(cats) == 0 {
				d.loadCache(ctx)
				d.mu.RLock()
				cats = d.loaded
				d.mu.RUnlock()
			}
			return find(cats, id)
		}),
		fallback.Defaults(func(context.Context) (model.Category, error) {
			return find(builtin, id)
		}),
	)
	if err != nil {
		return model.Category{}, "", fmt.Errorf("%w: %d: %w", ErrNotFound, id, err)
	}
	d.record("get_category", res.Tier)
	return res.Value, res.Tier, nil
}

// Lookup resolves id from the local set first and only asks the backend
// when the id is unknown locally.
func (d *Directory) Lookup(ctx context.Context, id int64) (model.Category, fallback.Tier, error) {
	d.mu.RLock()
	cats := d.loaded
	d.mu.RUnlock()
	if len(cats) == 0 {
		d.loadCache(ctx)
		d.mu.RLock()
		cats = d.loaded
		d.mu.RUnlock()
	}
	if c, err := find(cats, id); err == nil {
		d.record("get_category", fallback.TierCache)
		return c, fallback.TierCache, nil
	}
	return d.Get(ctx, id)
}

// Search returns active categories whose name or description contains term,
// case-insensitively. It never calls the backend.
func (d *Directory) Search(ctx context.Context, term string) []model.Category {
	d.mu.RLock()
	cats := d.loaded
	d.mu.RUnlock()
	if len(cats) == 0 {
		cats = builtin
	}

	needle := strings.ToLower(strings.TrimSpace(term))
	var out []model.Category
	for _, c := range active(cats) {
		if needle == "" ||
			strings.Contains(strings.ToLower(c.Name), needle) ||
			strings.Contains(strings.ToLower(c.Description), needle) {
			out = append(out, c)
		}
	}
	return out
}

func (d *Directory) record(op string, tier fallback.Tier) {
	if d.onTier != nil {
		d.onTier(op, tier)
	}
}

func find(cats []model.Category, id int64) (model.Category, error) {
	for _, c := range cats {
		if c.ID == id {
			return c.Clone(), nil
		}
	}
	return model.Category{}, fallback.ErrEmpty
}

func active(cats []model.Category) []model.Category {
	out := make([]model.Category, 0, len(cats))
	for _, c := range cats {
		if c.Active {
			out = append(out, c.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DisplayOrder < out[j].DisplayOrder
	})
	return out
}
