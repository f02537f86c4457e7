package reports_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/civicsync/internal/cachestore"
	"github.com/jmerrifield20/civicsync/internal/fallback"
	"github.com/jmerrifield20/civicsync/internal/model"
	"github.com/jmerrifield20/civicsync/internal/reports"
	"github.com/jmerrifield20/civicsync/internal/validation"
	"go.uber.org/zap"
)

var ctx = context.Background()

var errOffline = errors.New("dial tcp: connection refused")

// ── Stubs ────────────────────────────────────────────────────────────────────

type stubRemote struct {
	mu      sync.Mutex
	offline bool
	hang    bool
	nextID  int64
	refs    []uuid.UUID
	list    []model.Report
	mapList []model.Report
	mine    []model.Report
}

func (s *stubRemote) setOffline(v bool) {
	s.mu.Lock()
	s.offline = v
	s.mu.Unlock()
}

// stall blocks until ctx expires while hang is set.
func (s *stubRemote) stall(ctx context.Context) error {
	s.mu.Lock()
	hang := s.hang
	s.mu.Unlock()
	if !hang {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *stubRemote) CreateReport(ctx context.Context, ref uuid.UUID, d model.Draft) (model.Report, error) {
	if err := s.stall(ctx); err != nil {
		return model.Report{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return model.Report{}, errOffline
	}
	s.nextID++
	s.refs = append(s.refs, ref)
	return model.Report{
		ID:        model.RemoteID(s.nextID),
		ClientRef: ref,
		Title:     d.Title,
		Status:    model.StatusNew,
		Zone:      &model.ZoneSnapshot{ID: 2, Name: "Teusaquillo"},
	}, nil
}

func (s *stubRemote) ListReports(ctx context.Context, _ *model.Filter) ([]model.Report, error) {
	if err := s.stall(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return nil, errOffline
	}
	return slices.Clone(s.list), nil
}

func (s *stubRemote) ListMapReports(context.Context, *model.Filter) ([]model.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return nil, errOffline
	}
	return slices.Clone(s.mapList), nil
}

func (s *stubRemote) ListMyReports(context.Context) ([]model.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return nil, errOffline
	}
	return slices.Clone(s.mine), nil
}

type stubCategories struct{}

var otros = model.Category{ID: 6, Name: "Otros", Icon: "📍", Active: true, Priority: model.PriorityLow}

func (stubCategories) Lookup(_ context.Context, id int64) (model.Category, fallback.Tier, error) {
	if id == otros.ID {
		return otros, fallback.TierDefaults, nil
	}
	return model.Category{}, "", errors.New("unknown category")
}

// flakyBackend fails every write while broken is set.
type flakyBackend struct {
	*cachestore.MemoryBackend
	broken atomic.Bool
}

func (f *flakyBackend) Set(ctx context.Context, entries ...cachestore.Entry) error {
	if f.broken.Load() {
		return errors.New("no space left on device")
	}
	return f.MemoryBackend.Set(ctx, entries...)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Minute)
	return c.t
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func draft() model.Draft {
	return model.Draft{
		Title:       "Hueco en la vía",
		Description: "Hay un hueco muy profundo",
		CategoryID:  6,
		Location:    &model.GeoPoint{Latitude: 4.6, Longitude: -74.1},
	}
}

func newRepo(t *testing.T, remote *stubRemote, backend cachestore.Backend) *reports.Repository {
	t.Helper()
	if backend == nil {
		backend = cachestore.NewMemoryBackend()
	}
	clock := &fakeClock{t: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	r := reports.NewRepository(remote, cachestore.New(backend), stubCategories{}, validation.NewEngine(), zap.NewNop(),
		reports.WithClock(clock.Now),
		reports.WithTimeout(time.Second),
		reports.WithPersistAttempts(2),
	)
	if err := r.Open(ctx); err != nil {
		t.Fatal(err)
	}
	return r
}

// ── Create ───────────────────────────────────────────────────────────────────

func TestCreate_remote(t *testing.T) {
	remote := &stubRemote{nextID: 899}
	r := newRepo(t, remote, nil)

	res := r.Create(ctx, draft())
	if !res.Success {
		t.Fatalf("create failed: %s %v", res.Error, res.Reasons)
	}
	if res.Tier != fallback.TierRemote {
		t.Errorf("Tier: got %s, want remote", res.Tier)
	}
	if res.Report.ID != model.RemoteID(900) {
		t.Errorf("ID: got %s, want 900", res.Report.ID)
	}
	if res.Report.Description != "Hay un hueco muy profundo" || res.Report.Category == nil || res.Report.Zone == nil {
		t.Errorf("backend fields not merged with draft: %+v", res.Report)
	}
	if res.Report.ClientRef != remote.refs[0] {
		t.Error("client reference not kept")
	}
	if _, ok := r.Get(model.RemoteID(900)); !ok {
		t.Error("remote report not retrievable")
	}
}

func TestCreate_hungRemoteTimesOutToLocal(t *testing.T) {
	remote := &stubRemote{hang: true}
	r := reports.NewRepository(remote, cachestore.New(cachestore.NewMemoryBackend()), stubCategories{}, validation.NewEngine(), zap.NewNop(),
		reports.WithTimeout(50*time.Millisecond),
	)
	if err := r.Open(ctx); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	res := r.Create(ctx, draft())
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("create took %s, remote timeout not applied", elapsed)
	}
	if !res.Success || res.Tier != fallback.TierCache || res.Report.ID != model.LocalID(1) {
		t.Fatalf("got %+v, want local-1 from the cache tier", res)
	}

	got, err := r.ListAll(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Tier != fallback.TierCache || len(got.Reports) != 1 {
		t.Errorf("ListAll: got %d reports from %s, want 1 from cache", len(got.Reports), got.Tier)
	}
}

func TestCreate_localIDsSkipAbsorbedRemoteIDs(t *testing.T) {
	remoteReports := func() []model.Report {
		var out []model.Report
		for i := int64(1); i <= 3; i++ {
			out = append(out, model.Report{
				ID: model.RemoteID(i), ClientRef: uuid.New(), Title: fmt.Sprintf("Reporte %d", i),
				Status: model.StatusNew, Validated: true, CreatedAt: time.Now(),
			})
		}
		return out
	}

	tests := []struct {
		name string
		list func(r *reports.Repository) (reports.Listing, error)
	}{
		{"list all", func(r *reports.Repository) (reports.Listing, error) { return r.ListAll(ctx, nil) }},
		{"map", func(r *reports.Repository) (reports.Listing, error) { return r.ListForMap(ctx, nil) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			remote := &stubRemote{list: remoteReports(), mapList: remoteReports()}
			r := newRepo(t, remote, nil)

			if got, err := tc.list(r); err != nil || got.Tier != fallback.TierRemote {
				t.Fatalf("listing: %v %+v", err, got)
			}

			remote.setOffline(true)
			res := r.Create(ctx, draft())
			if !res.Success {
				t.Fatalf("create failed: %s", res.Error)
			}
			if res.Report.ID.Value <= 3 {
				t.Errorf("offline id %s collides with an absorbed remote id", res.Report.ID)
			}
		})
	}
}

func TestCreate_offlineAllocatesIncreasingLocalIDs(t *testing.T) {
	r := newRepo(t, &stubRemote{offline: true}, nil)

	for want := int64(1); want <= 3; want++ {
		res := r.Create(ctx, draft())
		if !res.Success {
			t.Fatalf("create %d failed: %s", want, res.Error)
		}
		if res.Tier != fallback.TierCache {
			t.Errorf("Tier: got %s, want cache", res.Tier)
		}
		if res.Report.ID != model.LocalID(want) {
			t.Errorf("ID: got %s, want local-%d", res.Report.ID, want)
		}
		if res.Report.Status != model.StatusNew || res.Report.Category == nil {
			t.Errorf("local report incomplete: %+v", res.Report)
		}
		if len(res.Warnings) == 0 {
			t.Error("expected pending-sync warning")
		}

		got, ok := r.Get(res.Report.ID)
		if !ok || got.Title != "Hueco en la vía" {
			t.Errorf("round trip through Get failed: ok=%v %+v", ok, got)
		}
	}
}

func TestCreate_rejectionsConsumeNoID(t *testing.T) {
	r := newRepo(t, &stubRemote{offline: true}, nil)

	noTitle := draft()
	noTitle.Title = ""
	if res := r.Create(ctx, noTitle); res.Success || !slices.Contains(res.Reasons, "title is required") {
		t.Errorf("missing title: %+v", res)
	}

	noLocation := draft()
	noLocation.Location = nil
	if res := r.Create(ctx, noLocation); res.Success || !slices.Contains(res.Reasons, "location is required") {
		t.Errorf("missing location: %+v", res)
	}

	badImage := draft()
	badImage.Image = "ftp://example.org/a.jpg"
	if res := r.Create(ctx, badImage); res.Success || res.Error != "invalid image reference" {
		t.Errorf("bad image: %+v", res)
	}

	shouting := draft()
	shouting.Title = "AAAAAAAAAA AAAA"
	shouting.Description = "AAAAAAAAAAAAAAAAAAAA"
	res := r.Create(ctx, shouting)
	if res.Success || res.Verdict == nil || len(res.Reasons) == 0 {
		t.Errorf("low score should be refused: %+v", res)
	}

	if res := r.Create(ctx, draft()); res.Report == nil || res.Report.ID != model.LocalID(1) {
		t.Errorf("rejected drafts consumed ids: %+v", res.Report)
	}
}

func TestCreate_imageNormalised(t *testing.T) {
	r := newRepo(t, &stubRemote{offline: true}, nil)
	d := draft()
	d.Image = " /sdcard/DCIM/hueco.jpg"
	res := r.Create(ctx, d)
	if !res.Success {
		t.Fatal(res.Error)
	}
	if len(res.Report.Images) != 1 || res.Report.Images[0] != "file:///sdcard/DCIM/hueco.jpg" {
		t.Errorf("Images: got %v", res.Report.Images)
	}
}

func TestCreate_concurrentIDsAreUnique(t *testing.T) {
	r := newRepo(t, &stubRemote{offline: true}, nil)

	const n = 40
	ids := make(chan model.ReportID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res := r.Create(ctx, draft()); res.Success {
				ids <- res.Report.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[model.ReportID]bool{}
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("expected %d creations, got %d", n, len(seen))
	}
	if got := len(r.ListMine(nil)); got != n {
		t.Errorf("ListMine: got %d, want %d", got, n)
	}
}

func TestCreate_localPersistFailureRollsBack(t *testing.T) {
	backend := &flakyBackend{MemoryBackend: cachestore.NewMemoryBackend()}
	r := newRepo(t, &stubRemote{offline: true}, backend)

	backend.broken.Store(true)
	res := r.Create(ctx, draft())
	if res.Success {
		t.Fatal("expected failure when the cache cannot be written")
	}
	if _, ok := r.Get(model.LocalID(1)); ok {
		t.Error("failed report left in memory")
	}

	backend.broken.Store(false)
	res = r.Create(ctx, draft())
	if !res.Success {
		t.Fatal(res.Error)
	}
	if res.Report.ID != model.LocalID(2) {
		t.Errorf("burnt id reused: got %s, want local-2", res.Report.ID)
	}
}

func TestCreate_remoteSuccessCacheFailureWarns(t *testing.T) {
	backend := &flakyBackend{MemoryBackend: cachestore.NewMemoryBackend()}
	r := newRepo(t, &stubRemote{}, backend)

	backend.broken.Store(true)
	res := r.Create(ctx, draft())
	if !res.Success || res.Tier != fallback.TierRemote {
		t.Fatalf("remote create should still succeed: %+v", res)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("expected a cache warning, got %v", res.Warnings)
	}
}

type panickingValidator struct{}

func (panickingValidator) Validate(model.Draft, *model.Category) validation.Verdict {
	panic("boom")
}

func (panickingValidator) Decide(validation.Verdict) validation.Decision {
	return validation.Decision{}
}

func TestCreate_panicBecomesInternalError(t *testing.T) {
	r := reports.NewRepository(&stubRemote{}, cachestore.New(cachestore.NewMemoryBackend()), stubCategories{}, panickingValidator{}, zap.NewNop())
	res := r.Create(ctx, draft())
	if res.Success || res.Error == "" {
		t.Errorf("expected internal error result, got %+v", res)
	}
}

// ── Open ─────────────────────────────────────────────────────────────────────

func TestOpen_seedsCounterAboveExistingIDs(t *testing.T) {
	cache := cachestore.New(cachestore.NewMemoryBackend())
	if err := cache.Put(ctx, reports.KeyAllReports, []model.Report{
		{ID: model.LocalID(7), Title: "a"},
		{ID: model.RemoteID(12), Title: "b"},
	}); err != nil {
		t.Fatal(err)
	}
	r := reports.NewRepository(&stubRemote{offline: true}, cache, stubCategories{}, validation.NewEngine(), zap.NewNop())
	if err := r.Open(ctx); err != nil {
		t.Fatal(err)
	}
	res := r.Create(ctx, draft())
	if res.Report == nil || res.Report.ID != model.LocalID(13) {
		t.Errorf("expected local-13, got %+v", res.Report)
	}
}

func TestOpen_survivesRestart(t *testing.T) {
	backend := cachestore.NewMemoryBackend()
	r := newRepo(t, &stubRemote{offline: true}, backend)
	first := r.Create(ctx, draft())
	if !first.Success {
		t.Fatal(first.Error)
	}

	reopened := newRepo(t, &stubRemote{offline: true}, backend)
	if _, ok := reopened.Get(first.Report.ID); !ok {
		t.Error("report lost across restart")
	}
	if res := reopened.Create(ctx, draft()); res.Report.ID != model.LocalID(2) {
		t.Errorf("expected local-2 after restart, got %s", res.Report.ID)
	}
}

// ── Listing ──────────────────────────────────────────────────────────────────

func TestListAll_remoteThenCache(t *testing.T) {
	remote := &stubRemote{list: []model.Report{
		{ID: model.RemoteID(5), Title: "Poste caído", Status: model.StatusNew, CreatedAt: time.Now()},
	}}
	r := newRepo(t, remote, nil)

	got, err := r.ListAll(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Tier != fallback.TierRemote || len(got.Reports) != 1 {
		t.Fatalf("expected the remote list verbatim, got %+v", got)
	}

	remote.setOffline(true)
	got, err = r.ListAll(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Tier != fallback.TierCache || len(got.Reports) != 1 || got.Reports[0].ID != model.RemoteID(5) {
		t.Errorf("remote results should be served from cache offline, got %+v", got)
	}
}

func TestListAll_emptyRemoteFallsBack(t *testing.T) {
	remote := &stubRemote{offline: true}
	r := newRepo(t, remote, nil)
	r.Create(ctx, draft())

	remote.setOffline(false)
	got, err := r.ListAll(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Tier != fallback.TierCache || len(got.Reports) != 1 {
		t.Errorf("empty remote list should fall back to local data, got %+v", got)
	}
}

func TestListForMap_offlineShowsOnlyValidated(t *testing.T) {
	remote := &stubRemote{list: []model.Report{
		{ID: model.RemoteID(1), Title: "validado", Validated: true},
		{ID: model.RemoteID(2), Title: "pendiente"},
	}}
	r := newRepo(t, remote, nil)
	if _, err := r.ListAll(ctx, nil); err != nil {
		t.Fatal(err)
	}

	remote.setOffline(true)
	r.Create(ctx, draft())

	got, err := r.ListForMap(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Reports) != 1 || got.Reports[0].ID != model.RemoteID(1) {
		t.Errorf("map must only show validated reports, got %+v", got.Reports)
	}
}

func TestListMine_filteredNewestFirst(t *testing.T) {
	r := newRepo(t, &stubRemote{offline: true}, nil)
	for i := 0; i < 3; i++ {
		d := draft()
		d.Description = fmt.Sprintf("Hay un hueco muy profundo número %d", i)
		if res := r.Create(ctx, d); !res.Success {
			t.Fatal(res.Error)
		}
	}

	all := r.ListMine(nil)
	if len(all) != 3 || all[0].ID != model.LocalID(3) || all[2].ID != model.LocalID(1) {
		t.Errorf("expected newest first, got %v %v %v", all[0].ID, all[1].ID, all[2].ID)
	}

	got := r.ListMine(&model.Filter{Text: "NÚMERO 1"})
	if len(got) != 1 || got[0].ID != model.LocalID(2) {
		t.Errorf("text filter: got %+v", got)
	}
}

// ── Status ───────────────────────────────────────────────────────────────────

func TestUpdateStatus(t *testing.T) {
	r := newRepo(t, &stubRemote{offline: true}, nil)
	res := r.Create(ctx, draft())

	found, err := r.UpdateStatus(ctx, res.Report.ID, model.StatusResolved)
	if err != nil || !found {
		t.Fatalf("UpdateStatus: found=%v err=%v", found, err)
	}
	got, _ := r.Get(res.Report.ID)
	if got.Status != model.StatusResolved || !got.UpdatedAt.After(got.CreatedAt) {
		t.Errorf("status not updated: %+v", got)
	}
	if mine := r.ListMine(nil); mine[0].Status != model.StatusResolved {
		t.Error("owned copy not updated")
	}

	if found, _ := r.UpdateStatus(ctx, model.LocalID(99), model.StatusResolved); found {
		t.Error("unknown id reported as found")
	}
	if _, err := r.UpdateStatus(ctx, res.Report.ID, "closed"); err == nil {
		t.Error("expected error for invalid status")
	}
}

// ── Sync ─────────────────────────────────────────────────────────────────────

func TestSyncPending_reconcilesWithoutDuplicates(t *testing.T) {
	remote := &stubRemote{offline: true, nextID: 99}
	r := newRepo(t, remote, nil)
	first := r.Create(ctx, draft())
	second := r.Create(ctx, draft())

	remote.setOffline(false)
	res, err := r.SyncPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Pushed != 2 || res.Failed != 0 {
		t.Fatalf("got %+v", res)
	}

	if _, ok := r.Get(first.Report.ID); ok {
		t.Error("local id still present after acknowledgment")
	}
	got, ok := r.Get(model.RemoteID(100))
	if !ok || got.ClientRef != first.Report.ClientRef {
		t.Errorf("remote copy missing or not matched by client ref: %+v", got)
	}
	if remote.refs[1] != second.Report.ClientRef {
		t.Error("client reference not re-sent")
	}

	if mine := r.ListMine(nil); len(mine) != 2 {
		t.Errorf("expected 2 owned reports, got %d", len(mine))
	}
	if len(r.Pending()) != 0 {
		t.Error("reports still pending")
	}

	if res := r.Create(ctx, draft()); res.Report.ID != model.RemoteID(102) {
		t.Errorf("got %s", res.Report.ID)
	}
}

func TestSyncPending_offlineCountsFailures(t *testing.T) {
	r := newRepo(t, &stubRemote{offline: true}, nil)
	r.Create(ctx, draft())

	res, err := r.SyncPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Pushed != 0 || res.Failed != 1 {
		t.Errorf("got %+v", res)
	}
	if len(r.Pending()) != 1 {
		t.Error("pending report dropped")
	}
}

func TestRefreshMine_keepsUnacknowledgedLocal(t *testing.T) {
	remote := &stubRemote{offline: true}
	r := newRepo(t, remote, nil)
	pending := r.Create(ctx, draft())
	acked := r.Create(ctx, draft())

	remote.mu.Lock()
	remote.offline = false
	remote.mine = []model.Report{
		{ID: model.RemoteID(300), ClientRef: acked.Report.ClientRef, Title: acked.Report.Title},
		{ID: model.RemoteID(301), Title: "Reporte desde otro dispositivo"},
	}
	remote.mu.Unlock()

	n, err := r.RefreshMine(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("expected 2 remote + 1 pending, got %d", n)
	}
	if _, ok := r.Get(pending.Report.ID); !ok {
		t.Error("unacknowledged local report dropped")
	}
	if _, ok := r.Get(acked.Report.ID); ok {
		t.Error("acknowledged local copy should have been replaced")
	}
}

func TestRefreshMine_offlineIsError(t *testing.T) {
	r := newRepo(t, &stubRemote{offline: true}, nil)
	if _, err := r.RefreshMine(ctx); !errors.Is(err, errOffline) {
		t.Errorf("expected wrapped offline error, got %v", err)
	}
}
