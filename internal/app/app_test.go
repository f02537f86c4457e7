package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmerrifield20/civicsync/internal/config"
	"github.com/jmerrifield20/civicsync/internal/fallback"
	"github.com/jmerrifield20/civicsync/internal/model"
	"go.uber.org/zap"
)

// stubServer answers like the civic backend while up is set and with 503
// otherwise.
func stubServer(t *testing.T, up *atomic.Bool) *httptest.Server {
	t.Helper()
	write := func(w http.ResponseWriter, data any) {
		json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
	}
	var nextID atomic.Int64
	nextID.Store(700)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/reports", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		write(w, map[string]any{"id": nextID.Add(1), "client_ref": req["client_ref"], "status": "new"})
	})
	mux.HandleFunc("/api/reports/mine", func(w http.ResponseWriter, r *http.Request) {
		write(w, []any{})
	})
	mux.HandleFunc("/api/categories", func(w http.ResponseWriter, r *http.Request) {
		write(w, []map[string]any{{"id": 6, "name": "Otros", "is_active": true, "priority": "low"}})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !up.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(url string) *config.Config {
	return &config.Config{
		Backend:     config.Backend{URL: url, Timeout: time.Second},
		Cache:       config.Cache{Driver: config.DriverMemory},
		CategoryTTL: time.Hour,
		MinScore:    50,
		Health:      config.Health{Interval: time.Minute, FailThreshold: 1},
	}
}

func draft() model.Draft {
	return model.Draft{
		Title:       "Hueco en la vía",
		Description: "Hay un hueco muy profundo",
		CategoryID:  6,
		Location:    &model.GeoPoint{Latitude: 4.6, Longitude: -74.1},
	}
}

func TestNew_rejectsBadToken(t *testing.T) {
	cfg := testConfig("http://localhost:1")
	cfg.Backend.Token = "not-a-jwt"
	if _, err := New(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Error("expected error for malformed token")
	}
}

func TestApp_offlineThenRecover(t *testing.T) {
	ctx := context.Background()
	var up atomic.Bool
	srv := stubServer(t, &up)

	a, err := New(ctx, testConfig(srv.URL), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	tiers := map[fallback.Tier]int{}
	a.SetTierRecorder(func(_ string, tier fallback.Tier) { tiers[tier]++ })

	res := a.Reports.Create(ctx, draft())
	if !res.Success || res.Report.ID != model.LocalID(1) {
		t.Fatalf("offline create: %+v", res)
	}
	if tiers[fallback.TierCache] != 1 {
		t.Errorf("tier not recorded: %v", tiers)
	}

	a.Monitor.Check(ctx)
	if a.Monitor.Online() {
		t.Fatal("monitor should be offline")
	}

	up.Store(true)
	a.Monitor.Check(ctx)
	if !a.Monitor.Online() {
		t.Fatal("monitor should be back online")
	}
	if n := len(a.Reports.Pending()); n != 0 {
		t.Errorf("recovery should push pending reports, %d left", n)
	}
	if _, ok := a.Reports.Get(model.RemoteID(701)); !ok {
		t.Error("acknowledged report not stored under its backend id")
	}
	if a.Categories.Stale(ctx) {
		t.Error("categories should be fresh after recovery")
	}
}
