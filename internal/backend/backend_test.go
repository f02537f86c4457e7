package backend_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/jmerrifield20/civicsync/internal/backend"
	"github.com/jmerrifield20/civicsync/internal/category"
	"github.com/jmerrifield20/civicsync/internal/model"
	"github.com/jmerrifield20/civicsync/internal/reports"
	"github.com/jmerrifield20/civicsync/pkg/civicapi"
)

var ctx = context.Background()

// Compile-time checks that the adapter satisfies both consumers.
var (
	_ reports.Remote  = (*backend.Adapter)(nil)
	_ category.Remote = (*backend.Adapter)(nil)
)

func writeData(w http.ResponseWriter, data any) {
	json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func newAdapter(t *testing.T, mux *http.ServeMux) *backend.Adapter {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return backend.New(civicapi.MustNew(srv.URL))
}

func TestCreateReport_roundTrip(t *testing.T) {
	var got civicapi.CreateReportRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/api/reports", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		writeData(w, map[string]any{
			"id":         77,
			"client_ref": got.ClientRef,
			"title":      got.Title,
			"latitude":   got.Latitude,
			"longitude":  got.Longitude,
			"status":     "new",
			"user_id":    9,
			"category":   map[string]any{"id": 6, "name": "Otros", "priority": "low"},
			"zone":       map[string]any{"id": 1, "name": "Usaquén"},
		})
	})
	a := newAdapter(t, mux)

	ref := uuid.New()
	rep, err := a.CreateReport(ctx, ref, model.Draft{
		Title:       "Hueco en la vía",
		Description: "Hay un hueco muy profundo",
		CategoryID:  6,
		Location:    &model.GeoPoint{Latitude: 4.6, Longitude: -74.1},
		Image:       "file:///a.jpg",
		Photos:      []string{"file:///b.jpg"},
		Contact:     &model.Contact{Email: "vecino@example.org"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if got.ClientRef != ref.String() || got.Latitude != 4.6 || len(got.Images) != 2 || got.ContactEmail != "vecino@example.org" {
		t.Errorf("request not mapped: %+v", got)
	}
	if rep.ID != model.RemoteID(77) || rep.ClientRef != ref || rep.Owner != 9 {
		t.Errorf("report not mapped: %+v", rep)
	}
	if rep.Location.Longitude != -74.1 {
		t.Errorf("location: got %+v", rep.Location)
	}
	if rep.Category == nil || rep.Category.Priority != model.PriorityLow || rep.Zone == nil || rep.Zone.Name != "Usaquén" {
		t.Errorf("snapshots not mapped: %+v %+v", rep.Category, rep.Zone)
	}
}

func TestListReports_filterForwarded(t *testing.T) {
	var query string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/reports", func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		writeData(w, []map[string]any{{"id": 1, "client_ref": "not-a-uuid", "comments_count": 4, "validated": true}})
	})
	a := newAdapter(t, mux)

	cat := int64(3)
	list, err := a.ListReports(ctx, &model.Filter{CategoryID: &cat, Text: "basura"})
	if err != nil {
		t.Fatal(err)
	}
	if query != "category_id=3&search=basura" {
		t.Errorf("query: got %q", query)
	}
	if len(list) != 1 || list[0].ClientRef != uuid.Nil || list[0].Counters.Comments != 4 || !list[0].Validated {
		t.Errorf("got %+v", list)
	}
}

func TestCategories(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/categories", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, []map[string]any{{
			"id": 5, "name": "Seguridad", "is_active": true, "priority": "critical",
			"custom_fields": []map[string]any{{"key": "risk_type", "label": "Tipo de riesgo", "required": true}},
		}})
	})
	mux.HandleFunc("/api/categories/5", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, map[string]any{"id": 5, "name": "Seguridad", "is_active": true, "requires_location": true})
	})
	a := newAdapter(t, mux)

	list, err := a.ListCategories(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || !list[0].Active || list[0].Priority != model.PriorityCritical || len(list[0].CustomFields) != 1 {
		t.Errorf("got %+v", list)
	}

	cat, err := a.GetCategory(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !cat.RequiresLocation {
		t.Errorf("got %+v", cat)
	}
}

func TestPing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if err := newAdapter(t, mux).Ping(ctx); err == nil {
		t.Error("expected error from unhealthy backend")
	}
}
