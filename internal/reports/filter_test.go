package reports

import (
	"math"
	"testing"
	"time"

	"github.com/jmerrifield20/civicsync/internal/model"
)

var (
	bogota   = model.GeoPoint{Latitude: 4.711, Longitude: -74.0721}
	medellin = model.GeoPoint{Latitude: 6.2442, Longitude: -75.5812}
)

func TestDistanceKm(t *testing.T) {
	if d := distanceKm(bogota, bogota); d != 0 {
		t.Errorf("same point: got %f", d)
	}
	// Bogotá to Medellín is roughly 240 km in a straight line.
	if d := distanceKm(bogota, medellin); math.Abs(d-240) > 10 {
		t.Errorf("Bogotá-Medellín: got %.1f km", d)
	}
	if a, b := distanceKm(bogota, medellin), distanceKm(medellin, bogota); math.Abs(a-b) > 1e-9 {
		t.Errorf("distance is not symmetric: %f vs %f", a, b)
	}
}

func TestMatches(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 3, d, 12, 0, 0, 0, time.UTC) }
	cat := int64(2)
	otherCat := int64(3)
	from, to := day(10), day(10)

	rep := &model.Report{
		Title:       "Poste sin luz",
		Description: "La lámpara del parque está apagada",
		CategoryID:  2,
		Location:    bogota,
		Status:      model.StatusNew,
		Priority:    model.PriorityMedium,
		CreatedAt:   day(10),
	}

	tests := []struct {
		name string
		f    *model.Filter
		want bool
	}{
		{"nil filter", nil, true},
		{"empty filter", &model.Filter{}, true},
		{"category match", &model.Filter{CategoryID: &cat}, true},
		{"category mismatch", &model.Filter{CategoryID: &otherCat}, false},
		{"status mismatch", &model.Filter{Status: model.StatusResolved}, false},
		{"priority match", &model.Filter{Priority: model.PriorityMedium}, true},
		{"date bounds inclusive", &model.Filter{DateFrom: &from, DateTo: &to}, true},
		{"before range", &model.Filter{DateFrom: ptr(day(11))}, false},
		{"after range", &model.Filter{DateTo: ptr(day(9))}, false},
		{"text in title", &model.Filter{Text: "POSTE"}, true},
		{"text in description", &model.Filter{Text: "lámpara"}, true},
		{"text absent", &model.Filter{Text: "hueco"}, false},
		{"within radius", &model.Filter{Near: &model.GeoRadius{Center: bogota, RadiusKm: 1}}, true},
		{"outside radius", &model.Filter{Near: &model.GeoRadius{Center: medellin, RadiusKm: 50}}, false},
		{"all dimensions must hold", &model.Filter{CategoryID: &cat, Text: "hueco"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := matches(rep, tc.f); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestApply_sortsAndCopies(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	in := []model.Report{
		{ID: model.LocalID(1), CreatedAt: ts, Images: []string{"file:///a.jpg"}},
		{ID: model.LocalID(3), CreatedAt: ts},
		{ID: model.RemoteID(2), CreatedAt: ts.Add(time.Hour)},
	}
	out := apply(in, nil, nil)
	if out[0].ID != model.RemoteID(2) || out[1].ID != model.LocalID(3) || out[2].ID != model.LocalID(1) {
		t.Errorf("unexpected order: %v %v %v", out[0].ID, out[1].ID, out[2].ID)
	}

	out[2].Images[0] = "mutated"
	if in[0].Images[0] != "file:///a.jpg" {
		t.Error("apply returned shared image slices")
	}
}

func TestNearOnly(t *testing.T) {
	in := []model.Report{{Location: bogota}, {Location: medellin}}
	if got := nearOnly(in, nil); len(got) != 2 {
		t.Errorf("nil filter should keep everything, got %d", len(got))
	}
	got := nearOnly(in, &model.Filter{Near: &model.GeoRadius{Center: medellin, RadiusKm: 5}})
	if len(got) != 1 || got[0].Location != medellin {
		t.Errorf("got %+v", got)
	}
}

func TestUpsert_matchesByClientRef(t *testing.T) {
	local := model.Report{ID: model.LocalID(4), Title: "offline"}
	local.ClientRef[0] = 1
	acked := model.Report{ID: model.RemoteID(40), ClientRef: local.ClientRef, Title: "acked"}

	list := upsert([]model.Report{local}, acked)
	if len(list) != 1 || list[0].ID != model.RemoteID(40) {
		t.Errorf("got %+v", list)
	}
}

func ptr[T any](v T) *T { return &v }
