package reports

import (
	"math"
	"sort"
	"strings"

	"github.com/jmerrifield20/civicsync/internal/model"
)

const earthRadiusKm = 6371.0

// matches reports whether r satisfies every dimension set on f.
func matches(r *model.Report, f *model.Filter) bool {
	if f.IsZero() {
		return true
	}
	if f.CategoryID != nil && r.CategoryID != *f.CategoryID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Priority != "" && r.Priority != f.Priority {
		return false
	}
	if f.DateFrom != nil && r.CreatedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && r.CreatedAt.After(*f.DateTo) {
		return false
	}
	if f.Text != "" {
		needle := strings.ToLower(f.Text)
		if !strings.Contains(strings.ToLower(r.Title), needle) &&
			!strings.Contains(strings.ToLower(r.Description), needle) {
			return false
		}
	}
	if f.Near != nil && distanceKm(f.Near.Center, r.Location) > f.Near.RadiusKm {
		return false
	}
	return true
}

// apply returns copies of the reports matching f, newest first.
func apply(in []model.Report, f *model.Filter, keep func(*model.Report) bool) []model.Report {
	out := make([]model.Report, 0, len(in))
	for i := range in {
		r := &in[i]
		if keep != nil && !keep(r) {
			continue
		}
		if matches(r, f) {
			out = append(out, r.Clone())
		}
	}
	sortNewestFirst(out)
	return out
}

// nearOnly narrows a remote result by the geo radius, which the backend
// does not support.
func nearOnly(in []model.Report, f *model.Filter) []model.Report {
	if f == nil || f.Near == nil {
		return in
	}
	out := in[:0:0]
	for i := range in {
		if distanceKm(f.Near.Center, in[i].Location) <= f.Near.RadiusKm {
			out = append(out, in[i])
		}
	}
	return out
}

func sortNewestFirst(rs []model.Report) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.After(rs[j].CreatedAt)
		}
		return rs[i].ID.Value > rs[j].ID.Value
	})
}

// distanceKm is the haversine great-circle distance between a and b.
func distanceKm(a, b model.GeoPoint) float64 {
	lat1, lat2 := radians(a.Latitude), radians(b.Latitude)
	dLat := lat2 - lat1
	dLng := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
