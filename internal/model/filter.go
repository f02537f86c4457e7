package model

import "time"

// GeoRadius restricts results to reports within RadiusKm of Center.
type GeoRadius struct {
	Center   GeoPoint `json:"center"`
	RadiusKm float64  `json:"radius_km"`
}

// Filter narrows report listings. All set dimensions must match.
type Filter struct {
	CategoryID *int64       `json:"category_id,omitempty"`
	Status     ReportStatus `json:"status,omitempty"`
	Priority   Priority     `json:"priority,omitempty"`
	DateFrom   *time.Time   `json:"date_from,omitempty"`
	DateTo     *time.Time   `json:"date_to,omitempty"`
	Text       string       `json:"text,omitempty"`
	Near       *GeoRadius   `json:"near,omitempty"`
}

// IsZero reports whether the filter has no dimension set.
func (f *Filter) IsZero() bool {
	return f == nil || (f.CategoryID == nil && f.Status == "" && f.Priority == "" &&
		f.DateFrom == nil && f.DateTo == nil && f.Text == "" && f.Near == nil)
}
