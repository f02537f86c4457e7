package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReportStatus represents the lifecycle state of a civic report.
type ReportStatus string

const (
	StatusNew       ReportStatus = "new"
	StatusInProcess ReportStatus = "in-process"
	StatusResolved  ReportStatus = "resolved"
	StatusRejected  ReportStatus = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s ReportStatus) Valid() bool {
	switch s {
	case StatusNew, StatusInProcess, StatusResolved, StatusRejected:
		return true
	}
	return false
}

// Priority is the urgency class shared by reports and categories.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// OwnerRef identifies the citizen who filed a report.
type OwnerRef int64

// AnonymousOwner is the sentinel owner of reports filed without an account.
const AnonymousOwner OwnerRef = 0

// IDKind tags which tier issued a report identity.
type IDKind string

const (
	// IDLocal identities are allocated on the device while the backend is unreachable.
	IDLocal IDKind = "local"
	// IDRemote identities are issued by the backend and are the system of record.
	IDRemote IDKind = "remote"
)

// ReportID is the identity of a report. A Local id is only valid until the
// backend acknowledges the report, after which it is replaced by a Remote id.
type ReportID struct {
	Kind  IDKind `json:"kind"`
	Value int64  `json:"value"`
}

// LocalID returns a device-allocated identity.
func LocalID(v int64) ReportID { return ReportID{Kind: IDLocal, Value: v} }

// RemoteID returns a backend-issued identity.
func RemoteID(v int64) ReportID { return ReportID{Kind: IDRemote, Value: v} }

// Pending reports whether the identity still awaits backend acknowledgment.
func (id ReportID) Pending() bool { return id.Kind == IDLocal }

// IsZero reports whether no identity has been assigned.
func (id ReportID) IsZero() bool { return id.Value == 0 }

// String renders remote ids as the bare number and local ids as "local-N".
func (id ReportID) String() string {
	if id.Kind == IDLocal {
		return "local-" + strconv.FormatInt(id.Value, 10)
	}
	return strconv.FormatInt(id.Value, 10)
}

// ParseReportID is the inverse of ReportID.String.
func ParseReportID(s string) (ReportID, error) {
	kind := IDRemote
	raw := s
	if strings.HasPrefix(s, "local-") {
		kind = IDLocal
		raw = strings.TrimPrefix(s, "local-")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return ReportID{}, fmt.Errorf("invalid report id %q", s)
	}
	return ReportID{Kind: kind, Value: v}, nil
}

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Counters holds the engagement tallies of a report.
type Counters struct {
	Likes           int `json:"likes"`
	Dislikes        int `json:"dislikes"`
	ValidationVotes int `json:"validation_votes"`
	Comments        int `json:"comments"`
}

// CategorySnapshot is the category metadata captured when a report was created.
type CategorySnapshot struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Icon     string   `json:"icon,omitempty"`
	Color    string   `json:"color,omitempty"`
	Priority Priority `json:"priority,omitempty"`
}

// ZoneSnapshot is the administrative zone captured when a report was created.
type ZoneSnapshot struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Report is a citizen-submitted civic issue record.
type Report struct {
	ID          ReportID          `json:"id"`
	ClientRef   uuid.UUID         `json:"client_ref"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	CategoryID  int64             `json:"category_id"`
	Location    GeoPoint          `json:"location"`
	Address     string            `json:"address,omitempty"`
	Images      []string          `json:"images,omitempty"`
	Status      ReportStatus      `json:"status"`
	Priority    Priority          `json:"priority"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Owner       OwnerRef          `json:"owner"`
	Counters    Counters          `json:"counters"`
	Validated   bool              `json:"validated"`
	Category    *CategorySnapshot `json:"category,omitempty"`
	Zone        *ZoneSnapshot     `json:"zone,omitempty"`
}

// Anonymous reports whether the report was filed without an owner.
func (r Report) Anonymous() bool { return r.Owner == AnonymousOwner }

// Clone returns a deep copy so callers cannot mutate repository state.
func (r Report) Clone() Report {
	cp := r
	if r.Images != nil {
		cp.Images = append([]string(nil), r.Images...)
	}
	if r.Category != nil {
		c := *r.Category
		cp.Category = &c
	}
	if r.Zone != nil {
		z := *r.Zone
		cp.Zone = &z
	}
	return cp
}

// Contact holds optional follow-up details supplied by the reporter.
type Contact struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Draft is a proposed report as entered by the citizen, before identity
// assignment. It is the input of both validation and creation.
type Draft struct {
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	CategoryID   int64             `json:"category_id"`
	Location     *GeoPoint         `json:"location,omitempty"`
	Address      string            `json:"address,omitempty"`
	Image        string            `json:"image,omitempty"`
	Photos       []string          `json:"photos,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
	Priority     Priority          `json:"priority,omitempty"`
	Owner        OwnerRef          `json:"owner"`
	Contact      *Contact          `json:"contact,omitempty"`
}

// Anonymous reports whether the draft is being filed without an owner.
func (d *Draft) Anonymous() bool { return d.Owner == AnonymousOwner }

// AllPhotos returns the single image reference followed by any extra photos.
func (d *Draft) AllPhotos() []string {
	var out []string
	if d.Image != "" {
		out = append(out, d.Image)
	}
	return append(out, d.Photos...)
}
