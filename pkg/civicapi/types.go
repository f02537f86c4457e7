package civicapi

import "time"

// Report is a civic report as returned by the backend.
type Report struct {
	ID              int64        `json:"id"`
	ClientRef       string       `json:"client_ref,omitempty"`
	Title           string       `json:"title"`
	Description     string       `json:"description"`
	CategoryID      int64        `json:"category_id"`
	Latitude        float64      `json:"latitude"`
	Longitude       float64      `json:"longitude"`
	Address         string       `json:"address,omitempty"`
	Images          []string     `json:"images,omitempty"`
	Status          string       `json:"status"`
	Priority        string       `json:"priority"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	UserID          int64        `json:"user_id"`
	Likes           int          `json:"likes"`
	Dislikes        int          `json:"dislikes"`
	ValidationVotes int          `json:"validation_votes"`
	CommentsCount   int          `json:"comments_count"`
	Validated       bool         `json:"validated"`
	Category        *CategoryRef `json:"category,omitempty"`
	Zone            *Zone        `json:"zone,omitempty"`
}

// CategoryRef is the category summary embedded in a report.
type CategoryRef struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Icon     string `json:"icon,omitempty"`
	Color    string `json:"color,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// Zone is the administrative area a report falls in.
type Zone struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CustomField is an extra input a category asks for.
type CustomField struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// Category is a report category as returned by the backend.
type Category struct {
	ID                   int64         `json:"id"`
	Name                 string        `json:"name"`
	Description          string        `json:"description"`
	Icon                 string        `json:"icon"`
	Color                string        `json:"color"`
	Active               bool          `json:"is_active"`
	DisplayOrder         int           `json:"display_order"`
	CustomFields         []CustomField `json:"custom_fields,omitempty"`
	RequiresLocation     bool          `json:"requires_location"`
	RequiresPhoto        bool          `json:"requires_photo"`
	ExpectedResponseTime *int          `json:"expected_response_time,omitempty"`
	Priority             string        `json:"priority"`
}

// CreateReportRequest is the payload for CreateReport. ClientRef is echoed
// back by the backend and lets a retried submission be matched to the
// report it already created.
type CreateReportRequest struct {
	ClientRef    string            `json:"client_ref"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	CategoryID   int64             `json:"category_id"`
	Latitude     float64           `json:"latitude"`
	Longitude    float64           `json:"longitude"`
	Address      string            `json:"address,omitempty"`
	Images       []string          `json:"images,omitempty"`
	Priority     string            `json:"priority,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
	ContactPhone string            `json:"contact_phone,omitempty"`
	ContactEmail string            `json:"contact_email,omitempty"`
}

// ListParams narrows ListReports and ListMapReports. Zero fields are omitted.
type ListParams struct {
	CategoryID int64
	Status     string
	Priority   string
	DateFrom   *time.Time
	DateTo     *time.Time
	Search     string
}
