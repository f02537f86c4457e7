package model

// CustomField is an extra input a category asks reporters to fill in.
type CustomField struct {
	Key      string `json:"key"      yaml:"key"`
	Label    string `json:"label"    yaml:"label"`
	Type     string `json:"type"     yaml:"type"`
	Required bool   `json:"required" yaml:"required"`
}

// Category is a classification of report types with its own validation requirements.
type Category struct {
	ID                   int64         `json:"id"                               yaml:"id"`
	Name                 string        `json:"name"                             yaml:"name"`
	Description          string        `json:"description"                      yaml:"description"`
	Icon                 string        `json:"icon"                             yaml:"icon"`
	Color                string        `json:"color"                            yaml:"color"`
	Active               bool          `json:"active"                           yaml:"active"`
	DisplayOrder         int           `json:"display_order"                    yaml:"display_order"`
	CustomFields         []CustomField `json:"custom_fields,omitempty"          yaml:"custom_fields"`
	RequiresLocation     bool          `json:"requires_location,omitempty"      yaml:"requires_location"`
	RequiresPhoto        bool          `json:"requires_photo,omitempty"         yaml:"requires_photo"`
	ExpectedResponseTime *int          `json:"expected_response_time,omitempty" yaml:"expected_response_time"`
	Priority             Priority      `json:"priority"                         yaml:"priority"`
}

// Snapshot returns the denormalized copy stored on reports.
func (c Category) Snapshot() *CategorySnapshot {
	return &CategorySnapshot{
		ID:       c.ID,
		Name:     c.Name,
		Icon:     c.Icon,
		Color:    c.Color,
		Priority: c.Priority,
	}
}

// Clone returns a deep copy.
func (c Category) Clone() Category {
	cp := c
	if c.CustomFields != nil {
		cp.CustomFields = append([]CustomField(nil), c.CustomFields...)
	}
	if c.ExpectedResponseTime != nil {
		h := *c.ExpectedResponseTime
		cp.ExpectedResponseTime = &h
	}
	return cp
}
