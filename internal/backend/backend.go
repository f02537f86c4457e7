// Package backend adapts the civic backend SDK to the interfaces the
// category directory and the report repository depend on.
package backend

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmerrifield20/civicsync/internal/model"
	"github.com/jmerrifield20/civicsync/pkg/civicapi"
)

// API is the subset of *civicapi.Client used by Adapter.
type API interface {
	CreateReport(ctx context.Context, req civicapi.CreateReportRequest) (*civicapi.Report, error)
	ListReports(ctx context.Context, p civicapi.ListParams) ([]civicapi.Report, error)
	ListMapReports(ctx context.Context, p civicapi.ListParams) ([]civicapi.Report, error)
	ListMyReports(ctx context.Context) ([]civicapi.Report, error)
	ListCategories(ctx context.Context) ([]civicapi.Category, error)
	GetCategory(ctx context.Context, id int64) (*civicapi.Category, error)
	Health(ctx context.Context) error
}

// Adapter converts between wire types and domain types.
type Adapter struct {
	api API
}

// New returns an Adapter over api.
func New(api API) *Adapter {
	return &Adapter{api: api}
}

// CreateReport submits d with clientRef as its idempotency key.
func (a *Adapter) CreateReport(ctx context.Context, clientRef uuid.UUID, d model.Draft) (model.Report, error) {
	rep, err := a.api.CreateReport(ctx, toRequest(clientRef, &d))
	if err != nil {
		return model.Report{}, err
	}
	return fromReport(rep), nil
}

func (a *Adapter) ListReports(ctx context.Context, f *model.Filter) ([]model.Report, error) {
	list, err := a.api.ListReports(ctx, toParams(f))
	if err != nil {
		return nil, err
	}
	return fromReports(list), nil
}

func (a *Adapter) ListMapReports(ctx context.Context, f *model.Filter) ([]model.Report, error) {
	list, err := a.api.ListMapReports(ctx, toParams(f))
	if err != nil {
		return nil, err
	}
	return fromReports(list), nil
}

func (a *Adapter) ListMyReports(ctx context.Context) ([]model.Report, error) {
	list, err := a.api.ListMyReports(ctx)
	if err != nil {
		return nil, err
	}
	return fromReports(list), nil
}

func (a *Adapter) ListCategories(ctx context.Context) ([]model.Category, error) {
	list, err := a.api.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Category, 0, len(list))
	for i := range list {
		out = append(out, fromCategory(&list[i]))
	}
	return out, nil
}

func (a *Adapter) GetCategory(ctx context.Context, id int64) (*model.Category, error) {
	c, err := a.api.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	cat := fromCategory(c)
	return &cat, nil
}

// Ping reports whether the backend answers its health probe.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.api.Health(ctx)
}

// ── conversions ──────────────────────────────────────────────────────────────

func toRequest(clientRef uuid.UUID, d *model.Draft) civicapi.CreateReportRequest {
	req := civicapi.CreateReportRequest{
		ClientRef:    clientRef.String(),
		Title:        d.Title,
		Description:  d.Description,
		CategoryID:   d.CategoryID,
		Address:      d.Address,
		Images:       d.AllPhotos(),
		Priority:     string(d.Priority),
		CustomFields: d.CustomFields,
	}
	if d.Location != nil {
		req.Latitude = d.Location.Latitude
		req.Longitude = d.Location.Longitude
	}
	if d.Contact != nil {
		req.ContactPhone = d.Contact.Phone
		req.ContactEmail = d.Contact.Email
	}
	return req
}

// toParams maps the filter dimensions the backend understands. The geo
// radius is applied by the caller.
func toParams(f *model.Filter) civicapi.ListParams {
	if f == nil {
		return civicapi.ListParams{}
	}
	p := civicapi.ListParams{
		Status:   string(f.Status),
		Priority: string(f.Priority),
		DateFrom: f.DateFrom,
		DateTo:   f.DateTo,
		Search:   f.Text,
	}
	if f.CategoryID != nil {
		p.CategoryID = *f.CategoryID
	}
	return p
}

func fromReports(in []civicapi.Report) []model.Report {
	out := make([]model.Report, 0, len(in))
	for i := range in {
		out = append(out, fromReport(&in[i]))
	}
	return out
}

func fromReport(r *civicapi.Report) model.Report {
	out := model.Report{
		ID:          model.RemoteID(r.ID),
		Title:       r.Title,
		Description: r.Description,
		CategoryID:  r.CategoryID,
		Location:    model.GeoPoint{Latitude: r.Latitude, Longitude: r.Longitude},
		Address:     r.Address,
		Images:      append([]string(nil), r.Images...),
		Status:      model.ReportStatus(r.Status),
		Priority:    model.Priority(r.Priority),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		Owner:       model.OwnerRef(r.UserID),
		Counters: model.Counters{
			Likes:           r.Likes,
			Dislikes:        r.Dislikes,
			ValidationVotes: r.ValidationVotes,
			Comments:        r.CommentsCount,
		},
		Validated: r.Validated,
	}
	if ref, err := uuid.Parse(r.ClientRef); err == nil {
		out.ClientRef = ref
	}
	if r.Category != nil {
		out.Category = &model.CategorySnapshot{
			ID:       r.Category.ID,
			Name:     r.Category.Name,
			Icon:     r.Category.Icon,
			Color:    r.Category.Color,
			Priority: model.Priority(r.Category.Priority),
		}
	}
	if r.Zone != nil {
		out.Zone = &model.ZoneSnapshot{ID: r.Zone.ID, Name: r.Zone.Name}
	}
	return out
}

func fromCategory(c *civicapi.Category) model.Category {
	out := model.Category{
		ID:                   c.ID,
		Name:                 c.Name,
		Description:          c.Description,
		Icon:                 c.Icon,
		Color:                c.Color,
		Active:               c.Active,
		DisplayOrder:         c.DisplayOrder,
		RequiresLocation:     c.RequiresLocation,
		RequiresPhoto:        c.RequiresPhoto,
		ExpectedResponseTime: c.ExpectedResponseTime,
		Priority:             model.Priority(c.Priority),
	}
	for _, f := range c.CustomFields {
		out.CustomFields = append(out.CustomFields, model.CustomField{
			Key:      f.Key,
			Label:    f.Label,
			Type:     f.Type,
			Required: f.Required,
		})
	}
	return out
}
