package reports

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jmerrifield20/civicsync/internal/model"
	"go.uber.org/zap"
)

// SyncResult summarises a SyncPending run.
type SyncResult struct {
	Pushed int `json:"pushed"`
	Failed int `json:"failed"`
}

// SyncPending re-sends every owned report that still has a local id, oldest
// first. Each acknowledged report takes its backend id in both collections
// without producing a second entry.
func (r *Repository) SyncPending(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	pending := r.Pending()
	slices.Reverse(pending)
	for _, rep := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		rctx, cancel := context.WithTimeout(ctx, r.timeout)
		acked, err := r.remote.CreateReport(rctx, rep.ClientRef, draftOf(&rep))
		cancel()
		if err == nil && acked.ID.IsZero() {
			err = errors.New("backend returned a report without id")
		}
		if err != nil {
			res.Failed++
			r.logger.Info("pending report not pushed",
				zap.String("id", rep.ID.String()),
				zap.Error(err),
			)
			continue
		}

		acked.ID.Kind = model.IDRemote
		merged := reconcile(rep, acked)
		r.mu.Lock()
		r.all = replaceLocal(r.all, rep.ID, merged)
		r.mine = replaceLocal(r.mine, rep.ID, merged)
		if merged.ID.Value >= r.nextID {
			r.nextID = merged.ID.Value + 1
		}
		r.mu.Unlock()
		res.Pushed++

		r.logger.Info("pending report acknowledged",
			zap.String("local_id", rep.ID.String()),
			zap.String("remote_id", merged.ID.String()),
		)
	}

	if res.Pushed > 0 {
		if err := r.persist(ctx); err != nil {
			return res, err
		}
	}
	return res, nil
}

// RefreshMine replaces the owned collection with the backend's list while
// keeping local reports the backend has not acknowledged yet. It returns the
// size of the refreshed collection.
func (r *Repository) RefreshMine(ctx context.Context) (int, error) {
	rctx, cancel := context.WithTimeout(ctx, r.timeout)
	remote, err := r.remote.ListMyReports(rctx)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("list my reports: %w", err)
	}

	byRef := make(map[uuid.UUID]model.Report, len(remote))
	for _, rep := range remote {
		if rep.ClientRef != uuid.Nil {
			byRef[rep.ClientRef] = rep
		}
	}

	r.mu.Lock()
	mine := make([]model.Report, 0, len(remote)+len(r.mine))
	for _, rep := range remote {
		rep.ID.Kind = model.IDRemote
		mine = upsert(mine, rep)
		r.all = upsert(r.all, rep)
		if rep.ID.Value >= r.nextID {
			r.nextID = rep.ID.Value + 1
		}
	}
	for _, cur := range r.mine {
		if !cur.ID.Pending() {
			continue
		}
		if acked, ok := byRef[cur.ClientRef]; ok {
			r.all = removeID(r.all, cur.ID)
			r.logger.Debug("pending report found on backend",
				zap.String("local_id", cur.ID.String()),
				zap.String("remote_id", acked.ID.String()),
			)
			continue
		}
		mine = append(mine, cur)
	}
	r.mine = mine
	n := len(mine)
	r.mu.Unlock()

	if err := r.persist(ctx); err != nil {
		return n, err
	}
	return n, nil
}

func draftOf(rep *model.Report) model.Draft {
	loc := rep.Location
	return model.Draft{
		Title:       rep.Title,
		Description: rep.Description,
		CategoryID:  rep.CategoryID,
		Location:    &loc,
		Address:     rep.Address,
		Photos:      append([]string(nil), rep.Images...),
		Priority:    rep.Priority,
		Owner:       rep.Owner,
	}
}

// reconcile takes the backend's identity and server-side fields while
// keeping what the citizen entered offline.
func reconcile(local, acked model.Report) model.Report {
	out := local.Clone()
	out.ID = acked.ID
	if acked.Status.Valid() {
		out.Status = acked.Status
	}
	if acked.Priority.Valid() {
		out.Priority = acked.Priority
	}
	if !acked.CreatedAt.IsZero() {
		out.CreatedAt = acked.CreatedAt
	}
	if !acked.UpdatedAt.IsZero() {
		out.UpdatedAt = acked.UpdatedAt
	}
	if acked.Category != nil {
		c := *acked.Category
		out.Category = &c
	}
	if acked.Zone != nil {
		z := *acked.Zone
		out.Zone = &z
	}
	if len(acked.Images) > 0 {
		out.Images = append([]string(nil), acked.Images...)
	}
	out.Counters = acked.Counters
	out.Validated = acked.Validated
	return out
}

// replaceLocal swaps the entry with the local id for rep and drops any other
// entry that already carries rep's backend id.
func replaceLocal(list []model.Report, local model.ReportID, rep model.Report) []model.Report {
	out := list[:0]
	replaced := false
	for _, cur := range list {
		switch {
		case cur.ID == local:
			if !replaced {
				out = append(out, rep)
				replaced = true
			}
		case cur.ID == rep.ID:
			// already absorbed from a remote listing
		default:
			out = append(out, cur)
		}
	}
	if !replaced {
		out = append(out, rep)
	}
	return out
}
