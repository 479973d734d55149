package cleanup

import (
	"context"
	"fmt"

	"github.com/aatumaykin/odoosweep/internal/filter"
	"github.com/aatumaykin/odoosweep/internal/logger"
	"github.com/aatumaykin/odoosweep/internal/odoo"
	"github.com/aatumaykin/odoosweep/internal/report"
)

// TotalRemovedKey is the summary total of the deep reset.
const TotalRemovedKey = "totalRecordsRemoved"

// AdminUserID is the well-known id of the administrator account.
const AdminUserID = 2

const backupWarning = "live reset executed: records were permanently removed; always take a database backup before a reset"

// Resetter runs the deep reset phases.
type Resetter struct {
	base
}

func NewResetter(source ClientSource, opts ...Option) *Resetter {
	return &Resetter{base: newBase(source, opts)}
}

// Run resets instance to its minimal default state. Phases run strictly in
// order; best-effort steps turn failures into warnings. The error is
// non-nil only when authentication failed.
func (rs *Resetter) Run(ctx context.Context, instance string, opts ResetOptions) (*report.Report, error) {
	r, rep, err := rs.begin(ctx, EngineReset, instance, opts.Simulation, TotalRemovedKey)
	if err != nil {
		return rep, err
	}

	phases := DeepPhases(opts)
	if err := ValidateOrder(phases); err != nil {
		rep.Abort(err)
		rs.finish(rep, TotalRemovedKey, r.logger)
		return rep, err
	}

	var runErr error
outer:
	for _, phase := range phases {
		r.logger.Debug("phase started", logger.Field{Key: "phase", Value: phase.Name})
		for _, step := range phase.Steps {
			if _, err := r.run(ctx, step); err != nil {
				rep.Abort(err)
				runErr = err
				break outer
			}
		}
	}

	if runErr == nil {
		auditRetained(ctx, r.client, rep)
		if !opts.KeepMenus {
			rep.Warn("menus are never removed by a reset; ir.ui.menu entries were retained")
		}
		if !opts.KeepGroups {
			rep.Warn("permission groups are never removed by a reset; res.groups entries were retained")
		}
		if !opts.Simulation {
			rep.Warn(backupWarning)
		}
	}

	rs.finish(rep, TotalRemovedKey, r.logger)
	return rep, runErr
}

// auditRetained re-queries the defaults that must survive a reset. It only
// reads.
func auditRetained(ctx context.Context, client *odoo.Client, rep *report.Report) {
	companies := client.SearchRead(ctx, "res.company", nil, odoo.Options{Fields: []string{"name"}, Limit: 1, Order: "id asc"})
	switch {
	case !companies.OK():
		rep.Warn("retention audit: failed to check default company: " + companies.Err.Message)
	case len(companies.Data) > 0:
		rep.Retained("Default company: " + companies.Data[0].String("name"))
	}

	admins := client.Count(ctx, "res.users", filter.Where("id", filter.Eq, AdminUserID), nil)
	switch {
	case !admins.OK():
		rep.Warn("retention audit: failed to check administrator account: " + admins.Err.Message)
	case admins.Data > 0:
		rep.Retained(fmt.Sprintf("Administrator account (id %d)", AdminUserID))
	}

	menus := client.Count(ctx, "ir.ui.menu", nil, nil)
	switch {
	case !menus.OK():
		rep.Warn("retention audit: failed to check menus: " + menus.Err.Message)
	case menus.Data > 0:
		rep.Retained(fmt.Sprintf("Menu entries: %d", menus.Data))
	}

	groups := client.Count(ctx, "res.groups", nil, nil)
	switch {
	case !groups.OK():
		rep.Warn("retention audit: failed to check permission groups: " + groups.Err.Message)
	case groups.Data > 0:
		rep.Retained(fmt.Sprintf("Permission groups: %d", groups.Data))
	}
}
