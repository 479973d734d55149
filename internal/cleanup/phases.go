package cleanup

import (
	"context"
	"fmt"

	"github.com/aatumaykin/odoosweep/internal/filter"
	"github.com/aatumaykin/odoosweep/internal/odoo"
)

// ResetOptions tune the deep reset.
type ResetOptions struct {
	Simulation          bool
	KeepCompanyDefaults bool
	KeepUserAccounts    bool
	KeepMenus           bool
	KeepGroups          bool
}

// DefaultResetOptions keeps every default and simulates.
func DefaultResetOptions() ResetOptions {
	return ResetOptions{
		Simulation:          true,
		KeepCompanyDefaults: true,
		KeepUserAccounts:    true,
		KeepMenus:           true,
		KeepGroups:          true,
	}
}

// Phase is one ordered stage of the deep reset.
type Phase struct {
	Name  string
	Steps []Policy
}

// DeepPhases returns the reset phases in dependency order. Children are
// removed before the records they reference.
func DeepPhases(opts ResetOptions) []Phase {
	del := func(phase, collection string, pred filter.Predicate, label, key string) Policy {
		return Policy{
			Operation:  phase,
			Collection: collection,
			Filter:     pred,
			Action:     ActionDelete,
			Label:      label,
			SummaryKey: key,
		}
	}
	bestEffort := func(p Policy) Policy {
		p.BestEffort = true
		return p
	}
	after := func(p Policy, collections ...string) Policy {
		p.After = collections
		return p
	}

	var partnerFilter filter.Predicate
	if opts.KeepCompanyDefaults {
		partnerFilter = filter.Where("name", filter.Ne, DefaultCompanyName)
	}
	partners := del("partners", "res.partner", partnerFilter, "partners", "partnersRemoved")
	partners.Locate = locatePartners(partnerFilter, opts.KeepCompanyDefaults)

	var employeeFilter filter.Predicate
	if opts.KeepUserAccounts {
		employeeFilter = filter.Where("user_id", filter.Eq, false)
	}

	warehouses := bestEffort(del("inventory", "stock.warehouse", nil, "secondary warehouses", "warehousesRemoved"))
	warehouses.Locate = locateAllButFirst("stock.warehouse")

	return []Phase{
		{Name: "partners", Steps: []Policy{partners}},
		{Name: "sales", Steps: []Policy{
			del("sales", "sale.order", nil, "sale orders", "salesOrdersRemoved"),
		}},
		{Name: "invoicing", Steps: []Policy{
			del("invoicing", "account.move", nil, "invoices", "invoicesRemoved"),
			after(bestEffort(del("invoicing", "account.journal",
				filter.Where("type", filter.NotIn, []string{"general", "situation"}),
				"non-default journals", "journalsRemoved")), "account.move"),
			after(bestEffort(del("invoicing", "account.account",
				filter.Where("code", filter.NotILike, "1%"),
				"non-default accounts", "accountsRemoved")), "account.move", "account.journal"),
		}},
		{Name: "purchasing", Steps: []Policy{
			del("purchasing", "purchase.order", nil, "purchase orders", "purchaseOrdersRemoved"),
		}},
		{Name: "inventory", Steps: []Policy{
			bestEffort(del("inventory", "stock.move", nil, "stock moves", "stockMovesRemoved")),
			after(bestEffort(del("inventory", "product.product",
				filter.Where("create_date", filter.Ne, false),
				"product variants", "productsRemoved")), "stock.move", "sale.order", "purchase.order"),
			bestEffort(Policy{
				Operation:  "inventory",
				Collection: "stock.location",
				Filter:     filter.Where("usage", filter.Eq, "internal"),
				Action:     ActionCount,
				Label:      "internal stock locations",
				SummaryKey: "stockLocationsCounted",
			}),
			after(warehouses, "stock.move"),
		}},
		{Name: "crm", Steps: []Policy{
			del("crm", "crm.lead", filter.Where("type", filter.Eq, "lead"), "leads", "leadsRemoved"),
			del("crm", "crm.lead", filter.Where("type", filter.Eq, "opportunity"), "opportunities", "opportunitiesRemoved"),
		}},
		{Name: "projects", Steps: []Policy{
			del("projects", "project.task", nil, "project tasks", "tasksRemoved"),
			after(del("projects", "project.project", nil, "projects", "projectsRemoved"), "project.task"),
		}},
		{Name: "calendar", Steps: []Policy{
			del("calendar", "calendar.event", nil, "calendar events", "eventsRemoved"),
			after(del("calendar", "calendar.attendee", nil, "calendar attendees", "attendeesRemoved"), "calendar.event"),
		}},
		{Name: "hr", Steps: []Policy{
			del("hr", "hr.employee", employeeFilter, "employees", "employeesRemoved"),
			after(del("hr", "hr.department",
				filter.Where("parent_id", filter.Ne, false),
				"non-root departments", "departmentsRemoved"), "hr.employee"),
		}},
		{Name: "logs", Steps: []Policy{
			bestEffort(del("logs", "mail.message", nil, "messages", "logsAndAttachments")),
			bestEffort(del("logs", "mail.activity", nil, "activities", "logsAndAttachments")),
			after(del("logs", "ir.attachment", nil, "attachments", "logsAndAttachments"), "mail.message"),
		}},
	}
}

// ValidateOrder checks that every step runs after the collections it
// declares in After.
func ValidateOrder(phases []Phase) error {
	seen := make(map[string]bool)
	for _, phase := range phases {
		for _, step := range phase.Steps {
			for _, dep := range step.After {
				if !seen[dep] {
					return fmt.Errorf("phase %s: %s must run after %s", phase.Name, step.Collection, dep)
				}
			}
			seen[step.Collection] = true
		}
	}
	return nil
}

// locatePartners reads partner names so protected system partners can be
// excluded after normalization.
func locatePartners(pred filter.Predicate, keepDefaults bool) LocateFunc {
	return func(ctx context.Context, client *odoo.Client) ([]int64, error) {
		env := client.SearchRead(ctx, "res.partner", pred, odoo.Options{Fields: []string{"name"}})
		if !env.OK() {
			return nil, env.Err
		}
		ids := make([]int64, 0, len(env.Data))
		for _, rec := range env.Data {
			if keepDefaults && isProtectedPartner(rec.String("name")) {
				continue
			}
			ids = append(ids, rec.ID())
		}
		return ids, nil
	}
}

// locateAllButFirst keeps the oldest record of a collection.
func locateAllButFirst(collection string) LocateFunc {
	return func(ctx context.Context, client *odoo.Client) ([]int64, error) {
		env := client.Search(ctx, collection, nil, odoo.Options{Order: "id asc"})
		if !env.OK() {
			return nil, env.Err
		}
		if len(env.Data) <= 1 {
			return []int64{}, nil
		}
		return env.Data[1:], nil
	}
}
