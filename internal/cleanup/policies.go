package cleanup

import (
	"fmt"
	"strings"
	"time"

	"github.com/aatumaykin/odoosweep/internal/filter"
)

// Policy groups of the shallow engine, in execution order.
const (
	GroupRemoveTestData     = "remove_test_data"
	GroupArchiveInactive    = "archive_inactive"
	GroupCleanupDrafts      = "cleanup_drafts"
	GroupRemoveOrphans      = "remove_orphans"
	GroupCleanupLogs        = "cleanup_logs"
	GroupCleanupAttachments = "cleanup_attachments"
	GroupClearCaches        = "clear_caches"
)

// DefaultDaysThreshold is the age after which records count as inactive.
const DefaultDaysThreshold = 180

const (
	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02 15:04:05"
)

// Groups returns every policy group name in execution order.
func Groups() []string {
	return []string{
		GroupRemoveTestData,
		GroupArchiveInactive,
		GroupCleanupDrafts,
		GroupRemoveOrphans,
		GroupCleanupLogs,
		GroupCleanupAttachments,
		GroupClearCaches,
	}
}

// ValidateGroups rejects unknown group names.
func ValidateGroups(groups []string) error {
	known := make(map[string]bool)
	for _, g := range Groups() {
		known[g] = true
	}
	for _, g := range groups {
		if !known[g] {
			return fmt.Errorf("unknown policy group %q (available: %s)", g, strings.Join(Groups(), ", "))
		}
	}
	return nil
}

// ShallowPolicies returns the shallow cleanup policies for a run started at
// now. Records older than days are archived or pruned.
func ShallowPolicies(now time.Time, days int) []Policy {
	if days <= 0 {
		days = DefaultDaysThreshold
	}
	cutoff := now.UTC().AddDate(0, 0, -days)
	date := cutoff.Format(dateLayout)
	timestamp := cutoff.Format(datetimeLayout)

	archive := func(collection, label string) Policy {
		return Policy{
			Operation:  GroupArchiveInactive,
			Collection: collection,
			Filter: filter.And{
				filter.Where("write_date", filter.Lt, date),
				filter.Where("active", filter.Eq, true),
			},
			Action:     ActionArchive,
			Label:      label,
			SummaryKey: "inactiveRecordsArchived",
		}
	}
	testData := func(collection, field, pattern, label string) Policy {
		return Policy{
			Operation:  GroupRemoveTestData,
			Collection: collection,
			Filter:     filter.Where(field, filter.Like, pattern),
			Action:     ActionDelete,
			Label:      label,
			SummaryKey: "testDataRemoved",
		}
	}
	draft := func(collection, label string) Policy {
		return Policy{
			Operation:  GroupCleanupDrafts,
			Collection: collection,
			Filter:     filter.Where("state", filter.Eq, "draft"),
			Action:     ActionDelete,
			Label:      label,
			SummaryKey: "draftsCleaned",
		}
	}

	return []Policy{
		testData("res.partner", "name", "Test%", "test partners"),
		testData("res.partner", "name", "Demo%", "demo partners"),
		testData("sale.order", "name", "%TEST%", "test sale orders"),
		testData("account.move", "ref", "%TEST%", "test invoices"),
		testData("stock.move", "origin", "%TEST%", "test stock moves"),

		archive("res.partner", "inactive partners"),
		archive("sale.order", "inactive sale orders"),
		archive("account.move", "inactive invoices"),

		draft("sale.order", "draft sale orders"),
		draft("account.move", "draft invoices"),
		draft("purchase.order", "draft purchase orders"),

		{
			Operation:  GroupRemoveOrphans,
			Collection: "sale.order.line",
			Filter:     filter.Where("order_id", filter.Eq, false),
			Action:     ActionDelete,
			Label:      "orphaned sale order lines",
			SummaryKey: "orphanRecordsRemoved",
		},
		{
			Operation:  GroupRemoveOrphans,
			Collection: "account.move.line",
			Filter:     filter.Where("move_id", filter.Eq, false),
			Action:     ActionDelete,
			Label:      "orphaned journal items",
			SummaryKey: "orphanRecordsRemoved",
		},

		{
			Operation:  GroupCleanupLogs,
			Collection: "mail.message",
			Filter:     filter.Where("create_date", filter.Lt, timestamp),
			Action:     ActionDelete,
			Label:      "old messages",
			SummaryKey: "logsCleaned",
		},
		{
			Operation:  GroupCleanupLogs,
			Collection: "mail.activity",
			Filter: filter.And{
				filter.Where("create_date", filter.Lt, timestamp),
				filter.Where("state", filter.Eq, "done"),
			},
			Action:     ActionDelete,
			Label:      "completed activities",
			SummaryKey: "logsCleaned",
		},

		{
			Operation:  GroupCleanupAttachments,
			Collection: "ir.attachment",
			Filter:     filter.Where("create_date", filter.Lt, date),
			Action:     ActionDelete,
			Label:      "old attachments",
			SummaryKey: "attachmentsCleaned",
		},
	}
}

// cacheTargets are the server methods invoked by the clear_caches group.
var cacheTargets = []struct {
	Model  string
	Method string
}{
	{"ir.ui.view", "clear_caches"},
	{"ir.session", "clear_session_cache"},
}
