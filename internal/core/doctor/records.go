package doctor

import (
	"context"
	"fmt"
	"time"

	"github.com/colonyops/filesession/internal/store/filestore"
)

// StaleTempAge is how old a leftover temp file must be before autofix
// removes it. Younger files may belong to a save still in flight.
const StaleTempAge = 5 * time.Minute

// RecordsCheck inspects the session files in a store directory.
type RecordsCheck struct {
	store   *filestore.Store
	autofix bool
}

// NewRecordsCheck creates a new records check. With autofix, expired
// records and orphan markers are swept, corrupt records are removed, and
// stale temp files are deleted.
func NewRecordsCheck(store *filestore.Store, autofix bool) *RecordsCheck {
	return &RecordsCheck{store: store, autofix: autofix}
}

func (c *RecordsCheck) Name() string {
	return "Sessions"
}

func (c *RecordsCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	report, err := c.store.Inspect(ctx)
	if err != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "scan",
			Status: StatusFail,
			Detail: err.Error(),
		})
		return result
	}

	if c.autofix {
		result.Items = append(result.Items, c.fix(ctx, report)...)

		if report, err = c.store.Inspect(ctx); err != nil {
			result.Items = append(result.Items, CheckItem{
				Label:  "rescan",
				Status: StatusFail,
				Detail: err.Error(),
			})
			return result
		}
	}

	result.Items = append(result.Items,
		CheckItem{
			Label:  "records",
			Status: StatusPass,
			Detail: fmt.Sprintf("%d on disk", report.Records),
		},
		issueItem("corrupt records", report.Corrupt, "unreadable, treated as absent"),
		issueItem("expired records", report.Expired, "waiting to be reaped"),
		issueItem("orphan markers", report.OrphanMarkers, "expiration marker without a record"),
		issueItem("temp files", report.TempFiles, "left by interrupted writes"),
	)

	return result
}

func (c *RecordsCheck) fix(ctx context.Context, report Report) []CheckItem {
	var items []CheckItem

	for _, id := range report.Corrupt {
		c.store.Invalidate(ctx, id)
	}

	if len(report.Expired) > 0 || len(report.OrphanMarkers) > 0 {
		n, err := c.store.SweepExpired(ctx)
		if err != nil {
			items = append(items, CheckItem{Label: "sweep", Status: StatusFail, Detail: err.Error()})
		} else {
			items = append(items, CheckItem{Label: "sweep", Status: StatusPass, Detail: fmt.Sprintf("removed %d", n)})
		}
	}

	if len(report.TempFiles) > 0 {
		n, err := c.store.RemoveStaleTemp(StaleTempAge)
		if err != nil {
			items = append(items, CheckItem{Label: "temp cleanup", Status: StatusFail, Detail: err.Error()})
		} else {
			items = append(items, CheckItem{Label: "temp cleanup", Status: StatusPass, Detail: fmt.Sprintf("removed %d", n)})
		}
	}

	return items
}

// Report aliases the store's inspection report.
type Report = filestore.Report

func issueItem(label string, ids []string, what string) CheckItem {
	if len(ids) == 0 {
		return CheckItem{Label: label, Status: StatusPass, Detail: "none"}
	}
	return CheckItem{
		Label:   label,
		Status:  StatusWarn,
		Detail:  fmt.Sprintf("%d %s", len(ids), what),
		Fixable: true,
	}
}
