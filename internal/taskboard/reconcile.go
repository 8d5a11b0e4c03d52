package taskboard

import (
	"errors"
	"sort"
)

// ReconcileReport records what a reconciliation pass repaired.
type ReconcileReport struct {
	DroppedRefs []string
	Adopted     []string
	Reassigned  []string
	Excluded    []string
	Changed     bool
}

// reconcileBoard merges the declared board against the bundles actually on
// disk and repairs drift in place:
//
//  1. Column references without a bundle are dropped (as are duplicate
//     references; the first column keeps the task).
//  2. Bundles absent from every column are adopted into the column their own
//     document names, appended in lexicographic id order so repeated passes
//     over an unchanged bundle set are stable.
//  3. Bundles naming an unknown column are reassigned to the fallback
//     column, appended the same way.
//
// Corrupt bundles keep their existing references but are reported as
// excluded; they reappear once the document is repaired.
func reconcileBoard(board *Board, codec *BundleCodec, logger Logger) (ReconcileReport, error) {
	report := ReconcileReport{}
	existing, err := codec.ListIDs()
	if err != nil {
		return report, err
	}

	referenced := map[string]struct{}{}
	for i := range board.Columns {
		col := &board.Columns[i]
		kept := col.TaskIDs[:0]
		for _, id := range col.TaskIDs {
			if _, onDisk := existing[id]; !onDisk {
				report.DroppedRefs = append(report.DroppedRefs, id)
				continue
			}
			if _, dup := referenced[id]; dup {
				report.DroppedRefs = append(report.DroppedRefs, id)
				continue
			}
			referenced[id] = struct{}{}
			kept = append(kept, id)
		}
		col.TaskIDs = kept
	}

	orphans := make([]string, 0)
	for id := range existing {
		if _, ok := referenced[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)

	for _, id := range orphans {
		task, err := codec.Load(id)
		if err != nil {
			if errors.Is(err, ErrCorruptDocument) {
				report.Excluded = append(report.Excluded, id)
				logf(logger, "reconcile: excluding corrupt bundle %s: %v", id, err)
				continue
			}
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return report, err
		}
		if col := board.column(task.Column); col != nil {
			col.TaskIDs = append(col.TaskIDs, id)
			report.Adopted = append(report.Adopted, id)
			continue
		}
		fallback := board.fallbackColumn()
		if fallback == nil {
			continue
		}
		fallback.TaskIDs = append(fallback.TaskIDs, id)
		report.Reassigned = append(report.Reassigned, id)
	}

	report.Changed = len(report.DroppedRefs) > 0 || len(report.Adopted) > 0 || len(report.Reassigned) > 0
	return report, nil
}
