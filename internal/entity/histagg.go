package entity

import (
	"sort"
	"time"

	"github.com/NeCTAR-RC/reporting-pollster/internal/record"
)

type usageTotals struct {
	vcpus        int64
	memory       int64
	localStorage int64
}

// historicalUsage folds an instance result set into per-day resource totals.
// An instance contributes to every day from its creation day (clamped to the
// window start) up to but not including its deletion day; live instances run
// up to but not including today, so today's partial bucket stays zero until
// the day is over.
//
// With no window the totals start at the earliest creation day seen, so a
// full run rebuilds the whole history. Every day in the range is emitted,
// zero or not, to overwrite any stale totals from a prior run.
func historicalUsage(rows []record.Record, window *time.Time, now time.Time) []record.Record {
	today := dayOf(now)

	var startDay time.Time
	if window != nil {
		startDay = dayOf(*window)
	} else {
		for _, row := range rows {
			created := record.Time(row["created"])
			if created == nil {
				continue
			}
			d := dayOf(*created)
			if startDay.IsZero() || d.Before(startDay) {
				startDay = d
			}
		}
		if startDay.IsZero() {
			return nil
		}
	}
	if startDay.After(today) {
		return nil
	}

	totals := make(map[time.Time]*usageTotals)
	for d := startDay; !d.After(today); d = d.AddDate(0, 0, 1) {
		totals[d] = &usageTotals{}
	}

	for _, row := range rows {
		created := record.Time(row["created"])
		if created == nil {
			continue
		}
		from := dayOf(*created)
		if from.Before(startDay) {
			from = startDay
		}
		until := today
		if deleted := record.Time(row["deleted"]); deleted != nil {
			until = dayOf(*deleted)
		}
		for d := from; d.Before(until); d = d.AddDate(0, 0, 1) {
			t, ok := totals[d]
			if !ok {
				continue
			}
			t.vcpus += record.Int64(row["vcpus"])
			t.memory += record.Int64(row["memory"])
			t.localStorage += record.Int64(row["root"]) + record.Int64(row["ephemeral"])
		}
	}

	days := make([]time.Time, 0, len(totals))
	for d := range totals {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	out := make([]record.Record, 0, len(days))
	for _, d := range days {
		t := totals[d]
		out = append(out, record.Record{
			"day":           d,
			"vcpus":         t.vcpus,
			"memory":        t.memory,
			"local_storage": t.localStorage,
		})
	}
	return out
}

// dayOf truncates a timestamp to its UTC calendar day.
func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
