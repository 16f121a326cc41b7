package entity

import (
	"testing"
	"time"

	"github.com/NeCTAR-RC/reporting-pollster/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ts(y int, m time.Month, d, h int) *time.Time {
	t := time.Date(y, m, d, h, 0, 0, 0, time.UTC)
	return &t
}

func instanceRow(vcpus, memory, root, ephemeral int64, created, deleted *time.Time) record.Record {
	return record.Record{
		"vcpus":     vcpus,
		"memory":    memory,
		"root":      root,
		"ephemeral": ephemeral,
		"created":   created,
		"deleted":   deleted,
	}
}

func TestHistoricalUsageWindowedRun(t *testing.T) {
	now := time.Date(2015, time.November, 25, 10, 30, 0, 0, time.UTC)
	window := time.Date(2015, time.November, 22, 0, 0, 0, 0, time.UTC)

	rows := []record.Record{
		// created before the window, deleted on the 23rd: only the 22nd
		instanceRow(1, 4096, 20, 10, ts(2015, time.November, 20, 9), ts(2015, time.November, 23, 2)),
		// still running: counts up to but not including today
		instanceRow(2, 8192, 40, 20, ts(2015, time.November, 23, 1), nil),
		// one-day lifetime inside the window
		instanceRow(4, 2048, 10, 0, ts(2015, time.November, 23, 5), ts(2015, time.November, 24, 5)),
	}

	out := historicalUsage(rows, &window, now)
	require.Len(t, out, 4)

	assert.Equal(t, day(2015, time.November, 22), out[0]["day"])
	assert.Equal(t, int64(1), out[0]["vcpus"])

	assert.Equal(t, day(2015, time.November, 23), out[1]["day"])
	assert.Equal(t, int64(6), out[1]["vcpus"])
	assert.Equal(t, int64(10240), out[1]["memory"])
	assert.Equal(t, int64(70), out[1]["local_storage"])

	assert.Equal(t, day(2015, time.November, 24), out[2]["day"])
	assert.Equal(t, int64(2), out[2]["vcpus"])

	// today's bucket exists but only accrues once the day is over
	assert.Equal(t, day(2015, time.November, 25), out[3]["day"])
	assert.Equal(t, int64(0), out[3]["vcpus"])
	assert.Equal(t, int64(0), out[3]["memory"])
	assert.Equal(t, int64(0), out[3]["local_storage"])
}

func TestHistoricalUsageFullRunStartsAtEarliestCreation(t *testing.T) {
	now := time.Date(2015, time.November, 25, 10, 0, 0, 0, time.UTC)
	rows := []record.Record{
		instanceRow(1, 1024, 10, 0, ts(2015, time.November, 23, 1), nil),
		instanceRow(2, 2048, 20, 0, ts(2015, time.November, 21, 1), ts(2015, time.November, 22, 1)),
	}

	out := historicalUsage(rows, nil, now)
	require.Len(t, out, 5)

	assert.Equal(t, day(2015, time.November, 21), out[0]["day"])
	assert.Equal(t, int64(2), out[0]["vcpus"])
	// deleted on the 22nd: the deletion day itself no longer counts
	assert.Equal(t, int64(0), out[1]["vcpus"])
	assert.Equal(t, int64(1), out[2]["vcpus"])
	assert.Equal(t, int64(1), out[3]["vcpus"])
	assert.Equal(t, int64(0), out[4]["vcpus"])
}

func TestHistoricalUsageEmptyWindowStillEmitsBuckets(t *testing.T) {
	now := time.Date(2015, time.November, 25, 10, 0, 0, 0, time.UTC)
	window := time.Date(2015, time.November, 23, 0, 0, 0, 0, time.UTC)

	out := historicalUsage(nil, &window, now)
	require.Len(t, out, 3)
	for _, bucket := range out {
		assert.Equal(t, int64(0), bucket["vcpus"])
	}
}

func TestHistoricalUsageNoWindowNoRows(t *testing.T) {
	now := time.Date(2015, time.November, 25, 10, 0, 0, 0, time.UTC)
	assert.Empty(t, historicalUsage(nil, nil, now))
}

func TestHistoricalUsageSameDayLifetime(t *testing.T) {
	now := time.Date(2015, time.November, 25, 10, 0, 0, 0, time.UTC)
	window := time.Date(2015, time.November, 24, 0, 0, 0, 0, time.UTC)

	// created and deleted within one day: no full day of usage
	rows := []record.Record{
		instanceRow(8, 1024, 10, 0, ts(2015, time.November, 24, 3), ts(2015, time.November, 24, 9)),
	}
	out := historicalUsage(rows, &window, now)
	require.Len(t, out, 2)
	assert.Equal(t, int64(0), out[0]["vcpus"])
	assert.Equal(t, int64(0), out[1]["vcpus"])
}
