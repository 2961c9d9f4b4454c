package cycle

import (
	"errors"
	"testing"
	"time"

	"medirate_alerts/internal/domain/record"

	"github.com/stretchr/testify/assert"
)

func TestKindFor(t *testing.T) {
	assert.Equal(t, KindBill, KindFor([]record.Source{record.SourceBill}))
	assert.Equal(t, KindProviderAlert, KindFor([]record.Source{record.SourceProviderAlert}))
	assert.Equal(t, KindFull, KindFor(record.Sources()))
}

func TestResultTotalsAndRun(t *testing.T) {
	start := time.Date(2025, 5, 1, 6, 0, 0, 0, time.UTC)
	r := NewResult(record.Sources(), start)
	r.FinishedAt = start.Add(2 * time.Second)
	r.Sources = []*SourceResult{
		{Source: record.SourceBill, Inserted: 2, Updated: 1, Skipped: 5},
		{Source: record.SourceProviderAlert, Inserted: 1, Failed: 1},
	}

	assert.Equal(t, Totals{Inserted: 3, Updated: 1, Skipped: 5, Failed: 1}, r.Totals())
	assert.False(t, r.HardFailure())
	assert.Contains(t, r.Summary(), "bill: inserted=2 updated=1 skipped=5 failed=0")

	run := r.Run()
	assert.Equal(t, r.ID.String(), run.ID)
	assert.Equal(t, KindFull, run.Kind)
	assert.Equal(t, []string{"bill", "provider_alert"}, run.Sources)
	assert.Empty(t, run.Error)
}

func TestResultHardFailure(t *testing.T) {
	r := NewResult([]record.Source{record.SourceBill}, time.Now())
	r.Sources = []*SourceResult{{Source: record.SourceBill, Err: errors.New("feed missing")}}

	assert.True(t, r.HardFailure())
	assert.Equal(t, "feed missing", r.Run().Error)
	assert.NotNil(t, r.Source(record.SourceBill))
	assert.Nil(t, r.Source(record.SourceProviderAlert))
	assert.Contains(t, r.Summary(), "FAILED")
}
