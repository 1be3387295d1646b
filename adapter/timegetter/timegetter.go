// Package timegetter contains the default [domain.TimeGetter]
// implementation.
package timegetter

import (
	"time"

	"github.com/sboesebeck/morphium-sub001/domain"
)

// TimeGetter implements [domain.TimeGetter]. Times are UTC with millisecond
// precision, the resolution of stored dates.
type TimeGetter struct{}

// NewTimeGetter returns a new implementation of [domain.TimeGetter].
func NewTimeGetter() domain.TimeGetter {
	return &TimeGetter{}
}

// GetTime implements [domain.TimeGetter].
func (t *TimeGetter) GetTime() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
