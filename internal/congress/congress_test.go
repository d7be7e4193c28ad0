package congress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestCurrent(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want int
	}{
		{name: "first congress", at: date(1789, time.June, 1), want: 1},
		{name: "odd year after seating", at: date(2025, time.March, 1), want: 119},
		{name: "even year", at: date(2026, time.August, 23), want: 119},
		{name: "odd year before january 3rd", at: date(2025, time.January, 2), want: 118},
		{name: "odd year on january 3rd", at: date(2025, time.January, 3), want: 119},
		{name: "117th", at: date(2021, time.June, 1), want: 117},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Current(tt.at))
		})
	}
}

func TestRange(t *testing.T) {
	assert.Equal(t, []int{115, 116, 117, 118, 119}, Range(115, date(2025, time.June, 1)))
	assert.Equal(t, []int{119}, Range(119, date(2025, time.June, 1)))
	assert.Nil(t, Range(120, date(2025, time.June, 1)))
}
