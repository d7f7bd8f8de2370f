package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var seoul = time.FixedZone("KST", 9*60*60)

// 2025-08-14 is a Thursday.
var thursday = time.Date(2025, 8, 14, 15, 30, 0, 0, seoul)

func TestFormatAndParseToday(t *testing.T) {
	s := FormatToday(thursday)
	assert.Equal(t, "2025-08-14 (목)", s)

	parsed, err := ParseToday(s, seoul)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 8, 14, 0, 0, 0, 0, seoul), parsed)

	_, err = ParseToday("08-14", seoul)
	assert.ErrorIs(t, err, ErrEmptyValue)
}

func TestResolveDateRange(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2025, 8, d, 0, 0, 0, 0, seoul) }

	tests := []struct {
		expr      string
		today     time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{expr: "", today: thursday, wantStart: day(14), wantEnd: day(14)},
		{expr: "오늘 오후", today: thursday, wantStart: day(14), wantEnd: day(14)},
		{expr: "tomorrow", today: thursday, wantStart: day(15), wantEnd: day(15)},
		{expr: "내일모레", today: thursday, wantStart: day(16), wantEnd: day(16)},
		{expr: "이번 주말", today: thursday, wantStart: day(16), wantEnd: day(17)},
		{expr: "다음 주말", today: thursday, wantStart: day(23), wantEnd: day(24)},
		{expr: "weekend", today: day(16), wantStart: day(16), wantEnd: day(17)},
		{expr: "주말", today: day(17), wantStart: day(17), wantEnd: day(17)},
		{expr: "이번 주", today: thursday, wantStart: day(14), wantEnd: day(17)},
		{expr: "2025-08-20", today: thursday, wantStart: day(20), wantEnd: day(20)},
		{expr: "2025-08-20 ~ 2025-08-22", today: thursday, wantStart: day(20), wantEnd: day(22)},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, ok := ResolveDateRange(tt.expr, tt.today)

			require.True(t, ok)
			assert.Equal(t, tt.wantStart, got.Start)
			assert.Equal(t, tt.wantEnd, got.End)
		})
	}
}

func TestResolveDateRange_Unrecognized(t *testing.T) {
	for _, expr := range []string{"언젠가", "2025-08-22 ~ 2025-08-20"} {
		_, ok := ResolveDateRange(expr, thursday)
		assert.False(t, ok, expr)
	}
}

func TestDateRange(t *testing.T) {
	r, ok := ResolveDateRange("주말", thursday)
	require.True(t, ok)

	assert.Equal(t, r.Start.AddDate(0, 0, 1), r.End)
	assert.True(t, r.Contains(time.Date(2025, 8, 17, 23, 0, 0, 0, seoul)))
	assert.False(t, r.Contains(thursday))
	assert.Equal(t, time.Date(2025, 8, 17, 23, 59, 59, 0, seoul), r.EndOfRange())
}
