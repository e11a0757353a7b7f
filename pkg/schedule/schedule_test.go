package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvery(t *testing.T) {
	from := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, from.Add(45*time.Minute), Every(45*time.Minute).Next(from))
}

func TestParse(t *testing.T) {
	from := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC) // a Sunday

	tests := []struct {
		expr string
		want time.Time
	}{
		{"@every 15m", from.Add(15 * time.Minute)},
		{"@hourly", time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)},
		{"@daily", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)},
		{"45 10 * * *", time.Date(2026, 3, 1, 10, 45, 0, 0, time.UTC)},
		{"0 9 * * 1", time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		{"*/20 * * * *", time.Date(2026, 3, 1, 10, 40, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			s, err := Parse(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Next(from))
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, expr := range []string{"", "every now and then", "61 * * * *", "* * * *"} {
		_, err := Parse(expr)
		assert.Error(t, err, "expr %q", expr)
	}
}
