package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func check(status, message string) CheckFunc {
	return func(context.Context) (string, string) { return status, message }
}

func TestHealthChecker_Check(t *testing.T) {
	tests := []struct {
		name     string
		required []string
		optional []string
		want     string
	}{
		{"no checks", nil, nil, StatusHealthy},
		{"all healthy", []string{StatusHealthy, ""}, []string{StatusHealthy}, StatusHealthy},
		{"required degraded", []string{StatusDegraded}, nil, StatusDegraded},
		{"required unhealthy", []string{StatusHealthy, StatusUnhealthy}, nil, StatusUnhealthy},
		{"optional unhealthy only degrades", []string{StatusHealthy}, []string{StatusUnhealthy}, StatusDegraded},
		{"unhealthy wins over degraded", []string{StatusUnhealthy}, []string{StatusDegraded}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker()
			for i, s := range tt.required {
				h.Register(string(rune('a'+i)), check(s, ""))
			}
			for i, s := range tt.optional {
				h.RegisterOptional(string(rune('m'+i)), check(s, ""))
			}

			status := h.Check(context.Background())
			assert.Equal(t, tt.want, status.Status)
			assert.Len(t, status.Checks, len(tt.required)+len(tt.optional))
		})
	}
}

func TestHealthChecker_EmptyStatusIsHealthy(t *testing.T) {
	h := NewHealthChecker()
	h.Register("dirs", check("", "2 present"))

	status := h.Check(context.Background())
	require.Contains(t, status.Checks, "dirs")
	assert.Equal(t, StatusHealthy, status.Checks["dirs"].Status)
	assert.Equal(t, "2 present", status.Checks["dirs"].Message)
	assert.False(t, status.Checks["dirs"].Timestamp.IsZero())
}

func TestHealthChecker_PanickingCheck(t *testing.T) {
	h := NewHealthChecker()
	h.Register("bad", func(context.Context) (string, string) { panic("kaboom") })

	status := h.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, "panic: kaboom", status.Checks["bad"].Message)
}

func TestHealthChecker_Names(t *testing.T) {
	h := NewHealthChecker()
	h.Register("zeta", check("", ""))
	h.RegisterOptional("alpha", check("", ""))
	h.Register("zeta", check(StatusDegraded, ""))

	assert.Equal(t, []string{"alpha", "zeta"}, h.Names())
	assert.Equal(t, StatusDegraded, h.Check(context.Background()).Status)
}
