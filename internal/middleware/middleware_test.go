package middleware

import (
	"testing"

	"golang.org/x/time/rate"

	"github.com/hqlin/tcm-assistant/internal/config"
	"github.com/hqlin/tcm-assistant/pkg/logx"
)

func TestIsValidBearerToken(t *testing.T) {
	oldToken, oldBypass := config.AuthToken, config.NoAuthBypass
	defer func() { config.AuthToken, config.NoAuthBypass = oldToken, oldBypass }()

	config.AuthToken = "secret-token"
	log := logx.NewLogger("middleware_test")

	tests := []struct {
		name   string
		header string
		bypass bool
		want   bool
	}{
		{name: "valid token", header: "Bearer secret-token", want: true},
		{name: "wrong token", header: "Bearer not-the-token", want: false},
		{name: "missing header", header: "", want: false},
		{name: "no bearer prefix", header: "secret-token", want: false},
		{name: "bypass allows anything", header: "", bypass: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config.NoAuthBypass = tt.bypass
			if got := IsValidBearerToken(tt.header, log); got != tt.want {
				t.Errorf("IsValidBearerToken(%q) = %v, want %v", tt.header, got, tt.want)
			}
		})
	}
}

func TestIPRateLimiter(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Limit(1), 2)

	t.Run("burst then deny", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			if !limiter.GetLimiter("10.0.0.1").Allow() {
				t.Fatalf("request %d within burst should be allowed", i+1)
			}
		}
		if limiter.GetLimiter("10.0.0.1").Allow() {
			t.Error("request above burst should be denied")
		}
	})

	t.Run("ips are limited independently", func(t *testing.T) {
		if !limiter.GetLimiter("10.0.0.2").Allow() {
			t.Error("a fresh ip should not inherit another ip's consumption")
		}
	})
}
