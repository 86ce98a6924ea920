package service

import (
	"github.com/gallery-dev/gallery/shared/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_registrations_total",
			Help: "Registration attempts by outcome",
		},
		[]string{"outcome"},
	)

	logins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Password login attempts by outcome",
		},
		[]string{"outcome"},
	)

	refreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_refreshes_total",
			Help: "Refresh token exchanges by outcome",
		},
		[]string{"outcome"},
	)

	refreshReuse = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_refresh_token_reuse_total",
			Help: "Revoked refresh tokens presented while rotation is enabled",
		},
	)

	oauthCallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_oauth_callbacks_total",
			Help: "OAuth callbacks by outcome",
		},
		[]string{"outcome"},
	)

	emailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_emails_total",
			Help: "Transactional emails by delivery result",
		},
		[]string{"result"},
	)

	tokensSwept = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_expired_rows_deleted_total",
			Help: "Expired rows removed by the token sweeper",
		},
		[]string{"kind"},
	)
)

// outcome is "ok", "rejected" for tagged failures, or "error".
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.IsExpected(err):
		return "rejected"
	default:
		return "error"
	}
}
