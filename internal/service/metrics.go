package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	outcomeSuccess  = "success"
	outcomeConflict = "conflict"
	outcomeInvalid  = "invalid_credentials"
	outcomeError    = "error"
)

var (
	registrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_registrations_total",
			Help: "Registration attempts by outcome.",
		},
		[]string{"outcome"},
	)

	loginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	sessionRevocationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_session_revocations_total",
		Help: "Number of times a user revoked all of their sessions.",
	})

	storeTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_store_timeouts_total",
			Help: "Credential store calls that exceeded the store timeout.",
		},
		[]string{"operation"},
	)
)
