// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation names used as metric labels and span names.
const (
	OpRegister     = "register"
	OpLogin        = "login"
	OpRefresh      = "refresh"
	OpLogout       = "logout"
	OpAuthenticate = "authenticate"
	OpRequestReset = "request_reset"
	OpConfirmReset = "confirm_reset"
)

// OutcomeSuccess is the outcome label of an operation that returned no error.
const OutcomeSuccess = "success"

// SweepTarget names a table the janitor sweeps.
type SweepTarget string

// Sweep targets.
const (
	SweepRefreshTokens  SweepTarget = "refresh_tokens"
	SweepPasswordResets SweepTarget = "password_resets"
)

// AuthOperations counts service operations by outcome. The outcome is
// "success" or the Kind of the returned error.
// Use RegisterMetrics to register this with a Prometheus registry.
var AuthOperations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "holoauth_auth_operations_total",
		Help: "Total number of authentication operations",
	},
	[]string{"operation", "outcome"},
)

// AuthOperationDuration is the histogram for service operation latency.
// Use RegisterMetrics to register this with a Prometheus registry.
var AuthOperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "holoauth_auth_operation_duration_seconds",
		Help:    "Authentication operation duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation"},
)

// JanitorDeleted counts records removed by the janitor.
// Use RegisterMetrics to register this with a Prometheus registry.
var JanitorDeleted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "holoauth_janitor_deleted_total",
		Help: "Total number of expired records deleted by the janitor",
	},
	[]string{"target"},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AuthOperations)
	reg.MustRegister(AuthOperationDuration)
	reg.MustRegister(JanitorDeleted)
}

func recordOperation(operation string, err error, elapsed time.Duration) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = KindOf(err).String()
	}
	AuthOperations.WithLabelValues(operation, outcome).Inc()
	AuthOperationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func recordSweep(target SweepTarget, deleted int64) {
	if deleted > 0 {
		JanitorDeleted.WithLabelValues(string(target)).Add(float64(deleted))
	}
}
