package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess            = "success"
	outcomeInvalidCredentials = "invalid_credentials"
	outcomeInactive           = "inactive"
	outcomeInvalidToken       = "invalid_token"
	outcomeUnknownUser        = "unknown_user"
)

var (
	// loginAttempts counts Authenticate calls by outcome.
	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accounts_login_attempts_total",
		Help: "Total number of login attempts by outcome",
	}, []string{"outcome"})

	resetRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accounts_password_reset_requests_total",
		Help: "Total number of password reset requests by outcome",
	}, []string{"outcome"})

	resetCompletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accounts_password_reset_completions_total",
		Help: "Total number of password reset completions by outcome",
	}, []string{"outcome"})

	// usersCreated counts accounts by how they were created.
	usersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accounts_users_created_total",
		Help: "Total number of user accounts created",
	}, []string{"source"})
)
