package authclient_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authclient "github.com/goliatone/go-auth-client"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := authclient.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000/api/v1", cfg.BaseURL)
	assert.Equal(t, "/token/", cfg.TokenPath)
	assert.Equal(t, "/token/refresh/", cfg.RefreshPath)
	assert.Equal(t, "/users/me/", cfg.CurrentUserPath)
	assert.Equal(t, "/login", cfg.LoginRoute)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.Debug)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("PORTAL_API_URL", "https://portal.example.com/api/v2")
	t.Setenv("PORTAL_AUTH_TIMEOUT", "5s")
	t.Setenv("PORTAL_AUTH_DEBUG", "true")
	t.Setenv("PORTAL_AUTH_LOGIN_ROUTE", "/signin")

	cfg, err := authclient.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://portal.example.com/api/v2", cfg.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "/signin", cfg.LoginRoute)
}

func TestConfigValidate(t *testing.T) {
	cfg, err := authclient.LoadConfig()
	require.NoError(t, err)

	cfg.BaseURL = "not a url"
	err = cfg.Validate()
	require.Error(t, err)
	assert.True(t, authclient.IsValidationError(err))

	cfg.BaseURL = ""
	assert.Error(t, cfg.Validate())
}

func TestConfigGuardRoutes(t *testing.T) {
	cfg, err := authclient.LoadConfig()
	require.NoError(t, err)

	routes := cfg.GuardRoutes()
	assert.Equal(t, "/login", routes.Login)
	assert.Equal(t, "/verify-email-required", routes.VerifyRequired)
	assert.Equal(t, "/doctor/approval-pending", routes.ApprovalPending)
	assert.Equal(t, "/patient/dashboard", routes.RoleHome[authclient.RolePatient])
	assert.Equal(t, "/doctor/dashboard", routes.RoleHome[authclient.RoleDoctor])
	assert.Equal(t, "/admin/dashboard", routes.RoleHome[authclient.RoleAdmin])
}

func TestConfigEndpoint(t *testing.T) {
	cfg := authclient.Config{BaseURL: "http://localhost:8000/api/v1/"}

	assert.Equal(t, "http://localhost:8000/api/v1/token/", cfg.Endpoint("/token/"))
	assert.Equal(t, "http://localhost:8000/api/v1/token/", cfg.Endpoint("token/"))
}
