package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	"github.com/noah-isme/campus-registrar-api/internal/service"
	"github.com/noah-isme/campus-registrar-api/pkg/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Env: config.EnvDevelopment,
		JWT: config.JWTConfig{Secret: "cli-secret", Issuer: "campus-portal", Expiration: time.Hour},
		Registration: config.RegistrationConfig{
			Store:        config.StoreMemory,
			LockTimeout:  time.Second,
			MaxRetries:   1,
			SeedSections: []string{"MATH200-B=MATH200:2"},
		},
		Events: config.EventsConfig{Workers: 1, BufferSize: 4},
	}
}

func run(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(newCLI(cfg, zap.NewNop()))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSectionCommands(t *testing.T) {
	cfg := testConfig()

	out, err := run(t, cfg, "section", "state", "MATH200-B")
	require.NoError(t, err)
	var state models.SectionState
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.Equal(t, 2, state.Capacity)
	assert.Equal(t, models.SectionStatusOpen, state.Status)

	out, err = run(t, cfg, "section", "check", "MATH200-B")
	require.NoError(t, err)
	assert.Contains(t, out, `"section_id": "MATH200-B"`)

	_, err = run(t, cfg, "section", "state", "NOPE-1")
	require.Error(t, err)
}

func TestOverrideCommand(t *testing.T) {
	cfg := testConfig()

	out, err := run(t, cfg, "override", "s-100", "MATH200-B", "--actor", "reg-1", "--reason", "graduating senior")
	require.NoError(t, err)
	var result models.RegistrationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, models.EnrollmentStatusActive, result.Status)
	assert.True(t, result.Override)

	_, err = run(t, cfg, "override", "s-100", "MATH200-B", "--actor", "t-1", "--role", "TEACHER", "--reason", "x")
	require.Error(t, err)

	_, err = run(t, cfg, "override", "s-100", "MATH200-B", "--actor", "reg-1")
	require.Error(t, err, "reason flag is required")
}

func TestAuditExportCommand(t *testing.T) {
	cfg := testConfig()
	dest := filepath.Join(t.TempDir(), "audit.csv")

	out, err := run(t, cfg, "audit", "export", "--actor", "reg-1", "--out", dest)
	require.NoError(t, err)
	assert.Contains(t, out, dest)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	_, err = run(t, cfg, "audit", "list", "--section", "MATH200-B")
	require.NoError(t, err)
}

func TestTokenCommand(t *testing.T) {
	cfg := testConfig()

	out, err := run(t, cfg, "token", "s-7", "--role", "student", "--ttl", "5m")
	require.NoError(t, err)
	var payload struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &payload))

	tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer, Expiration: time.Hour})
	claims, err := tokens.ValidateToken(payload.Token)
	require.NoError(t, err)
	assert.Equal(t, "s-7", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)

	cfg.Env = config.EnvProduction
	_, err = run(t, cfg, "token", "s-7")
	require.Error(t, err)
}

func TestMaintenanceCommand(t *testing.T) {
	cfg := testConfig()

	out, err := run(t, cfg, "maintenance", "status")
	require.NoError(t, err)
	assert.Contains(t, out, `"enabled": false`)

	cfg.Registration.MaintenanceMode = true
	out, err = run(t, cfg, "maintenance", "status")
	require.NoError(t, err)
	assert.Contains(t, out, `"enabled": true`)

	// the memory store has nowhere to persist the flag
	_, err = run(t, cfg, "maintenance", "on", "--actor", "admin-1")
	require.Error(t, err)
}

func TestMigrateRejectsMemoryStore(t *testing.T) {
	_, err := run(t, testConfig(), "migrate")
	require.Error(t, err)
}
