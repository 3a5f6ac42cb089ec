package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Ledger.OpTimeout)
	assert.Equal(t, 100, cfg.Beta.MaxFreeUsers)
	assert.Equal(t, int64(3), cfg.Beta.InitialCredits)
	assert.Equal(t, "NGN", cfg.Pricing.LocalCurrency)
	assert.Empty(t, cfg.AdminAccountIDs)
	assert.Empty(t, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Server.AllowCredentials)
}

func TestLoad_EnvFileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "DATABASE_HOST=db.internal\nBETA_MAX_FREE_USERS=250\nPRICING_LOCAL_CURRENCY=kes\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("BETA_MAX_FREE_USERS", "5")
	t.Setenv("LEDGER_OP_TIMEOUT", "2s")
	t.Setenv("ADMIN_ACCOUNT_IDS", "admin-1, admin-2,,")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.sitecraft.dev,https://sitecraft.dev")
	t.Setenv("CORS_ALLOW_CREDENTIALS", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5, cfg.Beta.MaxFreeUsers, "environment wins over .env")
	assert.Equal(t, "KES", cfg.Pricing.LocalCurrency)
	assert.Equal(t, 2*time.Second, cfg.Ledger.OpTimeout)
	assert.Equal(t, []string{"admin-1", "admin-2"}, cfg.AdminAccountIDs)
	assert.Equal(t, []string{"https://app.sitecraft.dev", "https://sitecraft.dev"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Server.AllowCredentials)
}
