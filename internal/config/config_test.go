package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
server:
  port: 8080
store:
  type: memory
jwt:
  secret: 0123456789abcdef0123456789abcdef
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, StoreTypeMemory, cfg.Store.Type)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 60, cfg.JWT.AccessTokenExpiry)
	assert.True(t, cfg.LateFeePerDay().Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 50, cfg.Booking.MaxBatchSize)
	assert.Equal(t, 5*time.Minute, cfg.StartGrace())
	assert.Equal(t, 5*time.Minute, cfg.ReturnGrace())
	assert.Equal(t, "0 0 3 * * *", cfg.Scheduler.SendOverdueReminders)
	assert.Equal(t, 3, cfg.Database.LockRetries)
	assert.Equal(t, "", cfg.GetGRPCAddress())
	assert.Equal(t, ":8080", cfg.GetServerAddress())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LATE_FEE_PER_DAY", "12.5")
	t.Setenv("GRPC_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	assert.True(t, cfg.LateFeePerDay().Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, ":9090", cfg.GetGRPCAddress())
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate_Errors(t *testing.T) {
	base := func() Config {
		return Config{
			Server: ServerConfig{Port: 8080},
			Store:  StoreConfig{Type: StoreTypeMemory},
			JWT:    JWTConfig{Secret: "0123456789abcdef0123456789abcdef"},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"short secret", func(c *Config) { c.JWT.Secret = "short" }, "at least 32 characters"},
		{"unknown store", func(c *Config) { c.Store.Type = "redis" }, "unknown store type"},
		{"postgres without host", func(c *Config) { c.Store.Type = StoreTypePostgres }, "database host is required"},
		{"negative fee", func(c *Config) { c.Booking.LateFeePerDay = "-1" }, "invalid late fee"},
		{"garbage fee", func(c *Config) { c.Booking.LateFeePerDay = "ten" }, "invalid late fee"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			assert.ErrorContains(t, c.Validate(), tt.want)
		})
	}
}

func TestGetDatabaseConnectionString(t *testing.T) {
	c := Config{Database: DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5432, Database: "toolrent", SSLMode: "disable"}}
	assert.Equal(t, "postgres://u:p@db:5432/toolrent?sslmode=disable", c.GetDatabaseConnectionString())
}

func TestGetSecurityLevel(t *testing.T) {
	assert.Equal(t, SecurityPublic, GetSecurityLevel("health"))
	assert.Equal(t, SecurityPublic, GetSecurityLevel("/grpc.health.v1.Health/Check"))
	assert.Equal(t, SecurityMember, GetSecurityLevel("reservations.create"))
	assert.Equal(t, SecurityAdmin, GetSecurityLevel("admin.loans.overdue"))
	assert.Equal(t, SecurityAdmin, GetSecurityLevel("something.unknown"))
}
