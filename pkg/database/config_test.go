package database_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavlartius217/meditrust/pkg/database"
)

func TestFinalizeDefaults(t *testing.T) {
	var c database.Config
	require.NoError(t, c.Finalize(nil))

	assert.Equal(t, "localhost", c.Host)
	assert.Equal(t, 5432, c.Port)
	assert.Equal(t, 15*time.Minute, c.ConnMaxLifetimeDuration())
	assert.Equal(t, 5*time.Second, c.ConnTimeoutDuration())
	assert.Equal(t, "postgres://meditrust:@localhost:5432/meditrust?sslmode=disable", c.URL())
}

func TestFinalizeEnv(t *testing.T) {
	t.Setenv("TEST_DB_HOST", "db.internal")
	t.Setenv("TEST_DB_PORT", "6543")
	t.Setenv("TEST_DB_PASSWORD", "secret")

	c := database.Config{Host: "ignored"}
	require.NoError(t, c.Finalize(&database.Env{
		Host:     "TEST_DB_HOST",
		Port:     "TEST_DB_PORT",
		Password: "TEST_DB_PASSWORD",
	}))

	assert.Equal(t, "host=db.internal port=6543 dbname=meditrust user=meditrust password=secret sslmode=disable", c.Dsn())
}

func TestFinalizeInvalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  database.Config
	}{
		{"bad port", database.Config{Port: 70000}},
		{"bad lifetime", database.Config{ConnMaxLifetime: "forever"}},
		{"bad timeout", database.Config{ConnTimeout: "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Finalize(nil))
		})
	}
}

func TestMerge(t *testing.T) {
	base := database.Config{Host: "a", Port: 1, Name: "base"}
	base.Merge(&database.Config{Host: "b", MaxOpenConns: 3})

	assert.Equal(t, "b", base.Host)
	assert.Equal(t, 1, base.Port)
	assert.Equal(t, "base", base.Name)
	assert.Equal(t, 3, base.MaxOpenConns)
}
