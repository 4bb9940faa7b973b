package storage_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavlartius217/meditrust/pkg/storage"
)

func TestConfigFinalize(t *testing.T) {
	t.Run("requires credentials", func(t *testing.T) {
		var c storage.Config
		assert.Error(t, c.Finalize(nil))
	})

	t.Run("env override", func(t *testing.T) {
		t.Setenv("TEST_STORAGE_URL", "https://acct.blob.core.windows.net")

		var c storage.Config
		require.NoError(t, c.Finalize(&storage.Env{AccountURL: "TEST_STORAGE_URL"}))
		assert.Equal(t, "meditrust", c.ContainerName)
		assert.Equal(t, "https://acct.blob.core.windows.net", c.AccountURL)
	})
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()

	require.NoError(t, store.Upload(ctx, "sessions/a/report.txt", strings.NewReader("Hb 9 g/dL"), "text/plain"))

	ok, err := store.Exists(ctx, "sessions/a/report.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := store.Download(ctx, "sessions/a/report.txt")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "Hb 9 g/dL", string(data))
	assert.Equal(t, []string{"sessions/a/report.txt"}, store.Keys())

	require.NoError(t, store.Delete(ctx, "sessions/a/report.txt"))
	_, err = store.Download(ctx, "sessions/a/report.txt")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "sessions/a/report.txt"), storage.ErrNotFound)
}

func TestKeyValidation(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()

	err := store.Upload(ctx, "", strings.NewReader("x"), "text/plain")
	assert.ErrorIs(t, err, storage.ErrEmptyKey)
	assert.Equal(t, http.StatusBadRequest, storage.MapHTTPStatus(err))

	_, err = store.Exists(ctx, "../etc/passwd")
	assert.ErrorIs(t, err, storage.ErrInvalidKey)
}
