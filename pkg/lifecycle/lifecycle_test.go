package lifecycle_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavlartius217/meditrust/pkg/lifecycle"
)

func TestReadyAfterStartup(t *testing.T) {
	lc := lifecycle.New()
	assert.False(t, lc.Ready())

	var count atomic.Int32
	for range 3 {
		lc.OnStartup(func() { count.Add(1) })
	}

	lc.WaitForStartup()
	assert.EqualValues(t, 3, count.Load())
	assert.True(t, lc.Ready())
}

func TestReadinessCheckers(t *testing.T) {
	lc := lifecycle.New()

	var indexReady atomic.Bool
	lc.Check("index", lifecycle.ReadyFunc(indexReady.Load))
	lc.Check("database", lifecycle.ReadyFunc(func() bool { return true }))
	lc.WaitForStartup()

	assert.False(t, lc.Ready())
	assert.Equal(t, map[string]bool{"index": false, "database": true}, lc.Status())

	indexReady.Store(true)
	assert.True(t, lc.Ready())
}

func TestShutdown(t *testing.T) {
	t.Run("hooks run after cancel", func(t *testing.T) {
		lc := lifecycle.New()

		var cleaned atomic.Bool
		lc.OnShutdown(func() {
			<-lc.Context().Done()
			cleaned.Store(true)
		})

		require.NoError(t, lc.Shutdown(5*time.Second))
		assert.True(t, cleaned.Load())
		assert.Error(t, lc.Context().Err())
	})

	t.Run("timeout", func(t *testing.T) {
		lc := lifecycle.New()
		lc.OnShutdown(func() {
			<-lc.Context().Done()
			time.Sleep(500 * time.Millisecond)
		})

		assert.Error(t, lc.Shutdown(50*time.Millisecond))
	})
}
