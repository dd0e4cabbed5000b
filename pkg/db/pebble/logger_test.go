package pebble

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/objstore/pkg/log"
)

func captureEngineLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Engine
	log.Engine = zerolog.New(&buf).Level(zerolog.DebugLevel)
	t.Cleanup(func() { log.Engine = prev })
	return &buf
}

func TestEngineLogger(t *testing.T) {
	t.Run("infof_logs_at_debug", func(t *testing.T) {
		buf := captureEngineLog(t)
		engineLogger{}.Infof("replayed %d keys", 3)
		assert.Contains(t, buf.String(), `"level":"debug"`)
		assert.Contains(t, buf.String(), `"source":"pebble"`)
		assert.Contains(t, buf.String(), "replayed 3 keys")
	})

	t.Run("fatalf_panics", func(t *testing.T) {
		buf := captureEngineLog(t)
		assert.PanicsWithValue(t, "corrupt manifest 7", func() {
			engineLogger{}.Fatalf("corrupt manifest %d", 7)
		})
		assert.Contains(t, buf.String(), `"level":"error"`)
	})

	t.Run("reopen_replay_goes_to_engine_log", func(t *testing.T) {
		dir := t.TempDir()
		store, err := Open(dir)
		require.NoError(t, err)
		require.NoError(t, store.Put([]byte("k"), []byte("v")))
		require.NoError(t, store.Close())

		buf := captureEngineLog(t)
		store, err = Open(dir)
		require.NoError(t, err)
		defer store.Close() //nolint:errcheck

		assert.Contains(t, buf.String(), "replayed")
	})
}
