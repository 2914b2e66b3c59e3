package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetOutputWritesFormattedMessages(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	Info("submitted %s", "uid-1")
	Debug("hidden %d", 1)

	out := buf.String()
	assert.Contains(t, out, "submitted uid-1")
	assert.Contains(t, out, "[info]")
	assert.NotContains(t, out, "hidden")
}

func TestInitFileOnly(t *testing.T) {
	dir := t.TempDir()
	path, err := InitFileOnly(dir, true)
	require.NoError(t, err)
	defer Close()

	assert.Equal(t, dir, filepath.Dir(path))
	Debug("polling %s", "u2")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "polling u2")
	assert.Contains(t, string(data), `"level":"debug"`)
}
