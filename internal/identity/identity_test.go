package identity

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestCacheHitOnUnchangedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.pdf")
	writeFile(t, path, "hello")

	sig, err := FileSignature(path)
	require.NoError(t, err)
	c := NewCache()
	c.Store("k", sig, "uid-1")

	again, err := FileSignature(path)
	require.NoError(t, err)
	uid, ok := c.Lookup("k", again)
	assert.True(t, ok)
	assert.Equal(t, "uid-1", uid)
}

func TestCacheMissAfterSizeChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.pdf")
	writeFile(t, path, "hello")
	sig, err := FileSignature(path)
	require.NoError(t, err)

	c := NewCache()
	c.Store("k", sig, "uid-1")

	writeFile(t, path, "hello, world")
	changed, err := FileSignature(path)
	require.NoError(t, err)
	_, ok := c.Lookup("k", changed)
	assert.False(t, ok)
}

func TestCacheMissAfterMtimeChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.pdf")
	writeFile(t, path, "hello")
	sig, err := FileSignature(path)
	require.NoError(t, err)

	c := NewCache()
	c.Store("k", sig, "uid-1")

	later := time.Unix(0, sig.ModTimeNanos).Add(time.Second)
	require.NoError(t, os.Chtimes(path, later, later))
	touched, err := FileSignature(path)
	require.NoError(t, err)
	_, ok := c.Lookup("k", touched)
	assert.False(t, ok)
}

func TestIdempotencyKey(t *testing.T) {
	c := NewCache()
	c.Store("k", KeySignature("job-42"), "uid-9")

	uid, ok := c.Lookup("k", KeySignature("job-42"))
	assert.True(t, ok)
	assert.Equal(t, "uid-9", uid)

	_, ok = c.Lookup("k", KeySignature("job-43"))
	assert.False(t, ok)
	_, ok = c.Lookup("other", KeySignature("job-42"))
	assert.False(t, ok)
}

func TestLastWriteWins(t *testing.T) {
	c := NewCache()
	c.Store("k", KeySignature("x"), "first")
	c.Store("k", KeySignature("x"), "second")
	uid, _ := c.Lookup("k", KeySignature("x"))
	assert.Equal(t, "second", uid)
	assert.Equal(t, 1, c.Len())
}

func TestFileSignatureMissingFile(t *testing.T) {
	_, err := FileSignature(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}

func TestSubmissionSetConcurrent(t *testing.T) {
	s := NewSubmissionSet()
	var wg sync.WaitGroup
	added := make(chan bool, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			added <- s.Add("same")
		}()
	}
	wg.Wait()
	close(added)

	n := 0
	for ok := range added {
		if ok {
			n++
		}
	}
	assert.Equal(t, 1, n)
	assert.True(t, s.Has("same"))
	assert.False(t, s.Has("other"))
}
