package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// This test requires a running memcached instance
// If memcached is not available, the test will be skipped
func TestMemcacheService(t *testing.T) {
	mc := NewMemcacheService("localhost:11211")
	if err := mc.Ping(); err != nil {
		t.Skip("Memcached is not available, skipping test")
	}

	err := mc.Set("test_key", []byte("test_value"), 1*time.Second)
	assert.NoError(t, err)

	value, err := mc.Get("test_key")
	assert.NoError(t, err)
	assert.Equal(t, "test_value", string(value))

	// Add must not overwrite an existing key
	err = mc.Add("test_key", []byte("other"), 1*time.Second)
	assert.ErrorIs(t, err, ErrNotStored)

	err = mc.Delete("test_key")
	assert.NoError(t, err)

	_, err = mc.Get("test_key")
	assert.Error(t, err)

	// Deleting a missing key is not an error
	assert.NoError(t, mc.Delete("test_key"))
}

func TestMemcacheLock(t *testing.T) {
	mc := NewMemcacheService("localhost:11211")
	if err := mc.Ping(); err != nil {
		t.Skip("Memcached is not available, skipping test")
	}

	key := LockKey("memcache-lock-test")
	release, err := AcquireLock(mc, key, 5*time.Second)
	require.NoError(t, err)

	_, err = AcquireLock(mc, key, 5*time.Second)
	assert.ErrorIs(t, err, ErrLockHeld)

	release()
	release2, err := AcquireLock(mc, key, 5*time.Second)
	require.NoError(t, err)
	release2()
}
