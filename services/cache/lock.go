package cache

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"sjsage522/feedharvester/logger"
	errs "sjsage522/feedharvester/pkg/errors"
)

// ErrLockHeld is returned by AcquireLock when another run owns the key
var ErrLockHeld = errors.New("run lock is held by another process")

// LockKey returns the run lock key of one feed
func LockKey(username string) string {
	return "feedharvester:lock:" + username
}

// AcquireLock takes key for ttl. The returned release function deletes the
// key only while it still carries this process's token.
func AcquireLock(svc CacheService, key string, ttl time.Duration) (func(), error) {
	host, _ := os.Hostname()
	token := []byte(fmt.Sprintf("%s:%d:%d", host, os.Getpid(), time.Now().UnixNano()))

	if err := svc.Add(key, token, ttl); err != nil {
		if errors.Is(err, ErrNotStored) {
			return nil, ErrLockHeld
		}
		return nil, errs.NewCache("lock", "failed to acquire "+key, err)
	}

	log := logger.ForCache()
	log.Debug().Str("key", key).Dur("ttl", ttl).Msg("Run lock acquired")

	release := func() {
		current, err := svc.Get(key)
		if err != nil || !bytes.Equal(current, token) {
			log.Warn().Str("key", key).Msg("Run lock expired or taken over before release")
			return
		}
		if err := svc.Delete(key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to release run lock")
			return
		}
		log.Debug().Str("key", key).Msg("Run lock released")
	}
	return release, nil
}
