package metastore

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Lock protocol parameters. Acquisition polls; contention past the wait
// deadline fails the mutation rather than risking a lost update. A marker
// older than the staleness threshold is presumed abandoned by a killed
// process and reclaimed.
const (
	lockPollInterval = 100 * time.Millisecond
	lockWaitTimeout  = 5 * time.Second
	lockStaleAfter   = 10 * time.Second
)

// ErrLockTimeout is returned when the store lock cannot be acquired
// within the bounded wait.
var ErrLockTimeout = errors.New("timed out waiting for metadata lock")

// fileLock is a cross-process mutex backed by a zero-byte marker file.
// Presence means held, absence means free.
type fileLock struct {
	path string

	// wait and stale override the protocol timing; zero means the
	// defaults. Stubbed in tests that drive the contention paths.
	wait  time.Duration
	stale time.Duration
}

func (l *fileLock) waitTimeout() time.Duration {
	if l.wait > 0 {
		return l.wait
	}
	return lockWaitTimeout
}

func (l *fileLock) staleAfter() time.Duration {
	if l.stale > 0 {
		return l.stale
	}
	return lockStaleAfter
}

// acquire creates the marker exclusively, polling on contention up to the
// bounded wait. At the deadline a stale marker is deleted and acquisition
// retried once; a fresh marker fails with ErrLockTimeout.
func (l *fileLock) acquire() error {
	deadline := time.Now().Add(l.waitTimeout())
	for {
		err := l.tryCreate()
		if err == nil {
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("create lock marker: %w", err)
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(lockPollInterval)
	}

	if l.isStale() {
		// Abandoned by a killed process; reclaim it. Removal may race
		// with another reclaimer, which is fine: only the O_EXCL create
		// decides ownership.
		_ = os.Remove(l.path)
		if err := l.tryCreate(); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrLockTimeout, l.path)
}

// tryCreate attempts the atomic exclusive create of the marker.
func (l *fileLock) tryCreate() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// isStale reports whether the marker is older than the staleness
// threshold. A vanished marker counts as stale so acquisition is retried.
func (l *fileLock) isStale() bool {
	info, err := os.Stat(l.path)
	if err != nil {
		return os.IsNotExist(err)
	}
	return time.Since(info.ModTime()) > l.staleAfter()
}

// release deletes the marker. Errors are swallowed: a missing marker is
// the desired end state, and a failed removal will be reclaimed as stale.
func (l *fileLock) release() {
	_ = os.Remove(l.path)
}
