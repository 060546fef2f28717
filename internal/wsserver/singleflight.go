// Package wsserver ties the event-loop core and the WebSocket
// connection lifecycle together into a listening server: an Accept
// thread that places new connections across a loop pool, plus the
// single-instance interlock an external process (e.g. a ledger
// server) uses to guarantee only one of it runs against a given
// config path at a time.
package wsserver

import (
	"crypto/sha1"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Interlock is the process-wide named-mutex substitute described in
// §4.8: the lock identity is derived from the absolute path of
// whatever config/identity file the owning application cares about,
// so two processes pointed at the same path contend for the same
// lock file regardless of working directory.
type Interlock struct {
	file *os.File
	path string
}

// AcquireInterlock hashes the absolute form of path with SHA-1 and
// attempts to exclusively lock "<tmp>/iocore_<hex>.lock". It fails
// immediately if another process already holds the lock.
func AcquireInterlock(path string) (*Interlock, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("wsserver: resolve path %q: %w", path, err)
	}
	sum := sha1.Sum([]byte(abs))
	lockPath := filepath.Join(os.TempDir(), fmt.Sprintf("iocore_%x.lock", sum))

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wsserver: open lock file %q: %w", lockPath, err)
	}
	if err := tryLockExclusive(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("wsserver: another instance holds the lock for %q", abs)
	}
	return &Interlock{file: f, path: lockPath}, nil
}

// Path returns the lock file's location, so a peer process can find
// and read the port a prior holder wrote into it.
func (l *Interlock) Path() string { return l.path }

// WritePort records the chosen listening port in the lock file so a
// peer process can discover it without its own copy of the config.
func (l *Interlock) WritePort(port int) error {
	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("wsserver: truncate lock file: %w", err)
	}
	if _, err := l.file.WriteAt([]byte(strconv.Itoa(port)), 0); err != nil {
		return fmt.Errorf("wsserver: write port to lock file: %w", err)
	}
	return nil
}

// Release unlocks and closes the lock file. The OS would reclaim the
// lock on process exit regardless; this lets a long-running process
// give it up deliberately (e.g. during a graceful handover).
func (l *Interlock) Release() error {
	_ = unlockFile(l.file)
	return l.file.Close()
}
