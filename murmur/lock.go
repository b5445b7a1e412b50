package murmur

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// staleLockAge is how old an orphaned lockfile must be before a new
// acquirer is allowed to steal it (crash recovery; no process releases a
// lock it never held).
const staleLockAge = 2 * time.Minute

func lockPath(root, teamID string) string {
	return filepath.Join(root, StateDir, teamID+".lock")
}

// Lock is a per-team advisory file lock serializing state mutations
// (§4.8: "the manager must survive interleaved increment/load/start/end
// without corruption or deadlock").
type Lock struct {
	path string
}

// Acquire creates the lockfile exclusively, retrying past stale locks. It
// blocks (with a short sleep) until the lock is obtained or ctx deadline-like
// timeout elapses.
func Acquire(root, teamID string, timeout time.Duration) (*Lock, error) {
	dir := filepath.Join(root, StateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create murmur state dir: %w", err)
	}
	path := lockPath(root, teamID)

	deadline := time.Now().Add(timeout)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d", os.Getpid())
			f.Close()
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("acquire murmur lock for %s: %w", teamID, err)
		}

		if info, statErr := os.Stat(path); statErr == nil && time.Since(info.ModTime()) > staleLockAge {
			os.Remove(path)
			continue
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("acquire murmur lock for %s: timed out after %s", teamID, timeout)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Release removes the lockfile.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release murmur lock: %w", err)
	}
	return nil
}
