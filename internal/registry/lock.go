package registry

import (
	"encoding/json"
	"os"
	"syscall"
	"time"

	"github.com/agentherd/agentherd/internal/errs"
	"github.com/agentherd/agentherd/internal/logging"
)

// lockRetryInterval is how often acquisition retries while the lock is held.
const lockRetryInterval = 50 * time.Millisecond

// fileLock is an advisory lock held as an O_EXCL file beside the registry
// document. The payload identifies the holder so stale locks from dead
// processes can be cleaned up.
type fileLock struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`

	path   string
	logger *logging.Logger
}

// acquireLock takes the advisory lock at path, retrying for up to wait.
// It returns a LockError naming the path and holder PID on exhaustion.
func acquireLock(path string, wait time.Duration, logger *logging.Logger) (*fileLock, error) {
	deadline := time.Now().Add(wait)
	for {
		lock, err := tryLock(path, logger)
		if err == nil {
			return lock, nil
		}
		if !errs.Is(err, errs.ErrRegistryLocked) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(lockRetryInterval)
	}
}

// tryLock makes a single acquisition attempt, cleaning up stale locks held
// by dead processes.
func tryLock(path string, logger *logging.Logger) (*fileLock, error) {
	if existing, err := readLock(path); err == nil {
		if isProcessAlive(existing.PID) {
			return nil, errs.NewLockError(path, existing.PID, nil)
		}
		oldPID := existing.PID
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, errs.NewLockError(path, oldPID, err)
		}
		logger.Warn("stale registry lock cleaned", "path", path, "old_pid", oldPID)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	lock := &fileLock{
		PID:        os.Getpid(),
		Hostname:   hostname,
		AcquiredAt: time.Now(),
		path:       path,
		logger:     logger,
	}
	data, err := json.Marshal(lock)
	if err != nil {
		return nil, errs.Wrap(err, "failed to marshal lock payload")
	}

	// O_EXCL makes creation atomic across competing invocations.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			holderPID := 0
			if existing, rerr := readLock(path); rerr == nil {
				holderPID = existing.PID
			}
			return nil, errs.NewLockError(path, holderPID, nil)
		}
		return nil, errs.NewLockError(path, 0, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return nil, errs.NewLockError(path, 0, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, errs.NewLockError(path, 0, err)
	}
	return lock, nil
}

// release removes the lock file. Only the holder calls this.
func (l *fileLock) release() {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		l.logger.Error("failed to release registry lock", "path", l.path, "error", err)
	}
}

// readLock parses an existing lock file's holder payload.
func readLock(path string) (*fileLock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lock fileLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, err
	}
	return &lock, nil
}

// isProcessAlive checks whether a PID refers to a live process using the
// zero-signal probe.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || err == syscall.EPERM
}
