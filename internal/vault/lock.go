package vault

import (
	"errors"
	"fmt"
	"os"

	"github.com/gofrs/flock"
	"github.com/openmined/syftvault/internal/utils"
)

var ErrLocked = errors.New("another run against this root is in progress")

// runLock keeps two local runs from working on the same root at once. It
// does not coordinate between machines.
type runLock struct {
	flock *flock.Flock
}

func acquireLock(path string) (*runLock, error) {
	if err := utils.EnsureParent(path); err != nil {
		return nil, fmt.Errorf("lock dir: %w", err)
	}

	l := &runLock{flock: flock.New(path)}
	locked, err := l.flock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}
	return l, nil
}

func (l *runLock) release() error {
	// only the holder removes the lock file
	if !l.flock.Locked() {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if err := os.Remove(l.flock.Path()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
