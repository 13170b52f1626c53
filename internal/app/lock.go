package app

import (
	"fmt"

	"github.com/gofrs/flock"
)

// InstanceLock keeps a second process from driving the same host.
type InstanceLock struct {
	lock *flock.Flock
}

func NewInstanceLock(path string) *InstanceLock {
	if path == "" {
		return &InstanceLock{}
	}
	return &InstanceLock{lock: flock.New(path)}
}

func (l *InstanceLock) Acquire() error {
	if l.lock == nil {
		return nil
	}
	locked, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("locking %s: %w", l.lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("another instance holds %s", l.lock.Path())
	}
	return nil
}

func (l *InstanceLock) Release() error {
	if l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}

// Held reports whether some process currently holds the lock file. It does
// not keep the lock.
func (l *InstanceLock) Held() (bool, error) {
	if l.lock == nil {
		return false, nil
	}
	probe := flock.New(l.lock.Path())
	locked, err := probe.TryLock()
	if err != nil {
		return false, err
	}
	if locked {
		return false, probe.Unlock()
	}
	return true, nil
}
