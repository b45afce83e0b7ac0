package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/linux-updater/internal/logger"
	"github.com/oshokin/linux-updater/internal/repository/state"
)

// ErrAlreadyRunning is returned when another live process holds the run lock.
var ErrAlreadyRunning = errors.New("another update is already running")

// acquireLock claims the run lock, taking over locks left by dead processes.
func (u *runner) acquireLock(ctx context.Context) error {
	lock := &state.Lock{
		PID:       os.Getpid(),
		Hostname:  u.actor.Hostname,
		Username:  u.actor.Username,
		StartedAt: u.report.StartedAt,
	}

	err := u.lock.Create(ctx, lock)
	if err == nil {
		u.holdLock(ctx)
		return nil
	}

	if !errors.Is(err, state.ErrLocked) {
		return fmt.Errorf("acquire run lock: %w", err)
	}

	owner, err := u.lock.Load(ctx)
	if err == nil && owner.PID != lock.PID && processAlive(owner.PID) {
		return fmt.Errorf("pid %d started %s: %w",
			owner.PID, owner.StartedAt.Format(time.DateTime), ErrAlreadyRunning)
	}

	logger.Warn(ctx, "Removing a stale run lock")

	if err = u.lock.Remove(ctx); err != nil {
		return err
	}

	if err = u.lock.Create(ctx, lock); err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}

	u.holdLock(ctx)

	return nil
}

// holdLock marks the lock as ours and hands the file to the invoking user.
func (u *runner) holdLock(ctx context.Context) {
	u.locked = true

	if u.actor.UID < 0 || u.actor.GID < 0 {
		return
	}

	if err := os.Chown(u.lock.Path(), u.actor.UID, u.actor.GID); err != nil {
		logger.DebugKV(ctx, "Unable to hand the run lock to the invoking user", "error", err)
	}
}

// releaseLock drops the run lock if this run holds it.
func (u *runner) releaseLock(ctx context.Context) {
	if !u.locked {
		return
	}

	if err := u.lock.Remove(ctx); err != nil {
		logger.WarnKV(ctx, "Unable to remove the run lock", "error", err)
		return
	}

	u.locked = false
}

// processAlive reports whether pid belongs to a running process.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := ps.FindProcess(pid)

	return err == nil && process != nil
}
