// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sanctumlabs/nuum/internal/nerr"
	"go.uber.org/zap"
)

const (
	// GraceMS is how long an unreadable pid file is tolerated before the
	// lock directory is considered stale.
	GraceMS = 5000
	// MaxAgeMS caps how long a lock may be held regardless of pid liveness,
	// guarding against pid reuse.
	MaxAgeMS = 300000

	lockPollInterval = 200 * time.Millisecond
)

// FileLock is a cross-process mutex over a store path P, implemented as a
// lock directory P.lock/ guarded by mkdir's fail-if-exists atomicity — no
// third-party flock library in the corpus offers this stale-pid-aware
// directory-lock semantics, so this is built directly on os/syscall
// (see DESIGN.md).
type FileLock struct {
	dir       string
	pidFile   string
	timeout   time.Duration
	logger    *zap.Logger
	heldSince time.Time
}

// NewFileLock builds the lock for store path dbPath with the given acquire
// timeout (default 30s if timeoutMS <= 0).
func NewFileLock(dbPath string, timeoutMS int, logger *zap.Logger) *FileLock {
	if timeoutMS <= 0 {
		timeoutMS = 30000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := dbPath + ".lock"
	return &FileLock{
		dir:     dir,
		pidFile: dir + "/pid",
		timeout: time.Duration(timeoutMS) * time.Millisecond,
		logger:  logger,
	}
}

// Acquire blocks (polling every 200ms) until the lock is taken or the
// timeout elapses, returning a release function.
func (l *FileLock) Acquire(ctx context.Context) (release func(), err error) {
	deadline := time.Now().Add(l.timeout)

	for {
		if err := os.Mkdir(l.dir, 0o755); err == nil {
			payload := fmt.Sprintf("%d\n%d", os.Getpid(), time.Now().UnixMilli())
			if werr := os.WriteFile(l.pidFile, []byte(payload), 0o644); werr != nil {
				os.Remove(l.dir)
				return nil, fmt.Errorf("write pid file: %w", werr)
			}
			l.heldSince = time.Now()
			l.logger.Debug("store lock acquired", zap.String("dir", l.dir))
			return func() { l.release() }, nil
		}

		if l.isStale() {
			os.RemoveAll(l.dir)
			continue // retry mkdir immediately
		}

		if time.Now().After(deadline) {
			l.sweepStale()
			if err := os.Mkdir(l.dir, 0o755); err == nil {
				payload := fmt.Sprintf("%d\n%d", os.Getpid(), time.Now().UnixMilli())
				_ = os.WriteFile(l.pidFile, []byte(payload), 0o644)
				l.heldSince = time.Now()
				return func() { l.release() }, nil
			}
			return nil, nerr.New(nerr.KindLockTimeout, "acquire store lock %s", l.dir)
		}

		select {
		case <-ctx.Done():
			return nil, nerr.Wrap(nerr.KindCancelled, ctx.Err(), "lock acquire cancelled")
		case <-time.After(lockPollInterval):
		}
	}
}

// isStale reports whether the lock directory's current holder is dead or
// expired, per the GraceMS/MaxAgeMS rules.
func (l *FileLock) isStale() bool {
	info, statErr := os.Stat(l.dir)
	if statErr != nil {
		// Directory vanished between Mkdir failing and Stat; treat as not
		// stale so the caller's next mkdir attempt naturally succeeds.
		return false
	}

	data, err := os.ReadFile(l.pidFile)
	if err != nil {
		return time.Since(info.ModTime()) > GraceMS*time.Millisecond
	}

	lines := strings.SplitN(strings.TrimSpace(string(data)), "\n", 2)
	pid, pidErr := strconv.Atoi(strings.TrimSpace(lines[0]))
	if pidErr != nil {
		return time.Since(info.ModTime()) > GraceMS*time.Millisecond
	}

	if len(lines) == 2 {
		if ts, err := strconv.ParseInt(strings.TrimSpace(lines[1]), 10, 64); err == nil {
			age := time.Since(time.UnixMilli(ts))
			if age > MaxAgeMS*time.Millisecond {
				return true
			}
		}
	}

	return !processAlive(pid)
}

// sweepStale is a best-effort stale removal attempted once at timeout.
func (l *FileLock) sweepStale() {
	if l.isStale() {
		os.RemoveAll(l.dir)
	}
}

func (l *FileLock) release() {
	os.Remove(l.pidFile) // missing files during release are ignored
	os.Remove(l.dir)
	l.logger.Debug("store lock released", zap.String("dir", l.dir))
}

// processAlive performs a 0-signal probe: true if pid exists.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}
