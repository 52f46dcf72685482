// Package lockfile records which chime process owns the alarm store.
//
// The lockfile holds "<rpc address>|<pid>". A lockfile whose pid is not a
// running chime process is stale and is replaced on the next Acquire.
package lockfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/julianstephens/chime/internal/constants"
	"github.com/julianstephens/chime/internal/logger"
)

var (
	findProcessFunc = ps.FindProcess
	getpidFunc      = os.Getpid
)

var (
	// ErrLocked is returned when another live chime process owns the store.
	ErrLocked = errors.New("alarm store is owned by a running chime daemon")
	// ErrNotHeld is returned by Check when no live process owns the store.
	ErrNotHeld = errors.New("no running chime daemon")
)

// Owner describes the process named in a lockfile.
type Owner struct {
	Addr string
	PID  int
}

type Lock struct {
	path  string
	owner Owner
}

// Path returns the lockfile location inside dir.
func Path(dir string) string {
	return filepath.Join(dir, constants.LockfileName)
}

// Acquire takes ownership for the current process, advertising addr. A stale
// lockfile is removed; a live one yields ErrLocked.
func Acquire(dir, addr string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	path := Path(dir)
	owner := Owner{Addr: addr, PID: getpidFunc()}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%s|%d", owner.Addr, owner.PID)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("failed to write lockfile: %w", errors.Join(werr, cerr))
			}
			logger.Debug("Acquired lockfile", "path", path, "pid", owner.PID)
			return &Lock{path: path, owner: owner}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("failed to create lockfile: %w", err)
		}

		current, err := validate(path)
		if err == nil {
			if current.PID == owner.PID {
				return nil, fmt.Errorf("%w: this process already holds %s", ErrLocked, path)
			}
			return nil, fmt.Errorf("%w (pid %d, rpc %q)", ErrLocked, current.PID, current.Addr)
		}

		logger.Warn("Removing stale lockfile", "path", path, "reason", err)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove stale lockfile: %w", err)
		}
	}
	return nil, fmt.Errorf("%w: lockfile %s was recreated concurrently", ErrLocked, path)
}

func (l *Lock) Owner() Owner {
	return l.owner
}

// Release removes the lockfile if it still names this lock's process.
func (l *Lock) Release() error {
	current, err := read(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if current.PID != l.owner.PID {
		return fmt.Errorf("lockfile %s now belongs to pid %d", l.path, current.PID)
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	logger.Debug("Released lockfile", "path", l.path)
	return nil
}

// Check returns the live owner of the lockfile in dir, or ErrNotHeld.
func Check(dir string) (Owner, error) {
	owner, err := validate(Path(dir))
	if err != nil {
		return Owner{}, fmt.Errorf("%w: %v", ErrNotHeld, err)
	}
	return owner, nil
}

func read(path string) (Owner, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Owner{}, err
	}

	parts := strings.Split(strings.TrimSpace(string(content)), "|")
	if len(parts) != 2 {
		return Owner{}, errors.New("lockfile is malformed")
	}
	pid, err := strconv.Atoi(parts[1])
	if err != nil || pid <= 0 {
		return Owner{}, errors.New("invalid process ID in lockfile")
	}
	return Owner{Addr: parts[0], PID: pid}, nil
}

// validate reads path and confirms its pid is a running chime process.
func validate(path string) (Owner, error) {
	owner, err := read(path)
	if err != nil {
		return Owner{}, err
	}

	// This process already holds it
	if owner.PID == getpidFunc() {
		return owner, nil
	}

	process, err := findProcessFunc(owner.PID)
	if err != nil || process == nil {
		return Owner{}, fmt.Errorf("process %d not running", owner.PID)
	}
	if !strings.HasPrefix(process.Executable(), constants.AppName) {
		return Owner{}, fmt.Errorf("process with PID %d is not %s (is %s)", owner.PID, constants.AppName, process.Executable())
	}
	return owner, nil
}
