package resolver

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/mirkobrombin/go-lockset/v1/acquire"
	lockerrors "github.com/mirkobrombin/go-lockset/v1/errors"
	"github.com/mirkobrombin/go-lockset/v1/lockset"
)

const flockRetryDelay = 50 * time.Millisecond

// File implements acquire.Resolver with flock(2)-style file locks, one file
// per lock name under a shared directory. Read mode takes a shared lock,
// write mode an exclusive one, so processes on the same host coordinate
// through the filesystem. A fresh file handle is opened per acquisition so
// concurrent holders on the same resolver block each other properly.
type File struct {
	dir string
}

// NewFile returns a file resolver creating lock files under dir. The
// directory must exist.
func NewFile(dir string) *File {
	return &File{dir: dir}
}

func (f *File) path(name string) string {
	// Lock names are identifiers, but keep path separators out of filenames.
	safe := strings.NewReplacer("/", "_", string(filepath.Separator), "_").Replace(name)
	return filepath.Join(f.dir, safe+".lock")
}

// Acquire implements acquire.Resolver.
func (f *File) Acquire(ctx context.Context, name string, mode lockset.Mode) (acquire.Guard, error) {
	fl := flock.New(f.path(name))
	var (
		ok  bool
		err error
	)
	if mode == lockset.Read {
		ok, err = fl.TryRLockContext(ctx, flockRetryDelay)
	} else {
		ok, err = fl.TryLockContext(ctx, flockRetryDelay)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ctx.Err()
	}
	return &fileGuard{fl: fl}, nil
}

type fileGuard struct {
	fl *flock.Flock

	mu       sync.Mutex
	released bool
}

// Release unlocks the file.
func (g *fileGuard) Release(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return lockerrors.ErrNotHeld
	}
	g.released = true
	return g.fl.Unlock()
}
