package ps

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sync"
	"time"

	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/memfs"
	"github.com/go-git/go-billy/v6/osfs"
	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing/cache"
	"github.com/go-git/go-git/v6/storage/filesystem"
	"github.com/go-git/go-git/v6/storage/memory"
	"github.com/nickyhof/AdOrchDB/core"
)

// DefaultSnapshotPath is the snapshot file name inside the data directory.
const DefaultSnapshotPath = "data.json"

var (
	ErrNotInitialized  = errors.New("persistence layer not initialized")
	ErrHistoryDisabled = errors.New("snapshot history is disabled")
)

// Persistence stores the snapshot file on a go-billy filesystem and, when
// history is enabled, commits every save to a Git repository next to it.
type Persistence struct {
	fs           billy.Filesystem
	repo         *git.Repository
	snapshotPath string
	isMemoryMode bool
	mu           sync.RWMutex
}

type Option func(*options)

type options struct {
	snapshotPath string
	history      bool
	gitUrl       *string
}

// WithSnapshotPath sets the snapshot file name relative to the data directory.
func WithSnapshotPath(name string) Option {
	return func(o *options) {
		o.snapshotPath = name
	}
}

// WithHistory enables or disables Git history for every save.
func WithHistory(enabled bool) Option {
	return func(o *options) {
		o.history = enabled
	}
}

// WithClone initializes the history repository by cloning gitUrl.
func WithClone(gitUrl string) Option {
	return func(o *options) {
		o.gitUrl = &gitUrl
		o.history = true
	}
}

func buildOptions(opts []Option) options {
	o := options{snapshotPath: DefaultSnapshotPath, history: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// IsInitialized returns true if the persistence layer has a filesystem
func (p *Persistence) IsInitialized() bool {
	return p != nil && p.fs != nil
}

// HasHistory returns true if saves are committed to Git
func (p *Persistence) HasHistory() bool {
	return p.IsInitialized() && p.repo != nil
}

func (p *Persistence) ensureInitialized() error {
	if !p.IsInitialized() {
		return ErrNotInitialized
	}
	return nil
}

func (p *Persistence) ensureHistory() error {
	if err := p.ensureInitialized(); err != nil {
		return err
	}
	if p.repo == nil {
		return ErrHistoryDisabled
	}
	return nil
}

// IsMemory reports whether the store lives only in memory.
func (p *Persistence) IsMemory() bool {
	return p.isMemoryMode
}

// SnapshotPath returns the snapshot file name relative to the data directory.
func (p *Persistence) SnapshotPath() string {
	return p.snapshotPath
}

func NewMemoryPersistence(opts ...Option) (*Persistence, error) {
	o := buildOptions(opts)
	wt := memfs.New()

	persistence := &Persistence{
		fs:           wt,
		snapshotPath: o.snapshotPath,
		isMemoryMode: true,
	}

	if o.history {
		repo, err := git.Init(memory.NewStorage(), git.WithWorkTree(wt))
		if err != nil {
			return nil, err
		}
		persistence.repo = repo
	}

	return persistence, nil
}

func NewFilePersistence(baseDir string, opts ...Option) (*Persistence, error) {
	o := buildOptions(opts)

	// Ensure base directory exists
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}

	wt := osfs.New(baseDir)
	persistence := &Persistence{
		fs:           wt,
		snapshotPath: o.snapshotPath,
	}

	if !o.history {
		return persistence, nil
	}

	fs, err := wt.Chroot(".git")
	if err != nil {
		return nil, err
	}

	storer := filesystem.NewStorageWithOptions(
		fs,
		cache.NewObjectLRUDefault(),
		filesystem.Options{ExclusiveAccess: true})

	var repo *git.Repository

	if o.gitUrl != nil {
		repo, err = git.Clone(storer, wt, &git.CloneOptions{
			URL: *o.gitUrl,
		})
		if err != nil {
			return nil, err
		}
	} else {
		_, statErr := os.Stat(fs.Root())
		if statErr != nil {
			// Directory doesn't exist, initialize new repo
			repo, err = git.Init(storer, git.WithWorkTree(wt))
			if err != nil {
				return nil, err
			}
		} else {
			// Directory exists, open existing repo
			repo, err = git.Open(storer, wt)
			if err != nil {
				return nil, err
			}
		}
	}

	persistence.repo = repo
	return persistence, nil
}

// Save replaces the snapshot file with data and, with history enabled,
// commits it. The returned transaction has an empty Id without history.
func (p *Persistence) Save(data []byte, identity core.Identity, message string) (Transaction, error) {
	if err := p.ensureInitialized(); err != nil {
		return Transaction{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.writeFileAtomic(p.snapshotPath, data); err != nil {
		return Transaction{}, fmt.Errorf("failed to write snapshot: %w", err)
	}

	if p.repo == nil {
		return Transaction{When: time.Now(), Author: identity.String(), Message: message}, nil
	}

	txn, err := p.commitSnapshot(data, identity, message)
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return txn, nil
}

// Load returns the current snapshot, or nil when none has been written yet.
func (p *Persistence) Load() ([]byte, error) {
	if err := p.ensureInitialized(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	data, err := p.readFile(p.snapshotPath)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	// A cloned repository may not have checked the file out.
	if p.repo != nil {
		if data, err := p.ReadFileDirect(p.snapshotPath); err == nil {
			return data, nil
		}
	}

	return nil, nil
}

// writeFileAtomic writes data to a temporary file and renames it into place.
func (p *Persistence) writeFileAtomic(name string, data []byte) error {
	dir := path.Dir(name)
	if dir != "." {
		if err := p.fs.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	tmp, err := p.fs.TempFile(dir, "."+path.Base(name)+"-")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		p.fs.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		p.fs.Remove(tmpName)
		return err
	}

	if err := p.fs.Rename(tmpName, name); err != nil {
		// Some filesystems refuse to rename onto an existing file.
		if removeErr := p.fs.Remove(name); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			p.fs.Remove(tmpName)
			return err
		}
		if err := p.fs.Rename(tmpName, name); err != nil {
			p.fs.Remove(tmpName)
			return err
		}
	}

	return nil
}

func (p *Persistence) readFile(name string) ([]byte, error) {
	file, err := p.fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}
