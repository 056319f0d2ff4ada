package ps

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/filemode"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/nickyhof/AdOrchDB/core"
)

// Snapshot commits are written straight into the object store: a blob for
// the snapshot file, the trees on its path, and a commit on top of HEAD. The
// worktree is never consulted.

type encoder interface {
	Encode(plumbing.EncodedObject) error
}

func (p *Persistence) storeObject(value encoder) (plumbing.Hash, error) {
	obj := p.repo.Storer.NewEncodedObject()
	if err := value.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return p.repo.Storer.SetEncodedObject(obj)
}

func (p *Persistence) storeBlob(data []byte) (plumbing.Hash, error) {
	obj := p.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(data)))

	writer, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	_, err = writer.Write(data)
	if closeErr := writer.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return plumbing.ZeroHash, err
	}

	return p.repo.Storer.SetEncodedObject(obj)
}

// head returns the HEAD commit, or nil before the first save.
func (p *Persistence) head() (*object.Commit, error) {
	ref, err := p.repo.Head()
	if err != nil {
		return nil, nil
	}
	commit, err := p.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to read head commit: %w", err)
	}
	return commit, nil
}

// placeBlob returns a tree equal to base with blob stored at path. A zero base
// is an empty tree.
func (p *Persistence) placeBlob(base plumbing.Hash, path []string, blob plumbing.Hash) (plumbing.Hash, error) {
	var entries []object.TreeEntry
	if base != plumbing.ZeroHash {
		tree, err := object.GetTree(p.repo.Storer, base)
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("failed to read tree: %w", err)
		}
		entries = slices.Clone(tree.Entries)
	}

	name := path[0]
	entry := object.TreeEntry{Name: name, Mode: filemode.Regular, Hash: blob}

	index := slices.IndexFunc(entries, func(e object.TreeEntry) bool { return e.Name == name })
	if len(path) > 1 {
		subtree := plumbing.ZeroHash
		if index >= 0 && entries[index].Mode == filemode.Dir {
			subtree = entries[index].Hash
		}
		hash, err := p.placeBlob(subtree, path[1:], blob)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entry = object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: hash}
	}

	if index >= 0 {
		entries[index] = entry
	} else {
		entries = append(entries, entry)
	}
	slices.SortFunc(entries, func(a, b object.TreeEntry) int {
		return strings.Compare(treeSortKey(a), treeSortKey(b))
	})

	return p.storeObject(&object.Tree{Entries: entries})
}

// treeSortKey orders entries the way git does: directories as if their name
// ended in a slash.
func treeSortKey(entry object.TreeEntry) string {
	if entry.Mode == filemode.Dir {
		return entry.Name + "/"
	}
	return entry.Name
}

// commitSnapshot records data at the snapshot path in a new commit on top of
// HEAD and moves the current branch to it.
func (p *Persistence) commitSnapshot(data []byte, identity core.Identity, message string) (Transaction, error) {
	parent, err := p.head()
	if err != nil {
		return Transaction{}, err
	}

	blob, err := p.storeBlob(data)
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to store snapshot blob: %w", err)
	}

	base := plumbing.ZeroHash
	var parents []plumbing.Hash
	if parent != nil {
		base = parent.TreeHash
		parents = []plumbing.Hash{parent.Hash}
	}

	tree, err := p.placeBlob(base, strings.Split(p.snapshotPath, "/"), blob)
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to build tree: %w", err)
	}

	signature := object.Signature{Name: identity.Name, Email: identity.Email, When: time.Now()}
	hash, err := p.storeObject(&object.Commit{
		Author:       signature,
		Committer:    signature,
		Message:      message,
		TreeHash:     tree,
		ParentHashes: parents,
	})
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to store commit: %w", err)
	}

	branch := p.currentBranch()
	if err := p.repo.Storer.SetReference(plumbing.NewHashReference(branch, hash)); err != nil {
		return Transaction{}, fmt.Errorf("failed to move %s: %w", branch.Short(), err)
	}

	return Transaction{
		Id:      hash.String(),
		When:    signature.When,
		Author:  identity.String(),
		Message: message,
	}, nil
}

// currentBranch is the branch HEAD points at, born or not. A detached HEAD
// saves onto master.
func (p *Persistence) currentBranch() plumbing.ReferenceName {
	head, err := p.repo.Storer.Reference(plumbing.HEAD)
	if err == nil && head.Type() == plumbing.SymbolicReference {
		return head.Target()
	}
	return plumbing.Master
}

// ReadFileDirect reads a file from the HEAD tree, bypassing the worktree.
func (p *Persistence) ReadFileDirect(filePath string) ([]byte, error) {
	if err := p.ensureHistory(); err != nil {
		return nil, err
	}

	commit, err := p.head()
	if err != nil {
		return nil, err
	}
	if commit == nil {
		return nil, fmt.Errorf("nothing saved yet")
	}
	return readCommitFile(commit, filePath)
}

func (p *Persistence) readFileAt(hash plumbing.Hash, filePath string) ([]byte, error) {
	commit, err := p.repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("unknown commit %s: %w", hash, err)
	}
	return readCommitFile(commit, filePath)
}

func readCommitFile(commit *object.Commit, filePath string) ([]byte, error) {
	file, err := commit.File(filePath)
	if err != nil {
		return nil, fmt.Errorf("%s not in commit %s: %w", filePath, commit.Hash, err)
	}

	reader, err := file.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(reader)
}
