package ps

import (
	"fmt"
	"sort"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/nickyhof/AdOrchDB/core"
)

// Snapshot tags the given save, or the latest one when asof is nil.
func (persistence *Persistence) Snapshot(name string, asof *Transaction) error {
	if err := persistence.ensureHistory(); err != nil {
		return err
	}

	var hash plumbing.Hash
	if asof != nil {
		hash = plumbing.NewHash(asof.Id)
	} else {
		headRef, err := persistence.repo.Head()
		if err != nil {
			return fmt.Errorf("nothing saved yet")
		}
		hash = headRef.Hash()
	}

	if _, err := persistence.repo.CreateTag(name, hash, nil); err != nil {
		return fmt.Errorf("failed to create snapshot '%s': %w", name, err)
	}
	return nil
}

// Snapshots lists the snapshot names in lexical order.
func (persistence *Persistence) Snapshots() ([]string, error) {
	if err := persistence.ensureHistory(); err != nil {
		return nil, err
	}

	tags, err := persistence.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	var names []string
	err = tags.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	sort.Strings(names)
	return names, nil
}

// SnapshotAt returns the snapshot file as it was stored by the given save.
func (persistence *Persistence) SnapshotAt(asof Transaction) ([]byte, error) {
	if err := persistence.ensureHistory(); err != nil {
		return nil, err
	}

	persistence.mu.RLock()
	defer persistence.mu.RUnlock()

	return persistence.readFileAt(plumbing.NewHash(asof.Id), persistence.snapshotPath)
}

// Restore writes the snapshot of an earlier save back as a new save. History
// after asof is kept.
func (persistence *Persistence) Restore(asof Transaction, identity core.Identity) (Transaction, error) {
	data, err := persistence.SnapshotAt(asof)
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to restore %s: %w", asof.Id, err)
	}

	return persistence.Save(data, identity, fmt.Sprintf("restore %s", asof.Id))
}

// Recover restores the save tagged by a snapshot name.
func (persistence *Persistence) Recover(name string, identity core.Identity) (Transaction, error) {
	if err := persistence.ensureHistory(); err != nil {
		return Transaction{}, err
	}

	ref, err := persistence.repo.Tag(name)
	if err != nil {
		return Transaction{}, fmt.Errorf("unknown snapshot '%s': %w", name, err)
	}

	return persistence.Restore(Transaction{Id: ref.Hash().String()}, identity)
}
