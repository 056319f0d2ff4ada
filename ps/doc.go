// Package ps provides the persistence layer for the record store.
//
// The whole store is kept as one JSON snapshot file on a go-billy
// filesystem. Every save replaces the file atomically. With history enabled
// (the default) the same bytes are also committed to a Git repository using
// go-git plumbing, so every save is a transaction that can be listed,
// tagged and restored.
//
// # Memory Persistence
//
// For testing or ephemeral stores:
//
//	persistence, err := ps.NewMemoryPersistence()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # File Persistence
//
// For persistent storage:
//
//	persistence, err := ps.NewFilePersistence("/path/to/data")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Snapshots
//
// A save can be tagged and restored later. Restoring writes the old
// snapshot as a new save:
//
//	persistence.Snapshot("before-import", nil)
//	txn, _ := persistence.Recover("before-import", identity)
//
// # Mirroring
//
// FetchSnapshot and PublishSnapshot copy snapshot bytes from and to local
// paths, HTTP URLs and S3 buckets.
package ps
