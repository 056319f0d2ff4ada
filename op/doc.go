// Package op holds the record store of AdOrchDB.
//
// The op package sits between the statement engine (db/) and the persistence
// layer (ps/). It keeps every collection in memory and converts the whole
// store to and from the snapshot that ps writes.
//
// # DatabaseOp
//
// DatabaseOp is the arena of named collections:
//
//	store := op.NewDatabase()                   // built-in collections, empty
//	approvals, err := store.GetTable("approvals")
//	names := store.TableNames()                  // snapshot order
//
// # TableOp
//
// TableOp is one collection with its auto-increment counter:
//
//	record, _ := approvals.Insert(core.Record{"status": "pending"}, now)
//	record, exists := approvals.Get(record.ID())
//	approvals.Update(record.ID(), core.Record{"status": "approved"}, now)
//	approvals.Delete(record.ID())
//
//	for id, record := range approvals.ScanWithFilter(func(r core.Record) bool {
//	    return r.String("status") == "pending"
//	}) {
//	    // process pending approvals
//	}
//
// # Snapshots
//
//	data, err := store.EncodeSnapshot()
//	restored, err := op.DecodeSnapshot(data)
//
// # Architecture
//
// The layering is:
//
//	Statement classifier (sql/)
//	     ↓
//	Engine (db/)
//	     ↓
//	Record store (op/)     ← This package
//	     ↓
//	Persistence (ps/)
//	     ↓
//	Git Storage (go-git)
package op
