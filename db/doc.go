// Package db is the query interpreter and transaction coordinator of the
// record store.
//
// The Engine owns the store. Textual statements are classified by the sql
// package and run against it; structural statements can be built directly.
//
// # Textual statements
//
//	engine := db.NewEngine(persistence, identity)
//	if err := engine.Load(); err != nil {
//	    log.Fatal(err)
//	}
//	approval, err := engine.LookupOne("SELECT * FROM approvals WHERE id = ?", 3)
//	result, err := engine.Mutate("UPDATE approvals SET status = ? WHERE id = ?", "approved", 3)
//
// # Transactions
//
// RunTransaction holds the engine for the whole function and saves the store
// once when it returns nil:
//
//	_, err := engine.RunTransaction(ctx, func(tx *db.Tx) error {
//	    _, err := tx.Exec(sql.UpdateByID(core.Approvals, 3, sql.Fields{"status": "approved"}))
//	    return err
//	})
//
// A failing function skips the save, but mutations it already applied stay
// in memory.
//
// # Result Types
//
//   - QueryResult: rows of a fetch or count, for display
//   - MutationResult: affected count, inserted id and the save it produced
package db
