// Package sql classifies the statements AdOrchDB accepts.
//
// Statements are not parsed against a grammar. The lexer tokenizes the text
// and the parser locates the target collection and a closed set of predicate
// shapes. Anything outside that set is reported as Unsupported and left to
// the engine's policy.
//
// # Text Statements
//
//	statement, err := sql.Parse("SELECT COUNT(*) AS count FROM approvals WHERE status = ?")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	count := statement.(sql.Count) // Where: sql.Equals{Column: "status", Value: sql.Param(0)}
//
// In an INSERT whose VALUES list has one entry per column, literals are bound
// directly and only ? slots consume parameters, left to right:
//
//	INSERT INTO approvals (status, priority, asset_id) VALUES ('pending', ?, ?)
//
// Without such a list, parameters bind to the columns by position.
//
// # Structural Statements
//
// Callers that know their intent build statements directly, which avoids
// the silent degradation of unrecognized text:
//
//	sql.InsertInto("approvals", sql.Fields{"status": "pending", "current_step": 0})
//	sql.UpdateByID("approvals", 7, sql.Fields{"status": "approved"})
//	sql.DeleteByID("notifications", 3)
//	sql.FindWhere("approval_steps", "approval_id", 7)
//	sql.CountWhere("approvals", sql.PendingDeadlineBefore(deadline))
//
// # Statement Kinds
//
//   - Find: multi-row fetch or point lookup
//   - Count: COUNT(*) with an optional predicate
//   - Insert, Update, Delete
//
// # Predicates
//
//   - None
//   - Equals: column = ? or column = literal
//   - DeadlineBefore: sla_deadline < ? with an optional status filter
//   - Unsupported: any other WHERE clause, text statements only
package sql
