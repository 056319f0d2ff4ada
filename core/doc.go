// Package core provides core types used throughout AdOrchDB.
//
// The package defines fundamental types like Record, Identity and Clock,
// the value normalisation rules every stored field passes through, and
// the names of the built-in collections.
//
// # Identity
//
// Identity identifies the author of snapshot commits (Git commit author):
//
//	identity := core.Identity{
//	    Name:  "Review Bot",
//	    Email: "review@adorch.local",
//	}
//
// # Values
//
// A Record maps field names to normalised values:
//   - nil
//   - int64 for integral numbers
//   - float64 for fractional numbers
//   - string, including timestamps in RFC 3339 UTC form
//   - bool
//   - json.RawMessage for nested objects and arrays
//
// Any other Go value is converted by Normalize before it is stored. Values a
// snapshot cannot hold exactly (NaN, infinities, invalid UTF-8, malformed
// blobs) fail with ErrInvalidValue.
package core
