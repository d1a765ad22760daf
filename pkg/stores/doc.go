// Package stores provides the host registry: the inventory of target hosts
// and the deployment root path of each one.
//
// SQLiteRegistry persists the inventory in a SQLite database (pure Go
// driver, WAL mode) with schema migrations embedded in the binary.
// MemoryRegistry is a map-backed implementation for tests and for callers
// that assemble the inventory in code.
package stores
