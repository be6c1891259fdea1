// Package storage keeps a history of scheduler fires.
//
// Only what happened is recorded (fired, done, failed, removed). Event
// definitions are never persisted; a restarted process starts with the
// events its config declares.
//
// Drivers:
//   - "file": JSON Lines, compacted to the retention limit
//   - "sqlite": modernc.org/sqlite, no cgo required
package storage
