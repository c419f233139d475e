// Package storage provides a minimal persistence layer for sync state.
//
// It currently supports:
//   - Sync run history appends
//   - Last-upserted payload hash per external event id (powers the
//     skip-unchanged optimization)
package storage
