// Package store provides TokenStore implementations for the auth client:
// an in-process memory store, an encrypted JSON file store for single-user
// clients, a Redis-backed store for processes that share credentials, and a
// Bun/SQLite store for applications that already carry a local database.
//
// Every store is a passive persistence boundary. Consistency rules (what a
// valid session implies, when tokens are cleared) live in the session and
// client layers; stores only hold what they are given.
package store
