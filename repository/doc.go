// Package repository provides a generic repository bound to a session: CRUD,
// lookups by key, counting, filtered and paged listing, and a composable
// query for everything else. Mutations report whether they were flushed or
// staged in the session's open transaction.
package repository
