// Package session tracks the persistence context and transaction state that
// repositories write through. A Session decides, per mutation, whether the
// store flushes immediately or holds the change until an explicit commit.
package session
