// Package session owns per-session conversation history in memory.
//
// Invariants:
// - Index 0 of every history is the instruction message and is never
//   evicted by trimming.
// - After trimming, history length is bounded by maxMessages plus the
//   pinned instruction message.
// - Mutations of one session are serialized; sessions are independent.
// - A session resolved without an identifier is never registered and is
//   unreachable by any later call.
//
// Usage:
//
//	store := session.NewStore(session.Config{MaxMessages: 20, Instruction: "You are helpful."})
//	sess := store.Resolve("s1")
//	store.Append("s1", chat.Message{Role: chat.RoleUser, Content: "hello"})
//	_ = sess.History()
package session
