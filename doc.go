// Package optin implements a double opt-in workflow: agents register an
// acceptance period and an optional callback, sessions create pending
// entries bound to a random token, and token verification resolves each
// entry exactly once.
//
// Entry lifecycle:
//   - StartSession stores a pending Entry with a 24 character token drawn
//     from TokenAlphabet. Deliver the token (for example in a link carrying
//     the TokenQueryKey parameter) through your own channel.
//   - VerifyToken looks up the pending entry owning the token. Within the
//     agent's acceptance period it moves to opted-in and the agent callback
//     runs; after it, the entry moves to expired. Resolved tokens behave as
//     unknown ones.
//   - Entries whose agent is no longer registered are left pending so a
//     later registration can still confirm them.
//
// Storage:
//   - EntryStore is implemented by the Bun repository returned from
//     NewEntriesRepository and by MemoryStore. UpdateStatus is conditional on
//     the previous status, which keeps concurrent verifications from firing
//     a callback twice.
//
// Activity sinks:
//   - ActivitySink receives session, confirmation and expiry events. Sinks
//     run best-effort (errors are logged). See the activitymap and metrics
//     packages for ready-made consumers.
package optin
