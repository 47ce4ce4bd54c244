// Package relay implements the relaychat server: the per-connection session
// loop, the registry of connected clients, and the fan-out task that
// re-encrypts each relay message for every recipient.
//
// Concurrency model:
//   - one goroutine per accepted connection (Session)
//   - exactly one fan-out goroutine per Server, the only writer on the
//     broadcast path
//   - the Registry is the only state shared between them; its lock is never
//     held across network I/O
//
// Sessions hand relay messages to the fan-out through a bounded queue. When
// the queue is full, Publish blocks, which slows every producer down to the
// speed of the slowest delivery.
//
// Direct messages share the Data frame with chat lines. A plaintext of the
// form "DM:<target> <text>" is always routed to <target> alone, or answered
// with "* No such client: <target>" when nobody is registered under that ID;
// it is never broadcast. A client that wants the literal text relayed to
// everyone must not start it with "DM:" followed by a word and a space.
// Anything else, including "DM:" with no target or no space, is broadcast as
// "<id>: <text>".
package relay
