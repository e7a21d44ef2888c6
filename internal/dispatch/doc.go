// Package dispatch implements the server side of the datagram RPC layer:
// it binds the well-known socket path, decodes request envelopes, and runs
// registered handlers under per-request deadlines.
//
// # Pipeline
//
// Each received datagram passes through, in order:
//
//   - decode: malformed payloads are dropped, or answered with a parse
//     error when the raw JSON still yields a reply address
//   - envelope check: a decoded request without id or command is rejected
//     as an invalid request
//   - routing: the command must have a registered handler, otherwise the
//     caller gets a method-not-found error
//   - validation: when a manifest engine is attached, arguments are
//     checked against the command's declared specs and defaults are
//     substituted; a failing argument rejects the request before the
//     handler runs
//   - execution: the handler races a timer set to the request's declared
//     timeout (or the server default); the first outcome wins and the
//     loser is discarded
//
// A request that carried a reply address receives exactly one response; a
// request without one receives none, whatever the outcome.
//
// # Deadlines
//
// The handler receives a context cancelled at the request deadline, so
// cooperative handlers stop early. A handler that keeps running after the
// timer wins is abandoned: it still holds its concurrency slot until it
// returns, but its result goes nowhere. This mirrors the client, which
// abandons the reply socket at the same deadline.
//
// # Concurrency
//
// The receive loop never blocks on handler work; each datagram is
// processed in its own goroutine. Handler executions are bounded by a
// fixed-size slot pool, and a request arriving while all slots are busy is
// rejected with a resource-limit error rather than queued.
package dispatch
