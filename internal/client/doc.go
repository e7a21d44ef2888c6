// Package client implements the request side of the datagram RPC
// protocol: building requests, correlating responses, and enforcing
// timeouts.
//
// Each request that expects a reply binds its own ephemeral unixgram
// socket and advertises that path in the request's reply_to field. The
// server answers the request by sending one datagram to that path.
// Binding per request keeps correlation trivial (only one response can
// ever arrive at an address) and lets independent requests resolve
// without sharing a channel.
//
// # Lifecycle
//
// A request moves through Created -> Sent and ends in exactly one of
// Completed, TimedOut, or Cancelled. The transitions are one-shot: a
// response arriving after the deadline fired, or after the caller
// cancelled, is discarded. Cancelling an already-resolved request is a
// no-op.
//
// # Usage
//
//	c, err := client.New("/tmp/sockrpc.sock")
//	if err != nil { ... }
//	defer c.Close()
//
//	// Synchronous call
//	resp, err := c.Call(ctx, "createWorkspace",
//		map[string]interface{}{"name": "lib-1"}, 5*time.Second)
//
//	// Asynchronous call with a handle
//	h, err := c.Send("build", args, 0)
//	...
//	resp, err = h.Wait(ctx)
//
//	// Fire-and-forget
//	err = c.Notify("log", map[string]interface{}{"line": "started"})
//
// Timeouts are bilateral: the server races the handler against the same
// deadline the client arms locally, so both sides observe the expiry
// independently. A timeout surfaces to the caller as a structured error
// and, if configured, through the client's timeout callback.
package client
