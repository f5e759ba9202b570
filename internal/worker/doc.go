// Package worker runs appauth's network calls on a small bounded pool.
//
// Work is submitted with Submit and completes through a Future. The pool
// never runs more than its configured number of tasks at once; further
// submissions wait for a free slot without blocking the caller.
//
// On top of the pool, Request implements the minimal HTTP contract the
// authorization flow needs (url, method, headers, body and timeout in;
// status, body text and error out), and GetJSON performs a bearer
// authenticated GET against a resource server. Calls carry their own
// timeout and are never retried.
//
// Network failures are reported with the sentinel status StatusNoConnection.
// StatusNeedsReauthorization marks a call that was not attempted because no
// usable access token exists.
package worker
