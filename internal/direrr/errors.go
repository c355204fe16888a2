// Package direrr defines sentinel errors shared across the dispatcher, matching the
// disposition table of spec.md §7.
package direrr

import "errors"

var (
	// ErrPeerClosed means a frame read returned zero bytes mid-session (spec.md §7:
	// "Peer close mid-frame"). The session aborts; it is not itself fatal to the process.
	ErrPeerClosed = errors.New("direrr: peer closed connection")

	// ErrMalformedMessage means control or scene text could not be parsed.
	ErrMalformedMessage = errors.New("direrr: malformed protocol message")

	// ErrTracerCompute means a tracer's Compute call failed; that worker exits, the
	// session still completes with missing task IDs.
	ErrTracerCompute = errors.New("direrr: tracer compute failed")

	// ErrCloudNetwork means the cloud tracer's connection failed; remaining tasks are
	// dropped, its summary is still emitted, other tracers continue.
	ErrCloudNetwork = errors.New("direrr: cloud network error")
)
