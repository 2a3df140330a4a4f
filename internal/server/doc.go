// Package server hosts the Fiber HTTP service and its middleware chain:
// panic recovery, per-request IDs and a catch-all route that hands every
// non-diagnostics request to the image handler. Diagnostics endpoints live in
// the routes subpackage and are mounted under /-/ by the caller.
package server
