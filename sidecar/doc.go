/*
Package sidecar launches the desktop application's background server process and turns its output into a stream of typed events.

The child's stdout and stderr are read line by line, each on its own goroutine, and delivered on a single channel in the order they were read. Lines within one stream keep their order; lines from the two streams interleave as the OS delivers them.

When both streams reach EOF the process is waited on, and a Terminated event carrying the exit code is sent. Terminated is always the last event; the channel is closed right after it.

Cancelling the context passed to Start kills the child. Consumers that stop reading events before the channel closes must cancel that context, otherwise the reader goroutines block.
*/
package sidecar
