// Package process starts the supervised program and watches it.
//
// Spawn resolves the configured output streams, prepares the working
// directory and environment, lets a process group adjust the command before
// it starts, and returns a Handle. Each Handle owns exactly one goroutine
// that waits on the child; Done is closed when the child has exited and its
// exit code is final.
//
// Terminate asks the child to stop: SIGTERM to its process group on unix,
// TerminateProcess on Windows. Kill is unconditional. Both are safe to call
// after the child has exited.
package process
