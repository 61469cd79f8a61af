// Package aio implements a ring based asynchronous execution engine.
//
// Producers publish SubmissionEntry records into a bounded submission ring;
// a single engine goroutine drains them, resolves fixed resources, stages
// Request records from a pooled arena and issues them through per-opcode
// handlers. Work that would block moves to bound workers keyed by target or
// to the shared executors; pollable handles park on the readiness poller
// instead. Results come back as CompletionEntry records through a bounded
// completion ring with lossless overflow.
//
// Every submission that yields a Request terminates in exactly one terminal
// completion, including cancellation and engine shutdown.
package aio
