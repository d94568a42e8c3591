// Package runtime provides panic-safe goroutine launching and recovery
// helpers for background work.
//
// Long-running loops (idle-connection eviction, fire-and-forget
// diagnostics) are launched through SafeGoWithContextAndComponent so a
// panic in one worker is recovered, logged with its stack, and optionally
// restarted, instead of crashing the process. Shutdown is explicit: the
// caller owns the context that cancels the worker.
package runtime
