// Package backoff provides exponential delay calculation with jitter and a
// context-aware sleep, used to pace reconnect attempts and periodic
// background loops.
package backoff
