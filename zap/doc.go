// Package zap provides a zap-backed implementation of the log.Logger
// interface used across cauldron packages.
package zap
