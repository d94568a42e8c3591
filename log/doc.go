// Package log defines the logging interface and typed fields used across
// cauldron packages.
//
// Adapters (such as the zap package) implement Logger so the datastore
// layers stay decoupled from any concrete logging backend.
package log
