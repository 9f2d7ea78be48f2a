// Package log is a thin wrapper around the standard library logger that gives
// every component of cmsmirror its own named logger.
//
// Each line carries a level and a `[name>]` marker so output from the syncer,
// the API and the scheduler can be told apart with grep:
//
//	2026/10/18 09:12:01.000123 INFO [syncer>] synced 3 collections (412 items)
//
// Debug lines are dropped unless debug is enabled globally (SetGlobalDebug,
// wired to the --debug flag) or for a single logger (EnableDebugFor).
//
// Tests redirect output with SetOutput and assert on the buffer contents.
//
// The package name collides with the standard library; alias one of them when
// both are needed.
package log
