// Package ui renders jitstub terminal output with Lipgloss and Bubble Tea.
//
// Most commands print once and exit: a Header before a run, a Result box
// after it, and a Confirm prompt before destructive config changes. All of
// these go through a Printer so tests can capture them.
//
// "jitstub watch" is the one interactive screen. WatchModel shows the live
// counters of a remote session and a scrollable table of mapped regions,
// newest first. RunWatch wires it to any SubscribeFunc, normally
// server.Watch.
//
// Logging is controlled separately through JITSTUB_LOG_LEVEL. When it is
// unset zap is silent and only this package writes to the terminal.
package ui
