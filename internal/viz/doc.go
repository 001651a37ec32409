// Package viz holds the value types shared by the visualization workflow:
// goals, candidate title sets, rendered artifacts, evaluation rows, and the
// error taxonomy every layer reports failures with.
//
// Values here are immutable once built. Nothing in this package talks to the
// network or to storage.
package viz
