// Package rendercache persists the active visualization so a session can
// resume after a restart.
package rendercache

import "vizflow/internal/viz"

// Cache is a single-slot store for the last rendered artifact of one
// session. The only eviction is Clear; the last Save wins.
type Cache interface {
	Save(a viz.Artifact) error
	Load() (viz.Artifact, bool, error)
	Clear() error
	Close() error
}
