// Package artifact persists completed pipeline stages. The engine only
// ever appends batches; reading artifacts back is a host concern, so
// the read helpers live on the concrete stores rather than the
// interface.
package artifact

import (
	"uplift/internal/pipeline"
)

// Store is the persistence contract the analysis engine writes through.
type Store interface {
	pipeline.ArtifactStore
	Close() error
}
