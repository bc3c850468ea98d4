package edgevec

import (
	"errors"

	"github.com/edgevec/edgevec/pkg/filter"
	"github.com/edgevec/edgevec/pkg/hnsw"
	"github.com/edgevec/edgevec/pkg/persistence"
	"github.com/edgevec/edgevec/pkg/vectorstore"
)

// Error kinds, re-exported from the package that naturally originates
// them so a caller that only imports pkg/edgevec sees one coherent set
// of sentinels without reaching into lower layers.
var (
	ErrDimensionMismatch = vectorstore.ErrDimensionMismatch
	ErrInvalidVector     = vectorstore.ErrInvalidVector
	ErrInvalidId         = vectorstore.ErrInvalidId
	ErrInternal          = hnsw.ErrInternal
	ErrCorruptSnapshot   = persistence.ErrCorruptSnapshot

	// ErrEmptyBatch is raised by BatchInsert when given zero vectors.
	ErrEmptyBatch = errors.New("edgevec: batch insert requires at least one vector")
	// ErrMemoryCritical is raised when an insert is rejected because the
	// memory governor's pressure level is critical and
	// Config.BlockInsertsAtCritical is set.
	ErrMemoryCritical = errors.New("edgevec: insert rejected, memory pressure is critical")
	// ErrBQNotEnabled is raised by SearchBQ/SearchBQRescored when
	// Config.BQEnabled is false or the index shape has no graph to
	// navigate (ShapeFlat, ShapeBinaryFlat).
	ErrBQNotEnabled = errors.New("edgevec: binary quantization is not enabled for this index")
	// ErrNoBackend is raised by Save when the index was built with New
	// (in-memory only) instead of Open.
	ErrNoBackend = errors.New("edgevec: index has no persistence backend, open it with Open to enable Save")

	// FilterSyntax and FilterTypeMismatch are surfaced through
	// pkg/filter's own types rather than duplicated here: a parse
	// failure is a *filter.SyntaxError (use errors.As), and an
	// evaluator type conflict never errors at all: it is recovered as
	// a per-row false.
)

// IsSyntaxError reports whether err is a filter grammar failure, and
// returns the structured diagnostic if so.
func IsSyntaxError(err error) (*filter.SyntaxError, bool) {
	var synErr *filter.SyntaxError
	if errors.As(err, &synErr) {
		return synErr, true
	}
	return nil, false
}
