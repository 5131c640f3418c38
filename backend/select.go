package backend

import (
	"fmt"

	cargoerrors "github.com/cargohold-io/cargohold/errors"
)

// Policy holds the resolved backend configuration the selection decision
// depends on. Values come from collaborator-supplied configuration; nothing
// here is read from process-wide state.
type Policy struct {
	// SimpleEnabled and ChunkedEnabled gate each backend.
	SimpleEnabled  bool
	ChunkedEnabled bool

	// ForceSimple routes any unit that fits to the Simple backend.
	// ForceChunked skips the Simple backend even for units that fit.
	ForceSimple  bool
	ForceChunked bool

	// SimpleLimit and ChunkedLimit are the per-object ceilings.
	SimpleLimit  int64
	ChunkedLimit int64
}

// DefaultPolicy returns a policy with both backends enabled at their
// default ceilings and no overrides.
func DefaultPolicy() Policy {
	return Policy{
		SimpleEnabled:  true,
		ChunkedEnabled: true,
		SimpleLimit:    DefaultSimpleLimit,
		ChunkedLimit:   DefaultChunkedLimit,
	}
}

// Select picks the backend for a unit of the given size. It is a pure
// function of its inputs: identical inputs always yield the identical
// choice. Rules are evaluated in order:
//
//  1. force-simple override and the unit fits the Simple ceiling → Simple
//  2. the unit fits the Simple ceiling, Simple is enabled, and no
//     force-chunked override → Simple
//  3. the unit fits the Chunked ceiling and Chunked is enabled → Chunked
//  4. otherwise the unit is rejected with a size limit error, before any
//     network call is attempted
func Select(size int64, pol Policy) (Kind, error) {
	if pol.ForceSimple && size <= pol.SimpleLimit {
		return KindSimple, nil
	}
	if size <= pol.SimpleLimit && pol.SimpleEnabled && !pol.ForceChunked {
		return KindSimple, nil
	}
	if size <= pol.ChunkedLimit && pol.ChunkedEnabled {
		return KindChunked, nil
	}
	return "", cargoerrors.New("select",
		fmt.Errorf("%w: %d bytes exceeds every available backend ceiling", cargoerrors.ErrSizeLimit, size))
}
