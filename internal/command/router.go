package command

import (
	"fmt"
)

// Mapping binds one specification token to a destination id.
type Mapping struct {
	SpecificationToken string
	DestinationID      string
}

// Router maps a device's specification token to the destination its
// commands should be delivered through. Devices whose token has no
// explicit mapping (including devices with no token at all) fall through
// to the default destination.
//
// The routing table is immutable after construction, so Route needs no
// locking.
type Router struct {
	bySpec     map[string]*Destination
	defaultDst *Destination
}

// NewRouter builds a router from a mapping table and a default destination
// id. All referenced destination ids must be present in destinations;
// dangling references and duplicate specification tokens fail construction.
//
// Parameters:
//   - mappings: Specification token to destination id pairs
//   - defaultID: Destination for unmapped tokens (required)
//   - destinations: Registered destinations keyed by id
//
// Returns:
//   - *Router: Immutable router
//   - error: ErrNoDefaultDestination, ErrUnknownDestination, or
//     ErrDuplicateMapping
func NewRouter(mappings []Mapping, defaultID string, destinations map[string]*Destination) (*Router, error) {
	if defaultID == "" {
		return nil, ErrNoDefaultDestination
	}
	defaultDst, ok := destinations[defaultID]
	if !ok {
		return nil, fmt.Errorf("%w: default %q", ErrUnknownDestination, defaultID)
	}

	bySpec := make(map[string]*Destination, len(mappings))
	for _, m := range mappings {
		if _, seen := bySpec[m.SpecificationToken]; seen {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateMapping, m.SpecificationToken)
		}
		dst, ok := destinations[m.DestinationID]
		if !ok {
			return nil, fmt.Errorf("%w: %q mapped from specification %q",
				ErrUnknownDestination, m.DestinationID, m.SpecificationToken)
		}
		bySpec[m.SpecificationToken] = dst
	}

	return &Router{bySpec: bySpec, defaultDst: defaultDst}, nil
}

// Route returns the destination for the given specification token. An
// unmapped or empty token routes to the default destination; Route never
// fails.
func (r *Router) Route(specToken string) *Destination {
	if dst, ok := r.bySpec[specToken]; ok {
		return dst
	}
	return r.defaultDst
}

// Destinations returns the number of distinct mapped specification tokens.
func (r *Router) Destinations() int {
	return len(r.bySpec)
}
