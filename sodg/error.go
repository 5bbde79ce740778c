package sodg

import "golang.org/x/xerrors"

var (
	// ErrDuplicateVertex is returned by Add when the vertex id has
	// already been allocated.
	ErrDuplicateVertex = xerrors.New("vertex already exists")

	// ErrMissingVertex is returned when an operation references a vertex
	// that is not part of the graph.
	ErrMissingVertex = xerrors.New("vertex not found")

	// ErrDuplicateEdge is returned by Bind when the source vertex already
	// has a departing edge with the same label.
	ErrDuplicateEdge = xerrors.New("edge with this label already departs from vertex")

	// ErrMissingData is returned by Data when the vertex carries no datum.
	ErrMissingData = xerrors.New("no data in vertex")

	// ErrEmptyStore is returned when a locator is resolved against a
	// store with no vertices.
	ErrEmptyStore = xerrors.New("the graph is empty")

	// ErrNotFound is returned when a locator step cannot be resolved.
	ErrNotFound = xerrors.New("not found")

	// ErrInvariant is returned when a mutation would leave the graph in
	// a state rejected by a registered alert.
	ErrInvariant = xerrors.New("invariant violation")
)
