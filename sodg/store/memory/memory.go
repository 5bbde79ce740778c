// Package memory provides an in-memory sodg.Store implementation backed by
// an arena of vertex records keyed by id.
package memory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/surgelang/sodg/hexbytes"
	"github.com/surgelang/sodg/sodg"
	"golang.org/x/xerrors"
)

// vertex is a single arena record: an optional datum plus the departing
// edges as a label-keyed map with the insertion order kept on the side.
type vertex struct {
	data    hexbytes.Hex
	hasData bool
	kids    map[string]uint32
	order   []string
}

func newVertex() *vertex {
	return &vertex{kids: make(map[string]uint32)}
}

// InMemorySodg implements sodg.Store on top of plain maps. It is not safe
// for concurrent use; callers that share one instance across goroutines
// must provide their own synchronisation.
type InMemorySodg struct {
	vertices map[uint32]*vertex
	next     uint32
	alerts   []sodg.Alert
}

var _ sodg.Store = (*InMemorySodg)(nil)

// NewInMemorySodg initialises an empty in-memory graph store.
func NewInMemorySodg() *InMemorySodg {
	return &InMemorySodg{
		vertices: make(map[uint32]*vertex),
	}
}

// NextID returns the id one above the highest vertex id allocated so far.
func (s *InMemorySodg) NextID() uint32 {
	return s.next
}

// Add allocates the vertex v.
func (s *InMemorySodg) Add(v uint32) error {
	if _, exists := s.vertices[v]; exists {
		return xerrors.Errorf("add ν%d: %w", v, sodg.ErrDuplicateVertex)
	}
	s.vertices[v] = newVertex()
	if v >= s.next {
		s.next = v + 1
	}
	if err := s.runAlerts(v); err != nil {
		delete(s.vertices, v)
		return xerrors.Errorf("add ν%d: %w", v, err)
	}
	return nil
}

// Bind creates the edge v1 -a-> v2. Reciprocal back-edges are never
// synthesised; whoever creates the forward edge writes them explicitly.
func (s *InMemorySodg) Bind(v1, v2 uint32, a string) error {
	if a == "" {
		return xerrors.Errorf("bind ν%d to ν%d: the edge label is empty", v1, v2)
	}
	from, exists := s.vertices[v1]
	if !exists {
		return xerrors.Errorf("bind ν%d -%s-> ν%d: source: %w", v1, a, v2, sodg.ErrMissingVertex)
	}
	if _, exists := s.vertices[v2]; !exists {
		return xerrors.Errorf("bind ν%d -%s-> ν%d: target: %w", v1, a, v2, sodg.ErrMissingVertex)
	}
	if _, bound := from.kids[a]; bound {
		return xerrors.Errorf("bind ν%d -%s-> ν%d: %w", v1, a, v2, sodg.ErrDuplicateEdge)
	}
	from.kids[a] = v2
	from.order = append(from.order, a)
	if err := s.runAlerts(v1, v2); err != nil {
		delete(from.kids, a)
		from.order = from.order[:len(from.order)-1]
		return xerrors.Errorf("bind ν%d -%s-> ν%d: %w", v1, a, v2, err)
	}
	return nil
}

// Rebind redirects the existing a-labelled edge of v1 onto v2. The label
// keeps its position in the kid order, so positional α references stay
// stable across the redirect.
func (s *InMemorySodg) Rebind(v1, v2 uint32, a string) error {
	from, exists := s.vertices[v1]
	if !exists {
		return xerrors.Errorf("rebind ν%d -%s-> ν%d: source: %w", v1, a, v2, sodg.ErrMissingVertex)
	}
	if _, exists := s.vertices[v2]; !exists {
		return xerrors.Errorf("rebind ν%d -%s-> ν%d: target: %w", v1, a, v2, sodg.ErrMissingVertex)
	}
	prev, bound := from.kids[a]
	if !bound {
		return xerrors.Errorf("rebind ν%d -%s-> ν%d: no such edge: %w", v1, a, v2, sodg.ErrNotFound)
	}
	from.kids[a] = v2
	if err := s.runAlerts(v1, v2); err != nil {
		from.kids[a] = prev
		return xerrors.Errorf("rebind ν%d -%s-> ν%d: %w", v1, a, v2, err)
	}
	return nil
}

// Put stores the datum of v, replacing any previous one.
func (s *InMemorySodg) Put(v uint32, d hexbytes.Hex) error {
	vtx, exists := s.vertices[v]
	if !exists {
		return xerrors.Errorf("put %d byte(s) into ν%d: %w", d.Len(), v, sodg.ErrMissingVertex)
	}
	prev, had := vtx.data, vtx.hasData
	vtx.data = d
	vtx.hasData = true
	if err := s.runAlerts(v); err != nil {
		vtx.data, vtx.hasData = prev, had
		return xerrors.Errorf("put %d byte(s) into ν%d: %w", d.Len(), v, err)
	}
	return nil
}

// Data returns the datum of v.
func (s *InMemorySodg) Data(v uint32) (hexbytes.Hex, error) {
	vtx, exists := s.vertices[v]
	if !exists {
		return hexbytes.Hex{}, xerrors.Errorf("data of ν%d: %w", v, sodg.ErrMissingVertex)
	}
	if !vtx.hasData {
		return hexbytes.Hex{}, xerrors.Errorf("data of ν%d: %w", v, sodg.ErrMissingData)
	}
	return vtx.data, nil
}

// Kid returns the target of the a-labelled edge departing from v.
func (s *InMemorySodg) Kid(v uint32, a string) (uint32, bool) {
	vtx, exists := s.vertices[v]
	if !exists {
		return 0, false
	}
	to, bound := vtx.kids[a]
	return to, bound
}

// Kids enumerates the departing edges of v in insertion order.
func (s *InMemorySodg) Kids(v uint32) ([]sodg.Edge, error) {
	vtx, exists := s.vertices[v]
	if !exists {
		return nil, xerrors.Errorf("kids of ν%d: %w", v, sodg.ErrMissingVertex)
	}
	edges := make([]sodg.Edge, 0, len(vtx.order))
	for _, a := range vtx.order {
		edges = append(edges, sodg.Edge{Label: a, To: vtx.kids[a]})
	}
	return edges, nil
}

// Len returns the number of vertices.
func (s *InMemorySodg) Len() int { return len(s.vertices) }

// IsEmpty reports whether the store has no vertices.
func (s *InMemorySodg) IsEmpty() bool { return len(s.vertices) == 0 }

// IDs returns the ids of all vertices in ascending order.
func (s *InMemorySodg) IDs() []uint32 {
	ids := make([]uint32, 0, len(s.vertices))
	for v := range s.vertices {
		ids = append(ids, v)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// AlertOn attaches an invariant check executed after every mutation.
func (s *InMemorySodg) AlertOn(a sodg.Alert) {
	s.alerts = append(s.alerts, a)
}

// runAlerts executes all registered alerts against the vertices touched by
// the mutation and folds their complaints into one error.
func (s *InMemorySodg) runAlerts(touched ...uint32) error {
	var problems []string
	for _, alert := range s.alerts {
		problems = append(problems, alert(s, touched)...)
	}
	if len(problems) == 0 {
		return nil
	}
	var err error
	for _, p := range problems {
		err = multierror.Append(err, xerrors.New(p))
	}
	return xerrors.Errorf("%v: %w", err, sodg.ErrInvariant)
}

// Slice projects the subgraph reachable from the vertex the locator
// resolves to, keeping only edges accepted by keep. Vertex ids and edge
// structure are preserved; the datum of every surviving vertex is copied.
func (s *InMemorySodg) Slice(loc string, keep sodg.KeepFunc, relay sodg.Relay) (sodg.Store, error) {
	root, err := s.Find(0, loc, relay)
	if err != nil {
		return nil, xerrors.Errorf("slice at %q: %w", loc, err)
	}
	out := NewInMemorySodg()
	queue := []uint32{root}
	seen := map[uint32]bool{root: true}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		if err := out.Add(v); err != nil {
			return nil, err
		}
		vtx := s.vertices[v]
		if vtx.hasData {
			if err := out.Put(v, vtx.data); err != nil {
				return nil, err
			}
		}
		for _, a := range vtx.order {
			to := vtx.kids[a]
			if !keep(v, to, a) {
				continue
			}
			if !seen[to] {
				seen[to] = true
				queue = append(queue, to)
			}
		}
	}
	// Bind in a second pass so that every surviving endpoint exists.
	for v := range seen {
		vtx := s.vertices[v]
		for _, a := range vtx.order {
			to := vtx.kids[a]
			if !keep(v, to, a) || !seen[to] {
				continue
			}
			if err := out.Bind(v, to, a); err != nil {
				return nil, xerrors.Errorf("slice at %q: %w", loc, err)
			}
		}
	}
	out.next = s.next
	return out, nil
}

// Merge copies every vertex and edge of other into this store. Ids of
// other are remapped onto freshly allocated ones, except other's root
// (ν0) which lands on the given root vertex.
func (s *InMemorySodg) Merge(other sodg.Store, root uint32) error {
	if _, exists := s.vertices[root]; !exists {
		return xerrors.Errorf("merge under ν%d: %w", root, sodg.ErrMissingVertex)
	}
	rename := map[uint32]uint32{0: root}
	for _, v := range other.IDs() {
		if v == 0 {
			continue
		}
		nv := s.NextID()
		if err := s.Add(nv); err != nil {
			return xerrors.Errorf("merge under ν%d: %w", root, err)
		}
		rename[v] = nv
	}
	for _, v := range other.IDs() {
		if d, err := other.Data(v); err == nil {
			if err := s.Put(rename[v], d); err != nil {
				return xerrors.Errorf("merge under ν%d: %w", root, err)
			}
		}
		kids, err := other.Kids(v)
		if err != nil {
			return xerrors.Errorf("merge under ν%d: %w", root, err)
		}
		for _, e := range kids {
			if err := s.Bind(rename[v], rename[e.To], e.Label); err != nil {
				return xerrors.Errorf("merge under ν%d: %w", root, err)
			}
		}
	}
	return nil
}

// DOT renders the graph in Graphviz DOT format. Vertices are emitted in
// ascending id order and edges sorted by label so the output is stable.
func (s *InMemorySodg) DOT() string {
	var sb strings.Builder
	sb.WriteString("digraph sodg {\n")
	for _, v := range s.IDs() {
		vtx := s.vertices[v]
		if vtx.hasData {
			fmt.Fprintf(&sb, "  v%d[shape=box,label=\"ν%d\\n%s\"];\n", v, v, vtx.data)
		} else {
			fmt.Fprintf(&sb, "  v%d[shape=circle,label=\"ν%d\"];\n", v, v)
		}
		labels := append([]string(nil), vtx.order...)
		sort.Strings(labels)
		for _, a := range labels {
			fmt.Fprintf(&sb, "  v%d -> v%d [label=\"%s\"];\n", v, vtx.kids[a], a)
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}
