package memory

import (
	"bytes"
	"encoding/gob"
	"os"

	"github.com/surgelang/sodg/hexbytes"
	"golang.org/x/xerrors"
)

// gobEdge and gobVertex mirror the arena records in a shape the gob codec
// can encode. Edge order is preserved so that a loaded graph enumerates
// kids exactly like the saved one.
type gobEdge struct {
	Label string
	To    uint32
}

type gobVertex struct {
	ID      uint32
	HasData bool
	Data    []byte
	Kids    []gobEdge
}

type gobGraph struct {
	Next     uint32
	Vertices []gobVertex
}

// Save serialises the graph into the given file and returns the number of
// bytes written. Alerts and atom registrations are not part of the graph
// and are not persisted.
func (s *InMemorySodg) Save(path string) (int, error) {
	snapshot := gobGraph{Next: s.next}
	for _, v := range s.IDs() {
		vtx := s.vertices[v]
		gv := gobVertex{ID: v, HasData: vtx.hasData}
		if vtx.hasData {
			gv.Data = vtx.data.Bytes()
		}
		for _, a := range vtx.order {
			gv.Kids = append(gv.Kids, gobEdge{Label: a, To: vtx.kids[a]})
		}
		snapshot.Vertices = append(snapshot.Vertices, gv)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snapshot); err != nil {
		return 0, xerrors.Errorf("encode graph with %d vertice(s): %w", len(s.vertices), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return 0, xerrors.Errorf("save graph to %q: %w", path, err)
	}
	return buf.Len(), nil
}

// Load reads a graph previously written by Save. The loaded store has no
// alerts attached; callers re-register the ones they need.
func Load(path string) (*InMemorySodg, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("load graph from %q: %w", path, err)
	}
	var snapshot gobGraph
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&snapshot); err != nil {
		return nil, xerrors.Errorf("decode graph from %q: %w", path, err)
	}
	s := NewInMemorySodg()
	for _, gv := range snapshot.Vertices {
		vtx := newVertex()
		if gv.HasData {
			vtx.data = hexbytes.FromBytes(gv.Data)
			vtx.hasData = true
		}
		for _, e := range gv.Kids {
			vtx.kids[e.Label] = e.To
			vtx.order = append(vtx.order, e.Label)
		}
		s.vertices[gv.ID] = vtx
		if gv.ID >= s.next {
			s.next = gv.ID + 1
		}
	}
	if snapshot.Next > s.next {
		s.next = snapshot.Next
	}
	return s, nil
}
