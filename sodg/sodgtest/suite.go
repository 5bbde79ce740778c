// Package sodgtest provides a re-usable conformance suite for sodg.Store
// implementations.
package sodgtest

import (
	"github.com/surgelang/sodg/hexbytes"
	"github.com/surgelang/sodg/sodg"
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
)

// SuiteBase defines a re-usable set of store-related tests that can be
// executed against any type that implements sodg.Store.
type SuiteBase struct {
	s            sodg.Store
	otherFactory func() sodg.Store
}

// SetStore configures the test-suite to run all tests against s.
func (s *SuiteBase) SetStore(st sodg.Store) {
	s.s = st
}

// TestAddAllocatesMonotonically verifies id allocation behaviour.
func (s *SuiteBase) TestAddAllocatesMonotonically(c *gc.C) {
	c.Assert(s.s.IsEmpty(), gc.Equals, true)
	c.Assert(s.s.NextID(), gc.Equals, uint32(0))

	c.Assert(s.s.Add(0), gc.IsNil)
	c.Assert(s.s.NextID(), gc.Equals, uint32(1))

	// NextID does not allocate by itself.
	c.Assert(s.s.NextID(), gc.Equals, uint32(1))

	c.Assert(s.s.Add(5), gc.IsNil)
	c.Assert(s.s.NextID(), gc.Equals, uint32(6), gc.Commentf("ids are never reused"))
	c.Assert(s.s.Len(), gc.Equals, 2)
	c.Assert(s.s.IDs(), gc.DeepEquals, []uint32{0, 5})
}

// TestAddRejectsDuplicates verifies the DuplicateVertex contract.
func (s *SuiteBase) TestAddRejectsDuplicates(c *gc.C) {
	c.Assert(s.s.Add(0), gc.IsNil)
	err := s.s.Add(0)
	c.Assert(xerrors.Is(err, sodg.ErrDuplicateVertex), gc.Equals, true)
}

// TestBindContract verifies endpoint and duplicate-edge checks.
func (s *SuiteBase) TestBindContract(c *gc.C) {
	c.Assert(s.s.Add(0), gc.IsNil)
	c.Assert(s.s.Add(1), gc.IsNil)

	c.Assert(s.s.Bind(0, 1, "foo"), gc.IsNil)

	to, bound := s.s.Kid(0, "foo")
	c.Assert(bound, gc.Equals, true)
	c.Assert(to, gc.Equals, uint32(1))

	// Same (source, label) pair must not bind twice.
	err := s.s.Bind(0, 1, "foo")
	c.Assert(xerrors.Is(err, sodg.ErrDuplicateEdge), gc.Equals, true)

	// Either endpoint being absent fails the bind.
	err = s.s.Bind(0, 42, "bar")
	c.Assert(xerrors.Is(err, sodg.ErrMissingVertex), gc.Equals, true)
	err = s.s.Bind(42, 0, "bar")
	c.Assert(xerrors.Is(err, sodg.ErrMissingVertex), gc.Equals, true)
}

// TestBindDoesNotSynthesiseBackEdges verifies that binding a forward edge
// never creates a reciprocal ρ or σ on the target.
func (s *SuiteBase) TestBindDoesNotSynthesiseBackEdges(c *gc.C) {
	c.Assert(s.s.Add(0), gc.IsNil)
	c.Assert(s.s.Add(1), gc.IsNil)
	c.Assert(s.s.Bind(0, 1, "foo"), gc.IsNil)

	kids, err := s.s.Kids(1)
	c.Assert(err, gc.IsNil)
	c.Assert(kids, gc.HasLen, 0)
}

// TestKidsInsertionOrder verifies deterministic kid enumeration.
func (s *SuiteBase) TestKidsInsertionOrder(c *gc.C) {
	c.Assert(s.s.Add(0), gc.IsNil)
	for i := uint32(1); i <= 3; i++ {
		c.Assert(s.s.Add(i), gc.IsNil)
	}
	c.Assert(s.s.Bind(0, 1, "zeta"), gc.IsNil)
	c.Assert(s.s.Bind(0, 2, "alpha"), gc.IsNil)
	c.Assert(s.s.Bind(0, 3, "mid"), gc.IsNil)

	kids, err := s.s.Kids(0)
	c.Assert(err, gc.IsNil)
	c.Assert(kids, gc.DeepEquals, []sodg.Edge{
		{Label: "zeta", To: 1},
		{Label: "alpha", To: 2},
		{Label: "mid", To: 3},
	})
}

// TestPutAndData verifies datum storage.
func (s *SuiteBase) TestPutAndData(c *gc.C) {
	c.Assert(s.s.Add(0), gc.IsNil)

	_, err := s.s.Data(0)
	c.Assert(xerrors.Is(err, sodg.ErrMissingData), gc.Equals, true)

	c.Assert(s.s.Put(0, hexbytes.FromInt64(42)), gc.IsNil)
	d, err := s.s.Data(0)
	c.Assert(err, gc.IsNil)
	got, err := d.Int64()
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.Equals, int64(42))

	// Put replaces any existing datum.
	c.Assert(s.s.Put(0, hexbytes.FromInt64(7)), gc.IsNil)
	d, err = s.s.Data(0)
	c.Assert(err, gc.IsNil)
	got, err = d.Int64()
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.Equals, int64(7))

	err = s.s.Put(42, hexbytes.Empty())
	c.Assert(xerrors.Is(err, sodg.ErrMissingVertex), gc.Equals, true)
}

// TestFindStructuralSteps verifies the locator walker without a relay.
func (s *SuiteBase) TestFindStructuralSteps(c *gc.C) {
	c.Assert(s.s.Add(0), gc.IsNil)
	c.Assert(s.s.Add(1), gc.IsNil)
	c.Assert(s.s.Add(2), gc.IsNil)
	c.Assert(s.s.Bind(0, 1, "foo"), gc.IsNil)
	c.Assert(s.s.Bind(1, 2, "bar"), gc.IsNil)

	v, err := s.s.Find(0, "foo.bar", nil)
	c.Assert(err, gc.IsNil)
	c.Assert(v, gc.Equals, uint32(2))

	// Root reset and direct jumps.
	v, err = s.s.Find(1, "Φ.foo", nil)
	c.Assert(err, gc.IsNil)
	c.Assert(v, gc.Equals, uint32(1))

	v, err = s.s.Find(0, "ν1.bar", nil)
	c.Assert(err, gc.IsNil)
	c.Assert(v, gc.Equals, uint32(2))

	// Identity step resolves to the same vertex.
	v, err = s.s.Find(0, "foo.ξ", nil)
	c.Assert(err, gc.IsNil)
	c.Assert(v, gc.Equals, uint32(1))

	_, err = s.s.Find(0, "missing", nil)
	c.Assert(xerrors.Is(err, sodg.ErrNotFound), gc.Equals, true)

	_, err = s.s.Find(0, "ν42.bar", nil)
	c.Assert(xerrors.Is(err, sodg.ErrMissingVertex), gc.Equals, true)
}

// TestFindOnEmptyStore verifies the empty-graph failure mode.
func (s *SuiteBase) TestFindOnEmptyStore(c *gc.C) {
	_, err := s.s.Find(0, "Φ.foo", nil)
	c.Assert(xerrors.Is(err, sodg.ErrEmptyStore), gc.Equals, true)
}

// TestSliceProjectsReachableSubgraph verifies Slice id preservation and
// edge filtering.
func (s *SuiteBase) TestSliceProjectsReachableSubgraph(c *gc.C) {
	for i := uint32(0); i <= 3; i++ {
		c.Assert(s.s.Add(i), gc.IsNil)
	}
	c.Assert(s.s.Bind(0, 1, "foo"), gc.IsNil)
	c.Assert(s.s.Bind(1, 2, "bar"), gc.IsNil)
	c.Assert(s.s.Bind(1, 0, sodg.LRho), gc.IsNil)
	c.Assert(s.s.Bind(0, 3, "other"), gc.IsNil)

	sliced, err := s.s.Slice("foo", func(_, _ uint32, a string) bool {
		return a != sodg.LRho
	}, nil)
	c.Assert(err, gc.IsNil)
	c.Assert(sliced.IDs(), gc.DeepEquals, []uint32{1, 2})

	to, bound := sliced.Kid(1, "bar")
	c.Assert(bound, gc.Equals, true)
	c.Assert(to, gc.Equals, uint32(2))
	_, bound = sliced.Kid(1, sodg.LRho)
	c.Assert(bound, gc.Equals, false)
}

// TestMergeRemapsIDs verifies that merging lands the other root on the
// requested vertex and remaps the rest onto fresh ids.
func (s *SuiteBase) TestMergeRemapsIDs(c *gc.C) {
	c.Assert(s.s.Add(0), gc.IsNil)
	c.Assert(s.s.Add(1), gc.IsNil)
	c.Assert(s.s.Bind(0, 1, "pkg"), gc.IsNil)

	other := s.makeOther(c)
	c.Assert(s.s.Merge(other, 1), gc.IsNil)

	v, err := s.s.Find(0, "pkg.foo", nil)
	c.Assert(err, gc.IsNil)
	d, err := s.s.Data(v)
	c.Assert(err, gc.IsNil)
	got, err := d.Int64()
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.Equals, int64(42))
}

// makeOther builds a small two-vertex graph used as a merge source. The
// suite cannot construct an arbitrary Store implementation by itself, so
// concrete suites provide a factory through SetOtherFactory.
func (s *SuiteBase) makeOther(c *gc.C) sodg.Store {
	if s.otherFactory == nil {
		c.Fatal("SetOtherFactory was not called by the concrete suite")
	}
	fresh := s.otherFactory()
	c.Assert(fresh.Add(0), gc.IsNil)
	c.Assert(fresh.Add(1), gc.IsNil)
	c.Assert(fresh.Bind(0, 1, "foo"), gc.IsNil)
	c.Assert(fresh.Put(1, hexbytes.FromInt64(42)), gc.IsNil)
	return fresh
}

// SetOtherFactory configures the factory used to build secondary stores
// for merge tests.
func (s *SuiteBase) SetOtherFactory(f func() sodg.Store) {
	s.otherFactory = f
}
