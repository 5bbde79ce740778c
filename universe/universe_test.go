package universe_test

import (
	"fmt"
	"testing"

	"github.com/surgelang/sodg/hexbytes"
	"github.com/surgelang/sodg/script"
	"github.com/surgelang/sodg/sodg"
	"github.com/surgelang/sodg/universe"
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(UniverseTestSuite))

func Test(t *testing.T) {
	// Run all gocheck test-suites
	gc.TestingT(t)
}

type UniverseTestSuite struct {
	u *universe.Universe
}

func (s *UniverseTestSuite) SetUpTest(c *gc.C) {
	s.u = universe.New()
}

// bindNew allocates a vertex and binds it under the given attribute.
func (s *UniverseTestSuite) bindNew(c *gc.C, from uint32, a string) uint32 {
	v := s.u.Add()
	c.Assert(s.u.Bind(from, v, a), gc.IsNil)
	return v
}

// putDatum hangs a Δ-edge with the given datum off the vertex.
func (s *UniverseTestSuite) putDatum(c *gc.C, v uint32, d hexbytes.Hex) uint32 {
	holder := s.u.Add()
	c.Assert(s.u.Put(holder, d), gc.IsNil)
	c.Assert(s.u.Bind(v, holder, sodg.LDelta), gc.IsNil)
	return holder
}

func (s *UniverseTestSuite) TestHelloBytesFromScript(c *gc.C) {
	// S1: assemble a tiny graph and dataize an attribute of the root.
	st := s.u.Store()
	deployed, err := script.New(
		"ADD(0); ADD($x); BIND(0, $x, foo); ADD($y); BIND($x, $y, Δ); PUT($y, FF-FF);",
	).Deploy(st)
	c.Assert(err, gc.IsNil)
	c.Assert(deployed, gc.Equals, 6)

	d, err := s.u.Dataize("Φ.foo")
	c.Assert(err, gc.IsNil)
	c.Assert(d.Bytes(), gc.DeepEquals, []byte{0xFF, 0xFF})
}

func (s *UniverseTestSuite) TestIntPlusThroughAtom(c *gc.C) {
	// S2: Φ.r carries λ=int$plus with ρ and α0 pointing at Φ.two.
	root := s.u.Add()
	intProto := s.bindNew(c, root, "int")
	two := s.bindNew(c, root, "two")
	c.Assert(s.u.Bind(two, intProto, sodg.LPi), gc.IsNil)
	s.putDatum(c, two, hexbytes.FromInt64(2))

	r := s.bindNew(c, root, "r")
	lambda := s.u.Add()
	c.Assert(s.u.Put(lambda, hexbytes.FromString("int$plus")), gc.IsNil)
	c.Assert(s.u.Bind(r, lambda, sodg.LLambda), gc.IsNil)
	c.Assert(s.u.Bind(r, two, sodg.LRho), gc.IsNil)
	c.Assert(s.u.Bind(r, two, sodg.Alpha(0)), gc.IsNil)

	s.u.Register("int$plus", func(u *universe.Universe, v uint32) (uint32, error) {
		rho, err := u.Dataize(fmt.Sprintf("ν%d.ρ", v))
		c.Assert(err, gc.IsNil)
		x, err := u.Dataize(fmt.Sprintf("ν%d.α0", v))
		c.Assert(err, gc.IsNil)
		left, err := rho.Int64()
		c.Assert(err, gc.IsNil)
		right, err := x.Int64()
		c.Assert(err, gc.IsNil)
		nv := u.Add()
		holder := u.Add()
		if err := u.Put(holder, hexbytes.FromInt64(left+right)); err != nil {
			return 0, err
		}
		if err := u.Bind(nv, holder, sodg.LDelta); err != nil {
			return 0, err
		}
		return nv, nil
	})

	d, err := s.u.Dataize("Φ.r")
	c.Assert(err, gc.IsNil)
	got, err := d.Int64()
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.Equals, int64(4))
}

func (s *UniverseTestSuite) TestDecorationFallthrough(c *gc.C) {
	// S3: a has no foo but decorates b, which has it.
	root := s.u.Add()
	a := s.bindNew(c, root, "a")
	b := s.bindNew(c, root, "b")
	c.Assert(s.u.Bind(a, b, sodg.LPhi), gc.IsNil)
	foo := s.bindNew(c, b, "foo")
	s.putDatum(c, foo, hexbytes.FromBytes([]byte{0x41}))

	d, err := s.u.Dataize("Φ.a.foo")
	c.Assert(err, gc.IsNil)
	c.Assert(d.Bytes(), gc.DeepEquals, []byte{0x41})
}

func (s *UniverseTestSuite) TestCachedDispatchMemoises(c *gc.C) {
	// S4: like S3 but through γ; the lookup result must be written back.
	root := s.u.Add()
	a := s.bindNew(c, root, "a")
	b := s.bindNew(c, root, "b")
	c.Assert(s.u.Bind(a, b, sodg.LGamma), gc.IsNil)
	foo := s.bindNew(c, b, "foo")
	s.putDatum(c, foo, hexbytes.FromBytes([]byte{0x41}))

	d, err := s.u.Dataize("Φ.a.foo")
	c.Assert(err, gc.IsNil)
	c.Assert(d.Bytes(), gc.DeepEquals, []byte{0x41})

	// The miss was memoised directly on a.
	to, bound := s.u.Store().Kid(a, "foo")
	c.Assert(bound, gc.Equals, true)
	c.Assert(to, gc.Equals, foo)
}

func (s *UniverseTestSuite) TestMemoisationIsStable(c *gc.C) {
	root := s.u.Add()
	a := s.bindNew(c, root, "a")
	b := s.bindNew(c, root, "b")
	c.Assert(s.u.Bind(a, b, sodg.LGamma), gc.IsNil)
	foo := s.bindNew(c, b, "foo")
	s.putDatum(c, foo, hexbytes.FromBytes([]byte{0x07}))

	first, err := s.u.Find("Φ.a.foo")
	c.Assert(err, gc.IsNil)
	sizeAfterFirst := s.u.Store().Len()

	// Repeating the find hits the memoised edge: same vertex, no new
	// vertices materialised.
	second, err := s.u.Find("Φ.a.foo")
	c.Assert(err, gc.IsNil)
	c.Assert(second, gc.Equals, first)
	c.Assert(s.u.Store().Len(), gc.Equals, sizeAfterFirst)
}

func (s *UniverseTestSuite) TestRecursionGuard(c *gc.C) {
	// S5: a dispatch loop through ε must hit the depth bound.
	root := s.u.Add()
	a := s.bindNew(c, root, "a")
	c.Assert(s.u.Bind(a, a, sodg.LEpsilon), gc.IsNil)

	_, err := s.u.Dataize("Φ.a")
	c.Assert(xerrors.Is(err, universe.ErrTooDeep), gc.Equals, true)
}

func (s *UniverseTestSuite) TestBindingConflict(c *gc.C) {
	// S6: a second bind under the same label fails and leaves the graph
	// unchanged.
	root := s.u.Add()
	x := s.bindNew(c, root, "x")
	other := s.u.Add()

	err := s.u.Bind(root, other, "x")
	c.Assert(xerrors.Is(err, sodg.ErrDuplicateEdge), gc.Equals, true)

	to, bound := s.u.Store().Kid(root, "x")
	c.Assert(bound, gc.Equals, true)
	c.Assert(to, gc.Equals, x)
}

func (s *UniverseTestSuite) TestRootShortCircuit(c *gc.C) {
	root := s.u.Add()
	foo := s.bindNew(c, root, "foo")
	s.putDatum(c, foo, hexbytes.FromInt64(42))

	viaPhi, err := s.u.Dataize("Φ.foo")
	c.Assert(err, gc.IsNil)
	viaNu, err := s.u.Dataize("ν0.foo")
	c.Assert(err, gc.IsNil)
	c.Assert(viaPhi.Equals(viaNu), gc.Equals, true)
}

func (s *UniverseTestSuite) TestIdentityStep(c *gc.C) {
	root := s.u.Add()
	s.bindNew(c, root, "foo")

	plain, err := s.u.Find("Φ.foo")
	c.Assert(err, gc.IsNil)
	withXi, err := s.u.Find("Φ.foo.ξ")
	c.Assert(err, gc.IsNil)
	c.Assert(withXi, gc.Equals, plain)
}

func (s *UniverseTestSuite) TestDeterministicDataization(c *gc.C) {
	root := s.u.Add()
	foo := s.bindNew(c, root, "foo")
	s.putDatum(c, foo, hexbytes.FromInt64(7))

	first, err := s.u.Dataize("Φ.foo")
	c.Assert(err, gc.IsNil)
	second, err := s.u.Dataize("Φ.foo")
	c.Assert(err, gc.IsNil)
	c.Assert(first.Equals(second), gc.Equals, true)
}

func (s *UniverseTestSuite) TestEpsilonIndirection(c *gc.C) {
	root := s.u.Add()
	a := s.bindNew(c, root, "a")
	b := s.u.Add()
	c.Assert(s.u.Bind(a, b, sodg.LEpsilon), gc.IsNil)
	s.putDatum(c, b, hexbytes.FromBytes([]byte{0x2A}))

	d, err := s.u.Dataize("Φ.a")
	c.Assert(err, gc.IsNil)
	c.Assert(d.Bytes(), gc.DeepEquals, []byte{0x2A})
}

func (s *UniverseTestSuite) TestBetaIndirectAttribute(c *gc.C) {
	// x dispatches through β: the real attribute name is read from the
	// single edge departing from the β target.
	root := s.u.Add()
	x := s.bindNew(c, root, "x")
	container := s.bindNew(c, root, "container")
	foo := s.bindNew(c, container, "foo")
	s.putDatum(c, foo, hexbytes.FromBytes([]byte{0x07}))

	beta := s.u.Add()
	c.Assert(s.u.Bind(beta, container, "foo"), gc.IsNil)
	c.Assert(s.u.Bind(x, beta, sodg.LBeta), gc.IsNil)

	d, err := s.u.Dataize("Φ.x")
	c.Assert(err, gc.IsNil)
	c.Assert(d.Bytes(), gc.DeepEquals, []byte{0x07})
}

func (s *UniverseTestSuite) TestXiResolvesToPsiContext(c *gc.C) {
	// a captures ψ and carries ξ, so dispatch lands on the ψ target.
	root := s.u.Add()
	a := s.bindNew(c, root, "a")
	b := s.bindNew(c, root, "b")
	c.Assert(s.u.Bind(a, b, sodg.LPsi), gc.IsNil)
	c.Assert(s.u.Bind(a, a, sodg.LXi), gc.IsNil)
	foo := s.bindNew(c, b, "foo")
	s.putDatum(c, foo, hexbytes.FromBytes([]byte{0x11}))

	d, err := s.u.Dataize("Φ.a.foo")
	c.Assert(err, gc.IsNil)
	c.Assert(d.Bytes(), gc.DeepEquals, []byte{0x11})
}

func (s *UniverseTestSuite) TestCopyOnAccessFillsFreeSlot(c *gc.C) {
	// An exemplar with a free (nil) attribute, copied with a positional
	// argument: the copy's α0 lands in the free slot.
	root := s.u.Add()
	obj := s.bindNew(c, root, "obj")
	free := s.u.Add()
	c.Assert(s.u.Bind(free, obj, sodg.LRho), gc.IsNil)
	c.Assert(s.u.Bind(obj, free, "x"), gc.IsNil)

	two := s.bindNew(c, root, "two")
	s.putDatum(c, two, hexbytes.FromInt64(2))

	cp := s.bindNew(c, root, "c")
	c.Assert(s.u.Bind(cp, obj, sodg.LPi), gc.IsNil)
	c.Assert(s.u.Bind(cp, two, sodg.Alpha(0)), gc.IsNil)

	d, err := s.u.Dataize("Φ.c.x")
	c.Assert(err, gc.IsNil)
	got, err := d.Int64()
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.Equals, int64(2))
}

func (s *UniverseTestSuite) TestCopyKeepsExemplarUntouched(c *gc.C) {
	root := s.u.Add()
	obj := s.bindNew(c, root, "obj")
	free := s.u.Add()
	c.Assert(s.u.Bind(free, obj, sodg.LRho), gc.IsNil)
	c.Assert(s.u.Bind(obj, free, "x"), gc.IsNil)

	two := s.bindNew(c, root, "two")
	s.putDatum(c, two, hexbytes.FromInt64(2))
	cp := s.bindNew(c, root, "c")
	c.Assert(s.u.Bind(cp, obj, sodg.LPi), gc.IsNil)
	c.Assert(s.u.Bind(cp, two, sodg.Alpha(0)), gc.IsNil)

	_, err := s.u.Find("Φ.c.x")
	c.Assert(err, gc.IsNil)

	// The exemplar's slot still points at the nil vertex.
	to, bound := s.u.Store().Kid(obj, "x")
	c.Assert(bound, gc.Equals, true)
	c.Assert(to, gc.Equals, free)
}

func (s *UniverseTestSuite) TestAtomsRunPerEvaluation(c *gc.C) {
	// An impure atom is re-invoked on every dataization.
	root := s.u.Add()
	x := s.bindNew(c, root, "x")
	lambda := s.u.Add()
	c.Assert(s.u.Put(lambda, hexbytes.FromString("counter")), gc.IsNil)
	c.Assert(s.u.Bind(x, lambda, sodg.LLambda), gc.IsNil)

	calls := int64(0)
	s.u.Register("counter", func(u *universe.Universe, v uint32) (uint32, error) {
		calls++
		nv := u.Add()
		holder := u.Add()
		if err := u.Put(holder, hexbytes.FromInt64(calls)); err != nil {
			return 0, err
		}
		if err := u.Bind(nv, holder, sodg.LDelta); err != nil {
			return 0, err
		}
		return nv, nil
	})

	first, err := s.u.Dataize("Φ.x")
	c.Assert(err, gc.IsNil)
	second, err := s.u.Dataize("Φ.x")
	c.Assert(err, gc.IsNil)
	c.Assert(first.Equals(second), gc.Equals, false)
}

func (s *UniverseTestSuite) TestUnregisteredAtom(c *gc.C) {
	root := s.u.Add()
	x := s.bindNew(c, root, "x")
	lambda := s.u.Add()
	c.Assert(s.u.Put(lambda, hexbytes.FromString("nobody")), gc.IsNil)
	c.Assert(s.u.Bind(x, lambda, sodg.LLambda), gc.IsNil)

	_, err := s.u.Dataize("Φ.x")
	c.Assert(xerrors.Is(err, universe.ErrUnknownAtom), gc.Equals, true)
}

func (s *UniverseTestSuite) TestEmptyUniverse(c *gc.C) {
	_, err := s.u.Dataize("Φ.foo")
	c.Assert(xerrors.Is(err, sodg.ErrEmptyStore), gc.Equals, true)
}

func (s *UniverseTestSuite) TestAbsentVertex(c *gc.C) {
	s.u.Add()
	_, err := s.u.Dataize("ν42.foo")
	c.Assert(xerrors.Is(err, sodg.ErrMissingVertex), gc.Equals, true)
}

func (s *UniverseTestSuite) TestUnresolvedAttribute(c *gc.C) {
	s.u.Add()
	_, err := s.u.Dataize("Φ.foo")
	c.Assert(xerrors.Is(err, sodg.ErrNotFound), gc.Equals, true)
}

func (s *UniverseTestSuite) TestMissingDatum(c *gc.C) {
	root := s.u.Add()
	foo := s.bindNew(c, root, "foo")
	holder := s.u.Add()
	c.Assert(s.u.Bind(foo, holder, sodg.LDelta), gc.IsNil)

	_, err := s.u.Dataize("Φ.foo")
	c.Assert(xerrors.Is(err, sodg.ErrMissingData), gc.Equals, true)
}

func (s *UniverseTestSuite) TestInvariantPiPhiExclusive(c *gc.C) {
	root := s.u.Add()
	a := s.bindNew(c, root, "a")
	b := s.bindNew(c, root, "b")
	c.Assert(s.u.Bind(a, b, sodg.LPi), gc.IsNil)

	err := s.u.Bind(a, b, sodg.LPhi)
	c.Assert(xerrors.Is(err, sodg.ErrInvariant), gc.Equals, true)
}

func (s *UniverseTestSuite) TestInvariantLambdaDeltaExclusive(c *gc.C) {
	root := s.u.Add()
	a := s.bindNew(c, root, "a")
	lambda := s.u.Add()
	c.Assert(s.u.Put(lambda, hexbytes.FromString("x")), gc.IsNil)
	c.Assert(s.u.Bind(a, lambda, sodg.LLambda), gc.IsNil)

	holder := s.u.Add()
	err := s.u.Bind(a, holder, sodg.LDelta)
	c.Assert(xerrors.Is(err, sodg.ErrInvariant), gc.Equals, true)
}

func (s *UniverseTestSuite) TestSliceCutsBackEdges(c *gc.C) {
	root := s.u.Add()
	a := s.bindNew(c, root, "a")
	b := s.bindNew(c, a, "kid")
	c.Assert(s.u.Bind(b, a, sodg.LRho), gc.IsNil)

	sliced, err := s.u.Slice("Φ.a")
	c.Assert(err, gc.IsNil)
	c.Assert(sliced.IDs(), gc.DeepEquals, []uint32{a, b})
	_, bound := sliced.Kid(b, sodg.LRho)
	c.Assert(bound, gc.Equals, false)
}

var _ = gc.Suite(new(ConfigTestSuite))

type ConfigTestSuite struct {
}

func (s *ConfigTestSuite) TestRejectsNegativeDepth(c *gc.C) {
	_, err := universe.NewWithConfig(universe.Config{MaxDepth: -1})
	c.Assert(err, gc.ErrorMatches, `(?s)universe config validation failed: .*max depth cannot be negative.*`)
}

func (s *ConfigTestSuite) TestDepthBoundIsConfigurable(c *gc.C) {
	u, err := universe.NewWithConfig(universe.Config{MaxDepth: 5})
	c.Assert(err, gc.IsNil)

	root := u.Add()
	a := u.Add()
	c.Assert(u.Bind(root, a, "a"), gc.IsNil)
	c.Assert(u.Bind(a, a, sodg.LEpsilon), gc.IsNil)

	_, err = u.Dataize("Φ.a")
	c.Assert(xerrors.Is(err, universe.ErrTooDeep), gc.Equals, true)
}
