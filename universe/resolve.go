package universe

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/surgelang/sodg/sodg"
	"golang.org/x/xerrors"
)

// The procedures below form the heart of the engine: a cluster of mutually
// recursive steps over the graph. fnd, dd, pf and apply each enter and
// exit through the depth guard (pull, push, up, down and tie run inside
// apply), so dispatch loops that would otherwise run forever terminate
// with ErrTooDeep.

// enter bumps the recursion depth and notifies the tracer. It fails when
// the configured bound is exceeded; the caller must have arranged for
// exit to run regardless.
func (u *Universe) enter(format string, args ...interface{}) error {
	u.depth++
	if u.tracer != nil {
		u.tracer.Enter(u.st, u.depth, fmt.Sprintf(format, args...))
	}
	if u.depth > u.maxDepth {
		return xerrors.Errorf("%d levels: %w", u.depth, ErrTooDeep)
	}
	return nil
}

// exit unwinds one level of the depth guard.
func (u *Universe) exit(format string, args ...interface{}) {
	if u.depth > 0 {
		u.depth--
	}
	if u.tracer != nil {
		u.tracer.Exit(u.st, u.depth, fmt.Sprintf(format, args...))
	}
}

// fnd resolves attribute a on vertex v: it first normalises v with
// dynamic dispatch and then path-finds the attribute.
func (u *Universe) fnd(v uint32, a string, psi uint32) (uint32, error) {
	defer u.exit("fnd(ν%d, %s, %d)", v, a, psi)
	if err := u.enter("fnd(ν%d, %s, %d)", v, a, psi); err != nil {
		return 0, err
	}
	v1, err := u.dd(v, psi)
	if err != nil {
		return 0, xerrors.Errorf("dispatch on ν%d: %w", v, err)
	}
	return u.pf(v1, a, psi)
}

// dd performs dynamic dispatch, returning the effective vertex to search
// from.
func (u *Universe) dd(v uint32, psi uint32) (uint32, error) {
	defer u.exit("dd(ν%d, %d)", v, psi)
	if err := u.enter("dd(ν%d, %d)", v, psi); err != nil {
		return 0, err
	}
	if p, found := u.st.Kid(v, sodg.LPsi); found {
		psi = p
	}
	if to, found := u.st.Kid(v, sodg.LEpsilon); found {
		return u.dd(to, psi)
	}
	if _, found := u.st.Kid(v, sodg.LXi); found {
		return u.dd(psi, psi)
	}
	if beta, found := u.st.Kid(v, sodg.LBeta); found {
		kids, err := u.st.Kids(beta)
		if err != nil {
			return 0, xerrors.Errorf("β of ν%d: %w", v, err)
		}
		if len(kids) == 0 {
			return 0, xerrors.Errorf("β target ν%d of ν%d has no attribute to read", beta, v)
		}
		nv, err := u.fnd(kids[0].To, kids[0].Label, psi)
		if err != nil {
			return 0, xerrors.Errorf("β of ν%d: %w", v, err)
		}
		return u.dd(nv, psi)
	}
	if to, found := u.st.Kid(v, sodg.LPi); found {
		nv, err := u.dd(to, psi)
		if err != nil {
			return 0, xerrors.Errorf("π of ν%d: %w", v, err)
		}
		return u.apply(nv, v)
	}
	return v, nil
}

// pf path-finds attribute a on an already-dispatched vertex.
func (u *Universe) pf(v uint32, a string, psi uint32) (uint32, error) {
	defer u.exit("pf(ν%d, %s, %d)", v, a, psi)
	if err := u.enter("pf(ν%d, %s, %d)", v, a, psi); err != nil {
		return 0, err
	}
	if to, found := u.st.Kid(v, a); found {
		return to, nil
	}
	if lv, found := u.st.Kid(v, sodg.LLambda); found {
		to, err := u.callAtom(v, lv)
		if err != nil {
			return 0, err
		}
		return u.fnd(to, a, psi)
	}
	if to, found := u.st.Kid(v, sodg.LPhi); found {
		return u.fnd(to, a, psi)
	}
	if to, found := u.st.Kid(v, sodg.LGamma); found {
		t, err := u.fnd(to, a, psi)
		if err != nil {
			return 0, err
		}
		if err := u.st.Bind(v, t, a); err != nil {
			return 0, xerrors.Errorf("memoise ν%d.%s: %w", v, a, err)
		}
		return t, nil
	}
	return 0, xerrors.Errorf("there is no way to get .%s from ν%d: %w", a, v, sodg.ErrNotFound)
}

// callAtom reads the atom name from the λ target's datum and invokes it.
func (u *Universe) callAtom(v, lv uint32) (uint32, error) {
	d, err := u.st.Data(lv)
	if err != nil {
		return 0, xerrors.Errorf("λ of ν%d: %w", v, err)
	}
	name, err := d.UTF8()
	if err != nil {
		return 0, xerrors.Errorf("λ of ν%d: %w", v, err)
	}
	atom, registered := u.atoms[name]
	if !registered {
		return 0, xerrors.Errorf("can't find %q among %d registered atom(s): %w", name, len(u.atoms), ErrUnknownAtom)
	}
	to, err := atom(u, v)
	if err != nil {
		return 0, xerrors.Errorf("atom %q failed at ν%d: %w", name, v, err)
	}
	atomInvocationsTotal.Inc()
	u.logger.WithFields(logrus.Fields{
		"atom":   name,
		"vertex": v,
		"result": to,
	}).Trace("atom invoked")
	return to, nil
}

// apply produces a fresh vertex that is v1 structurally enriched with the
// non-π fields of v2: the copy v2 applied to its exemplar v1.
func (u *Universe) apply(v1, v2 uint32) (uint32, error) {
	defer u.exit("apply(ν%d, ν%d)", v1, v2)
	if err := u.enter("apply(ν%d, ν%d)", v1, v2); err != nil {
		return 0, err
	}
	nv := u.Add()
	if err := u.pull(nv, v1); err != nil {
		return 0, xerrors.Errorf("apply ν%d to ν%d: %w", v2, v1, err)
	}
	if err := u.push(nv, v2); err != nil {
		return 0, xerrors.Errorf("apply ν%d to ν%d: %w", v2, v1, err)
	}
	return nv, nil
}

// pull copies the exemplar's slots into nv, except σ, β and π.
func (u *Universe) pull(nv, v uint32) error {
	kids, err := u.st.Kids(v)
	if err != nil {
		return err
	}
	for _, e := range kids {
		if e.Label == sodg.LSigma || e.Label == sodg.LBeta || e.Label == sodg.LPi {
			continue
		}
		if err := u.up(nv, e.To, e.Label); err != nil {
			return err
		}
	}
	return nil
}

// up links one exemplar slot into nv. Data, atoms, the ρ context and nil
// slots transfer directly; everything else becomes a trampoline that
// preserves the copy-of relationship lazily.
func (u *Universe) up(nv, k uint32, a string) error {
	direct := a == sodg.LLambda || a == sodg.LDelta || a == sodg.LRho
	if !direct {
		isNil, err := u.isNil(k)
		if err != nil {
			return err
		}
		direct = isNil
	}
	if direct {
		return u.st.Bind(nv, k, a)
	}
	t := u.Add()
	if err := u.st.Bind(nv, t, a); err != nil {
		return err
	}
	if err := u.st.Bind(t, nv, sodg.LRho); err != nil {
		return err
	}
	if err := u.st.Bind(t, nv, sodg.LPsi); err != nil {
		return err
	}
	return u.st.Bind(t, k, sodg.LPi)
}

// push copies the copy's fields onto nv, except π and ψ.
func (u *Universe) push(nv, v uint32) error {
	kids, err := u.st.Kids(v)
	if err != nil {
		return err
	}
	for _, e := range kids {
		if e.Label == sodg.LPi || e.Label == sodg.LPsi {
			continue
		}
		if err := u.down(nv, e.To, e.Label); err != nil {
			return err
		}
	}
	return nil
}

// down binds one pushed field under the label tie resolves for it. A slot
// that tie approved for an existing label is overwritten in place.
func (u *Universe) down(nv, k uint32, a string) error {
	a1, err := u.tie(nv, a)
	if err != nil {
		return err
	}
	if _, bound := u.st.Kid(nv, a1); bound {
		return u.st.Rebind(nv, k, a1)
	}
	return u.st.Bind(nv, k, a1)
}

// tie resolves the label a pushed field may legally land under on nv:
// ρ and σ pass through, Δ is allowed only while nv has none, slots
// holding a nil may be overwritten, and α<n> resolves to the n-th
// ASCII-labelled attribute in insertion order.
func (u *Universe) tie(v uint32, a string) (string, error) {
	if a == sodg.LRho || a == sodg.LSigma {
		return a, nil
	}
	if a == sodg.LDelta {
		if _, bound := u.st.Kid(v, sodg.LDelta); !bound {
			return a, nil
		}
	}
	if existing, bound := u.st.Kid(v, a); bound {
		isNil, err := u.isNil(existing)
		if err != nil {
			return "", err
		}
		if isNil {
			return a, nil
		}
	}
	if n, isAlpha := sodg.AlphaIndex(a); isAlpha {
		kids, err := u.st.Kids(v)
		if err != nil {
			return "", err
		}
		i := 0
		for _, e := range kids {
			if !sodg.IsASCII(e.Label) {
				continue
			}
			if i == n {
				return u.tie(v, e.Label)
			}
			i++
		}
		return "", xerrors.Errorf("ν%d has only %d ascii attribute(s), %s is out of reach: %w", v, i, a, ErrCannotTie)
	}
	return "", xerrors.Errorf("can't tie ν%d.%s: %w", v, a, ErrCannotTie)
}

// isNil reports whether the vertex is a dead-end: its only departing edge
// is ρ.
func (u *Universe) isNil(v uint32) (bool, error) {
	kids, err := u.st.Kids(v)
	if err != nil {
		return false, err
	}
	return len(kids) == 1 && kids[0].Label == sodg.LRho, nil
}
