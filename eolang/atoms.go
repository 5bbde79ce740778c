// Package eolang provides the well-known native atoms of the standard
// object library and the helpers atoms use to materialise results.
package eolang

import (
	"fmt"

	"github.com/surgelang/sodg/hexbytes"
	"github.com/surgelang/sodg/sodg"
	"github.com/surgelang/sodg/universe"
	"golang.org/x/xerrors"
)

// Register installs all well-known atoms into the engine.
func Register(u *universe.Universe) {
	u.Register("int$plus", IntPlus)
	u.Register("int$times", IntTimes)
	u.Register("int$div", IntDiv)
	u.Register("bool$not", BoolNot)
	u.Register("bool$and", BoolAnd)
}

// CopyOfInt makes a fresh integer-carrying vertex: ν(new) —Δ→ ν(new+1)
// with the encoded value. When an int prototype exists at Φ.int the copy
// is also tied to it with π.
func CopyOfInt(u *universe.Universe, value int64) (uint32, error) {
	v := u.Add()
	if proto, err := u.Find("Φ.int"); err == nil {
		if err := u.Bind(v, proto, sodg.LPi); err != nil {
			return 0, xerrors.Errorf("copy of int: %w", err)
		}
	}
	d := u.Add()
	if err := u.Put(d, hexbytes.FromInt64(value)); err != nil {
		return 0, xerrors.Errorf("copy of int: %w", err)
	}
	if err := u.Bind(v, d, sodg.LDelta); err != nil {
		return 0, xerrors.Errorf("copy of int: %w", err)
	}
	return v, nil
}

// copyOfBool makes a fresh boolean-carrying vertex.
func copyOfBool(u *universe.Universe, value bool) (uint32, error) {
	v := u.Add()
	d := u.Add()
	if err := u.Put(d, hexbytes.FromBool(value)); err != nil {
		return 0, xerrors.Errorf("copy of bool: %w", err)
	}
	if err := u.Bind(v, d, sodg.LDelta); err != nil {
		return 0, xerrors.Errorf("copy of bool: %w", err)
	}
	return v, nil
}

// subjectInt dataizes the subject of the atom call (νv.ρ) as an integer.
func subjectInt(u *universe.Universe, v uint32) (int64, error) {
	d, err := u.Dataize(fmt.Sprintf("ν%d.%s", v, sodg.LRho))
	if err != nil {
		return 0, xerrors.Errorf("subject of ν%d: %w", v, err)
	}
	return d.Int64()
}

// argumentInt dataizes the n-th positional argument (νv.α<n>) as an
// integer.
func argumentInt(u *universe.Universe, v uint32, n int) (int64, error) {
	d, err := u.Dataize(fmt.Sprintf("ν%d.%s", v, sodg.Alpha(n)))
	if err != nil {
		return 0, xerrors.Errorf("argument %d of ν%d: %w", n, v, err)
	}
	return d.Int64()
}

// IntPlus implements the int.plus atom.
func IntPlus(u *universe.Universe, v uint32) (uint32, error) {
	rho, err := subjectInt(u, v)
	if err != nil {
		return 0, err
	}
	x, err := argumentInt(u, v, 0)
	if err != nil {
		return 0, err
	}
	return CopyOfInt(u, rho+x)
}

// IntTimes implements the int.times atom.
func IntTimes(u *universe.Universe, v uint32) (uint32, error) {
	rho, err := subjectInt(u, v)
	if err != nil {
		return 0, err
	}
	x, err := argumentInt(u, v, 0)
	if err != nil {
		return 0, err
	}
	return CopyOfInt(u, rho*x)
}

// IntDiv implements the int.div atom.
func IntDiv(u *universe.Universe, v uint32) (uint32, error) {
	rho, err := subjectInt(u, v)
	if err != nil {
		return 0, err
	}
	x, err := argumentInt(u, v, 0)
	if err != nil {
		return 0, err
	}
	if x == 0 {
		return 0, xerrors.Errorf("division of %d by zero at ν%d", rho, v)
	}
	return CopyOfInt(u, rho/x)
}

// BoolNot implements the bool.not atom.
func BoolNot(u *universe.Universe, v uint32) (uint32, error) {
	d, err := u.Dataize(fmt.Sprintf("ν%d.%s", v, sodg.LRho))
	if err != nil {
		return 0, xerrors.Errorf("subject of ν%d: %w", v, err)
	}
	b, err := d.Bool()
	if err != nil {
		return 0, err
	}
	return copyOfBool(u, !b)
}

// BoolAnd implements the bool.and atom.
func BoolAnd(u *universe.Universe, v uint32) (uint32, error) {
	d, err := u.Dataize(fmt.Sprintf("ν%d.%s", v, sodg.LRho))
	if err != nil {
		return 0, xerrors.Errorf("subject of ν%d: %w", v, err)
	}
	rho, err := d.Bool()
	if err != nil {
		return 0, err
	}
	d, err = u.Dataize(fmt.Sprintf("ν%d.%s", v, sodg.Alpha(0)))
	if err != nil {
		return 0, xerrors.Errorf("argument 0 of ν%d: %w", v, err)
	}
	x, err := d.Bool()
	if err != nil {
		return 0, err
	}
	return copyOfBool(u, rho && x)
}
