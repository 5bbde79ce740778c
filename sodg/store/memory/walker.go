package memory

import (
	"strconv"
	"strings"

	"github.com/surgelang/sodg/sodg"
	"golang.org/x/xerrors"
)

// maxJumps caps the number of locator steps a single Find may take. Relays
// splice new steps into the locator, so a cyclic graph could otherwise keep
// the walk alive forever.
const maxJumps = 200

// Find resolves a dotted locator starting from vertex v. Structural steps
// (Φ, Q, ν<n>, ξ) are interpreted directly; an attribute step is first tried
// as a plain edge lookup and handed to the relay on a miss. The locator the
// relay returns replaces the failed step and the walk continues.
func (s *InMemorySodg) Find(v uint32, loc string, relay sodg.Relay) (uint32, error) {
	if s.IsEmpty() {
		return 0, xerrors.Errorf("find %q: %w", loc, sodg.ErrEmptyStore)
	}
	queue := splitLocator(loc)
	jumps := 0
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		if k == "" {
			return 0, xerrors.Errorf("find %q: the locator contains an empty step", loc)
		}
		jumps++
		if jumps > maxJumps {
			return 0, xerrors.Errorf(
				"find %q: too many jumps (%d), %d step(s) still pending: %q",
				loc, jumps, len(queue), strings.Join(queue, "."),
			)
		}
		switch {
		case k == "Φ" || k == "Q":
			v = 0
			if _, exists := s.vertices[v]; !exists {
				return 0, xerrors.Errorf("find %q: the root: %w", loc, sodg.ErrMissingVertex)
			}
		case k == "ξ" || k == "$":
			// Identity step, stay where we are.
		case strings.HasPrefix(k, "ν"):
			id, err := strconv.ParseUint(strings.TrimPrefix(k, "ν"), 10, 32)
			if err != nil {
				return 0, xerrors.Errorf("find %q: bad vertex literal %q: %w", loc, k, err)
			}
			v = uint32(id)
			if _, exists := s.vertices[v]; !exists {
				return 0, xerrors.Errorf("find %q: ν%d: %w", loc, v, sodg.ErrMissingVertex)
			}
		default:
			if to, bound := s.Kid(v, k); bound {
				v = to
				continue
			}
			if relay == nil {
				return 0, xerrors.Errorf(
					"find %q: can't get .%s from ν%d (%s): %w",
					loc, k, v, s.printKids(v), sodg.ErrNotFound,
				)
			}
			re, err := relay.Relay(v, k)
			if err != nil {
				return 0, xerrors.Errorf("find %q: at .%s of ν%d: %w", loc, k, v, err)
			}
			queue = append(splitLocator(re), queue...)
		}
	}
	return v, nil
}

// printKids summarises the attributes of a vertex, for error messages.
func (s *InMemorySodg) printKids(v uint32) string {
	vtx, exists := s.vertices[v]
	if !exists {
		return "absent vertex"
	}
	if len(vtx.order) == 0 {
		return "no attributes"
	}
	return strconv.Itoa(len(vtx.order)) + " attribute(s): " + strings.Join(vtx.order, ", ")
}

func splitLocator(loc string) []string {
	if loc == "" {
		return nil
	}
	return strings.Split(loc, ".")
}
