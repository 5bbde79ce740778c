// Package universe implements the dataization engine: the component that
// resolves locators over a Surging Object DiGraph, performs dynamic
// dispatch, materialises copies on access, invokes native atoms and
// ultimately yields raw bytes.
package universe

import (
	"fmt"
	"io/ioutil"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"github.com/surgelang/sodg/hexbytes"
	"github.com/surgelang/sodg/sodg"
	"github.com/surgelang/sodg/sodg/store/memory"
	"golang.org/x/xerrors"
)

var (
	// ErrTooDeep is returned when an evaluation exceeds the configured
	// recursion depth.
	ErrTooDeep = xerrors.New("the recursion is too deep")

	// ErrUnknownAtom is returned when a λ edge names an atom that was
	// never registered.
	ErrUnknownAtom = xerrors.New("atom is not registered")

	// ErrCannotTie is returned when a copy pushes an attribute that
	// cannot legally land on the fresh vertex.
	ErrCannotTie = xerrors.New("can't tie")
)

// defaultMaxDepth bounds the mutual recursion of the resolution steps.
const defaultMaxDepth = 20

// Atom is a native callable attached to a vertex through a λ edge. It
// receives the engine and the dispatching vertex and returns a vertex
// whose traversal from .Δ yields the computed datum. Atoms may mutate the
// graph through the engine.
type Atom func(u *Universe, v uint32) (uint32, error)

// Tracer receives enter/exit notifications around every resolution step.
// Implementations must tolerate being called at high frequency.
type Tracer interface {
	Enter(st sodg.Store, depth int, msg string)
	Exit(st sodg.Store, depth int, msg string)
}

// Config encapsulates the settings for creating a Universe.
type Config struct {
	// The graph store to evaluate over. If not specified, a fresh
	// in-memory store is used.
	Store sodg.Store

	// MaxDepth bounds the recursion of the resolution steps. If not
	// specified, a default of 20 is used.
	MaxDepth int

	// A clock instance for timing evaluations. If not specified, the
	// default wall-clock will be used instead.
	Clock clock.Clock

	// A tracer receiving a snapshot callback around every resolution
	// step. Optional.
	Tracer Tracer

	// The logger to use. If not defined an output-discarding logger
	// will be used instead.
	Logger *logrus.Entry
}

// validate checks the configuration and applies defaults.
func (cfg *Config) validate() error {
	var err error
	if cfg.Store == nil {
		cfg.Store = newStoreWithInvariants()
	}
	if cfg.MaxDepth < 0 {
		err = multierror.Append(err, xerrors.New("max depth cannot be negative"))
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = defaultMaxDepth
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// Universe is the dataization engine. It owns the graph store, the atom
// registry and the current recursion depth; nothing else is carried
// between evaluations. It is not safe for concurrent use.
type Universe struct {
	st       sodg.Store
	atoms    map[string]Atom
	depth    int
	maxDepth int
	clk      clock.Clock
	tracer   Tracer
	logger   *logrus.Entry
}

// New creates a Universe over a fresh in-memory store with the structural
// invariants of the data model attached as alerts.
func New() *Universe {
	u, _ := NewWithConfig(Config{})
	return u
}

// FromStore creates a Universe over an existing store, for example one
// produced by the assembler or loaded from disk. No alerts are attached;
// the store keeps whichever it already has.
func FromStore(st sodg.Store) *Universe {
	u, _ := NewWithConfig(Config{Store: st})
	return u
}

// NewWithConfig creates a Universe using the specified configuration.
func NewWithConfig(cfg Config) (*Universe, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("universe config validation failed: %w", err)
	}
	return &Universe{
		st:       cfg.Store,
		atoms:    make(map[string]Atom),
		maxDepth: cfg.MaxDepth,
		clk:      cfg.Clock,
		tracer:   cfg.Tracer,
		logger:   cfg.Logger,
	}, nil
}

// newStoreWithInvariants builds the default in-memory store with the
// structural invariants attached.
func newStoreWithInvariants() sodg.Store {
	st := memory.NewInMemorySodg()
	st.AlertOn(exclusivityAlert(sodg.LPi, sodg.LPhi))
	st.AlertOn(exclusivityAlert(sodg.LLambda, sodg.LDelta))
	return st
}

// exclusivityAlert rejects any vertex carrying both of the given labels.
func exclusivityAlert(a, b string) sodg.Alert {
	return func(st sodg.Store, touched []uint32) []string {
		var problems []string
		for _, v := range touched {
			_, hasA := st.Kid(v, a)
			_, hasB := st.Kid(v, b)
			if hasA && hasB {
				problems = append(problems, fmt.Sprintf("ν%d can't have both %s and %s", v, a, b))
			}
		}
		return problems
	}
}

// Store exposes the underlying graph store.
func (u *Universe) Store() sodg.Store { return u.st }

// Register adds a new atom under the given name. Registration is
// idempotent; re-registering the same name overwrites the previous atom.
func (u *Universe) Register(name string, a Atom) {
	u.atoms[name] = a
	u.logger.WithField("atom", name).Trace("atom registered")
}

// Add allocates a new vertex and returns its id.
func (u *Universe) Add() uint32 {
	v := u.st.NextID()
	if err := u.st.Add(v); err != nil {
		// NextID guarantees the id is fresh and a fresh vertex has no
		// edges for the alerts to reject.
		panic(xerrors.Errorf("failed to add ν%d: %w", v, err))
	}
	return v
}

// Bind creates the edge v1 -a-> v2.
func (u *Universe) Bind(v1, v2 uint32, a string) error {
	return u.st.Bind(v1, v2, a)
}

// Put saves data into a vertex, replacing any previous datum.
func (u *Universe) Put(v uint32, d hexbytes.Hex) error {
	return u.st.Put(v, d)
}

// Data returns the datum of a vertex.
func (u *Universe) Data(v uint32) (hexbytes.Hex, error) {
	return u.st.Data(v)
}

// Dataize resolves a locator to its ultimate byte-string value: it
// appends `.Δ` to the locator, resolves it to a vertex and reads the
// datum. The search starts from the root; start the locator with "Φ".
func (u *Universe) Dataize(loc string) (hexbytes.Hex, error) {
	evalID := uuid.New()
	started := u.clk.Now()
	v, err := u.Find(loc + "." + sodg.LDelta)
	if err != nil {
		return hexbytes.Hex{}, xerrors.Errorf("can't find %s: %w", loc, err)
	}
	d, err := u.st.Data(v)
	if err != nil {
		return hexbytes.Hex{}, xerrors.Errorf("dataize %s: %w", loc, err)
	}
	dataizationsTotal.Inc()
	u.logger.WithFields(logrus.Fields{
		"eval":     evalID,
		"locator":  loc,
		"vertex":   v,
		"bytes":    d.Len(),
		"duration": u.clk.Now().Sub(started),
	}).Debug("dataized")
	return d, nil
}

// Find resolves a locator to a vertex id without requiring a datum. The
// search starts from the root.
func (u *Universe) Find(loc string) (uint32, error) {
	if u.st.IsEmpty() {
		return 0, xerrors.Errorf("can't find %q: %w", loc, sodg.ErrEmptyStore)
	}
	// A call made by an atom runs on the depth counter of the evaluation
	// that invoked it; a top-level call starts and ends at zero.
	start := u.depth
	v, err := u.st.Find(0, loc, u)
	if err != nil {
		if xerrors.Is(err, ErrTooDeep) {
			depthExceededTotal.Inc()
		}
		return 0, xerrors.Errorf("failed to find %q: %w", loc, err)
	}
	u.depth = start
	return v, nil
}

// Slice projects the subgraph reachable from the vertex the locator
// resolves to, cutting the ρ and σ back-edges.
func (u *Universe) Slice(loc string) (sodg.Store, error) {
	return u.st.Slice(loc, func(_, _ uint32, a string) bool {
		return a != sodg.LRho && a != sodg.LSigma
	}, u)
}

// Dump saves the graph to a file and returns the number of bytes written.
func (u *Universe) Dump(path string) (int, error) {
	return u.st.Save(path)
}

// Relay implements sodg.Relay: it rewrites a locator step that failed a
// direct edge lookup into a locator naming the resolved vertex. This is
// where the store's walker hands control to the engine's resolution
// rules.
func (u *Universe) Relay(v uint32, a string) (string, error) {
	v1, err := u.fnd(v, a, 0)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ν%d", v1), nil
}
