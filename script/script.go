// Package script implements the assembler for the textual SODG instruction
// language. A script is a list of `;`-terminated instructions that are
// executed, in order, against a sodg.Store to build an initial graph.
package script

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/surgelang/sodg/hexbytes"
	"github.com/surgelang/sodg/sodg"
	"golang.org/x/xerrors"
)

// ErrParse is returned when a script line cannot be parsed. The wrapping
// error names the offending line number.
var ErrParse = xerrors.New("parse error")

var instructionRe = regexp.MustCompile(`^([A-Z]+)\s*\(([^)]*)\)\s*$`)

// Script holds the text of an SODG assembly script, ready to be deployed
// to a store one or more times.
type Script struct {
	text string
}

// instruction is a single parsed operation plus the context needed for
// error reporting.
type instruction struct {
	op   string
	args []string
	text string
	line int
}

// New creates a script from its source text.
func New(text string) *Script {
	return &Script{text: text}
}

// NewFromFile reads a script from a file.
func NewFromFile(path string) (*Script, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("read script from %q: %w", path, err)
	}
	return New(string(raw)), nil
}

// Deploy executes the script against the store and returns the number of
// instructions deployed.
func (s *Script) Deploy(st sodg.Store) (int, error) {
	return s.DeployWithRoot(st, 0)
}

// DeployWithRoot executes the script with every reference to ν0 resolved
// to the given root vertex instead, enabling nested package layouts. A
// non-zero root is taken to exist in the store already: the script's ADD
// of ν0 is skipped for it and does not create it. With root 0 the ADD is
// performed as written.
func (s *Script) DeployWithRoot(st sodg.Store, root uint32) (int, error) {
	instructions, err := s.parse()
	if err != nil {
		return 0, err
	}
	dep := &deployment{st: st, root: root, vars: make(map[string]uint32)}
	for i, ins := range instructions {
		if err := dep.apply(ins); err != nil {
			return i, xerrors.Errorf("deploy %q (line %d): %w", ins.text, ins.line, err)
		}
	}
	return len(instructions), nil
}

// parse splits the script into instructions, dropping whitespace and
// `#`-prefixed line comments. Instructions may span lines; the reported
// line number is the one the instruction starts on.
func (s *Script) parse() ([]instruction, error) {
	var (
		instructions []instruction
		buf          strings.Builder
	)
	line, startLine := 1, 1
	inComment := false
	for _, r := range s.text {
		switch {
		case r == '\n':
			line++
			inComment = false
			buf.WriteRune(' ')
		case inComment:
		case r == '#':
			inComment = true
		case r == ';':
			text := strings.TrimSpace(buf.String())
			buf.Reset()
			if text == "" {
				continue
			}
			m := instructionRe.FindStringSubmatch(text)
			if m == nil {
				return nil, xerrors.Errorf("line %d: %q: %w", startLine, text, ErrParse)
			}
			instructions = append(instructions, instruction{
				op:   m[1],
				args: splitArgs(m[2]),
				text: text + ";",
				line: startLine,
			})
		default:
			if strings.TrimSpace(buf.String()) == "" && !isSpace(r) {
				startLine = line
			}
			buf.WriteRune(r)
		}
	}
	if tail := strings.TrimSpace(buf.String()); tail != "" {
		return nil, xerrors.Errorf("line %d: unterminated instruction %q: %w", startLine, tail, ErrParse)
	}
	return instructions, nil
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\n'
}

// splitArgs splits an argument list on commas. Labels may be any non-empty
// string containing neither `,` nor `)`, so a plain split is sufficient.
func splitArgs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// deployment carries the per-run state: the synthetic `$name` bindings are
// stable within one deployment and discarded afterwards.
type deployment struct {
	st   sodg.Store
	root uint32
	vars map[string]uint32
}

func (d *deployment) apply(ins instruction) error {
	switch ins.op {
	case "ADD":
		if len(ins.args) != 1 {
			return xerrors.Errorf("ADD expects 1 argument, got %d: %w", len(ins.args), ErrParse)
		}
		v, err := d.vertex(ins.args[0])
		if err != nil {
			return err
		}
		if v == d.root && d.root != 0 {
			// The override root pre-exists in the target store.
			return nil
		}
		return d.st.Add(v)
	case "BIND":
		if len(ins.args) != 3 {
			return xerrors.Errorf("BIND expects 3 arguments, got %d: %w", len(ins.args), ErrParse)
		}
		v1, err := d.vertex(ins.args[0])
		if err != nil {
			return err
		}
		v2, err := d.vertex(ins.args[1])
		if err != nil {
			return err
		}
		a := ins.args[2]
		if a == "" {
			return xerrors.Errorf("BIND label is empty: %w", ErrParse)
		}
		return d.st.Bind(v1, v2, a)
	case "PUT":
		if len(ins.args) != 2 {
			return xerrors.Errorf("PUT expects 2 arguments, got %d: %w", len(ins.args), ErrParse)
		}
		v, err := d.vertex(ins.args[0])
		if err != nil {
			return err
		}
		d1, err := hexbytes.Parse(ins.args[1])
		if err != nil {
			return xerrors.Errorf("PUT datum: %w", err)
		}
		return d.st.Put(v, d1)
	default:
		return xerrors.Errorf("unknown operation %q: %w", ins.op, ErrParse)
	}
}

// vertex resolves an id argument: `$name` synthetic ids, `ν<n>` literals,
// or bare decimals. References to ν0 land on the deployment root.
func (d *deployment) vertex(arg string) (uint32, error) {
	if strings.HasPrefix(arg, "$") {
		name := strings.TrimPrefix(arg, "$")
		if name == "" {
			return 0, xerrors.Errorf("empty synthetic id: %w", ErrParse)
		}
		if v, seen := d.vars[name]; seen {
			return v, nil
		}
		v := d.st.NextID()
		// Reserve ahead of Add so that two distinct fresh names never
		// collide within one deployment.
		for _, taken := range d.vars {
			if v <= taken {
				v = taken + 1
			}
		}
		d.vars[name] = v
		return v, nil
	}
	raw := strings.TrimPrefix(arg, "ν")
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, xerrors.Errorf("bad vertex id %q: %w", arg, ErrParse)
	}
	if uint32(n) == 0 {
		return d.root, nil
	}
	return uint32(n), nil
}
