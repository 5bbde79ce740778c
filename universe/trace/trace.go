// Package trace provides a debugging tracer that snapshots the graph in
// DOT format around every resolution step of the engine.
package trace

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/surgelang/sodg/sodg"
)

// Snapshotter writes a numbered .dot file to a directory every time the
// rendered graph changes between resolution steps, plus an indented step
// log. It implements the engine's Tracer interface. Snapshotting is a
// debugging aid; failures are logged and never propagated into the
// evaluation.
type Snapshotter struct {
	dir    string
	logger *logrus.Entry
	pos    int
	last   string
}

// NewSnapshotter creates a tracer writing into dir. The directory is
// created on first use. Every snapshot session is tagged with a fresh id
// in the log fields.
func NewSnapshotter(dir string, logger *logrus.Entry) *Snapshotter {
	if logger == nil {
		logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return &Snapshotter{
		dir:    dir,
		logger: logger.WithField("session", uuid.New()),
	}
}

// Enter records the graph state when a resolution step is entered.
func (t *Snapshotter) Enter(st sodg.Store, depth int, msg string) {
	t.record(st, depth, msg)
}

// Exit records the graph state when a resolution step is left.
func (t *Snapshotter) Exit(st sodg.Store, depth int, msg string) {
	t.record(st, depth, msg)
}

func (t *Snapshotter) record(st sodg.Store, depth int, msg string) {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		t.logger.WithError(err).Warn("can't create snapshot directory")
		return
	}
	dot := st.DOT()
	if dot != t.last {
		t.pos++
		t.last = dot
		name := filepath.Join(t.dir, fmt.Sprintf("%d.dot", t.pos))
		if err := os.WriteFile(name, []byte(dot), 0o644); err != nil {
			t.logger.WithError(err).Warn("can't write snapshot")
		}
	}
	line := strings.Repeat("  ", depth) + asciify(msg) + "\n"
	logPath := filepath.Join(t.dir, "log.txt")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.logger.WithError(err).Warn("can't open step log")
		return
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(line); err != nil {
		t.logger.WithError(err).Warn("can't append to step log")
	}
}

// asciify replaces ν with "v" and Δ with "D" in a step message; other
// Greek labels are written as they are.
func asciify(msg string) string {
	msg = strings.ReplaceAll(msg, "ν", "v")
	return strings.ReplaceAll(msg, "Δ", "D")
}
