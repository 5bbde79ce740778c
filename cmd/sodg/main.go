package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/surgelang/sodg/eolang"
	"github.com/surgelang/sodg/script"
	"github.com/surgelang/sodg/sodg"
	"github.com/surgelang/sodg/sodg/store/memory"
	"github.com/surgelang/sodg/universe"
	"github.com/surgelang/sodg/universe/trace"
	"github.com/urfave/cli"
	"golang.org/x/xerrors"
)

var (
	appName = "sodg"
	appSha  = "populated-at-link-time"
	logger  *logrus.Entry
)

func main() {
	host, _ := os.Hostname()
	rootLogger := logrus.New()
	rootLogger.SetFormatter(new(logrus.JSONFormatter))
	logger = rootLogger.WithFields(logrus.Fields{
		"app":  appName,
		"sha":  appSha,
		"host": host,
	})

	if err := makeApp().Run(os.Args); err != nil {
		logger.WithField("err", err).Error("shutting down due to error")
		_ = os.Stderr.Sync()
		os.Exit(1)
	}
}

func makeApp() *cli.App {
	app := cli.NewApp()
	app.Name = appName
	app.Version = appSha
	app.Usage = "SODG-based virtual machine for object-calculus programs"
	app.Commands = []cli.Command{
		{
			Name:      "empty",
			Usage:     "Create an empty binary graph file",
			ArgsUsage: "<target>",
			Action:    runEmpty,
		},
		{
			Name:      "compile",
			Usage:     "Assemble a .sodg script into a binary graph file",
			ArgsUsage: "<script> <target>",
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "force",
					Usage: "Overwrite the target file if it already exists",
				},
			},
			Action: runCompile,
		},
		{
			Name:      "merge",
			Usage:     "Merge a compiled graph into a container graph under a locator",
			ArgsUsage: "<container> <donor> <locator>",
			Action:    runMerge,
		},
		{
			Name:      "dataize",
			Usage:     "Dataize an object in a binary graph file and print its hex",
			ArgsUsage: "<file> <locator>",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "snapshots",
					Usage: "Directory to write DOT snapshots of every resolution step",
				},
				cli.IntFlag{
					Name:  "max-depth",
					Usage: "The recursion bound for the dataization engine",
				},
			},
			Action: runDataize,
		},
		{
			Name:      "inspect",
			Usage:     "Print all visible information from a binary graph file",
			ArgsUsage: "<file>",
			Action:    runInspect,
		},
		{
			Name:      "dot",
			Usage:     "Print a binary graph file in Graphviz DOT format",
			ArgsUsage: "<file>",
			Action:    runDot,
		},
		{
			Name:      "serve",
			Usage:     "Serve dataization over HTTP together with prometheus metrics",
			ArgsUsage: "<file>",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:   "port",
					Value:  8080,
					EnvVar: "SODG_PORT",
					Usage:  "The port for exposing the HTTP endpoints",
				},
			},
			Action: runServe,
		},
	}
	return app
}

func runEmpty(appCtx *cli.Context) error {
	target, err := oneArg(appCtx, "target")
	if err != nil {
		return err
	}
	st := memory.NewInMemorySodg()
	written, err := st.Save(target)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"target": target, "bytes": written}).Info("empty graph created")
	return nil
}

func runCompile(appCtx *cli.Context) error {
	if appCtx.NArg() != 2 {
		return xerrors.New("usage: compile <script> <target>")
	}
	source, target := appCtx.Args().Get(0), appCtx.Args().Get(1)
	if _, err := os.Stat(target); err == nil && !appCtx.Bool("force") {
		return xerrors.Errorf("target %q already exists; use --force to overwrite", target)
	}
	sc, err := script.NewFromFile(source)
	if err != nil {
		return err
	}
	st := memory.NewInMemorySodg()
	deployed, err := sc.Deploy(st)
	if err != nil {
		return xerrors.Errorf("compile %q: %w", source, err)
	}
	written, err := st.Save(target)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"source":       source,
		"target":       target,
		"instructions": deployed,
		"vertices":     st.Len(),
		"bytes":        written,
	}).Info("compiled")
	return nil
}

func runMerge(appCtx *cli.Context) error {
	if appCtx.NArg() != 3 {
		return xerrors.New("usage: merge <container> <donor> <locator>")
	}
	containerPath := appCtx.Args().Get(0)
	donorPath := appCtx.Args().Get(1)
	loc := appCtx.Args().Get(2)

	container, err := memory.Load(containerPath)
	if err != nil {
		return err
	}
	donor, err := memory.Load(donorPath)
	if err != nil {
		return err
	}
	root, err := container.Find(0, loc, nil)
	if err != nil {
		return xerrors.Errorf("can't resolve merge locator %q: %w", loc, err)
	}
	if err := container.Merge(donor, root); err != nil {
		return err
	}
	written, err := container.Save(containerPath)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"container": containerPath,
		"donor":     donorPath,
		"locator":   loc,
		"vertices":  container.Len(),
		"bytes":     written,
	}).Info("merged")
	return nil
}

func runDataize(appCtx *cli.Context) error {
	if appCtx.NArg() != 2 {
		return xerrors.New("usage: dataize <file> <locator>")
	}
	u, err := loadUniverse(appCtx.Args().Get(0), appCtx)
	if err != nil {
		return err
	}
	d, err := u.Dataize(appCtx.Args().Get(1))
	if err != nil {
		return err
	}
	fmt.Println(d.String())
	return nil
}

func runInspect(appCtx *cli.Context) error {
	st, err := loadStore(appCtx)
	if err != nil {
		return err
	}
	fmt.Print(inspect(st))
	return nil
}

func runDot(appCtx *cli.Context) error {
	st, err := loadStore(appCtx)
	if err != nil {
		return err
	}
	fmt.Print(st.DOT())
	return nil
}

func runServe(appCtx *cli.Context) error {
	var wg sync.WaitGroup
	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	u, err := loadUniverse(appCtx.Args().Get(0), appCtx)
	if err != nil {
		return err
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/dataize", func(w http.ResponseWriter, r *http.Request) {
		loc := r.URL.Query().Get("loc")
		if loc == "" {
			http.Error(w, "missing loc parameter", http.StatusBadRequest)
			return
		}
		d, err := u.Dataize(loc)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		_, _ = fmt.Fprintln(w, d.String())
	}).Methods("GET")
	router.HandleFunc("/inspect", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, inspect(u.Store()))
	}).Methods("GET")

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", appCtx.Int("port")))
	if err != nil {
		return err
	}
	defer func() { _ = listener.Close() }()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.WithField("port", appCtx.Int("port")).Info("listening for HTTP requests")
		srv := &http.Server{Handler: router}
		_ = srv.Serve(listener)
	}()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGHUP)
		select {
		case s := <-sigCh:
			logger.WithField("signal", s.String()).Info("shutting down due to signal")
			_ = listener.Close()
			cancelFn()
		case <-ctx.Done():
		}
	}()

	wg.Wait()
	return nil
}

// oneArg extracts the single positional argument of a subcommand.
func oneArg(appCtx *cli.Context, name string) (string, error) {
	if appCtx.NArg() != 1 {
		return "", xerrors.Errorf("the %s must be specified", name)
	}
	return appCtx.Args().Get(0), nil
}

// loadUniverse loads a graph file and wraps it into an engine with the
// well-known atoms registered. Atom registrations are not persisted with
// the graph, so every load re-registers them.
func loadUniverse(path string, appCtx *cli.Context) (*universe.Universe, error) {
	if path == "" {
		return nil, xerrors.New("the graph file must be specified")
	}
	st, err := memory.Load(path)
	if err != nil {
		return nil, err
	}
	cfg := universe.Config{Store: st, Logger: logger}
	if appCtx.Int("max-depth") > 0 {
		cfg.MaxDepth = appCtx.Int("max-depth")
	}
	if dir := appCtx.String("snapshots"); dir != "" {
		cfg.Tracer = trace.NewSnapshotter(dir, logger)
	}
	u, err := universe.NewWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	eolang.Register(u)
	return u, nil
}

func loadStore(appCtx *cli.Context) (sodg.Store, error) {
	if appCtx.NArg() != 1 {
		return nil, xerrors.New("the graph file must be specified")
	}
	return memory.Load(appCtx.Args().Get(0))
}

// inspect renders a human-readable listing of every vertex, its datum and
// its departing edges.
func inspect(st sodg.Store) string {
	out := fmt.Sprintf("%d vertice(s):\n", st.Len())
	for _, v := range st.IDs() {
		out += fmt.Sprintf("ν%d", v)
		if d, err := st.Data(v); err == nil {
			out += fmt.Sprintf(" %s", d)
		}
		out += "\n"
		kids, err := st.Kids(v)
		if err != nil {
			continue
		}
		for _, e := range kids {
			out += fmt.Sprintf("  .%s -> ν%d\n", e.Label, e.To)
		}
	}
	return out
}
