// Package cli implements the fbrs command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ngenohkevin/fbrs/config"
	"github.com/ngenohkevin/fbrs/internal/control"
	"github.com/ngenohkevin/fbrs/internal/descriptor"
	"github.com/ngenohkevin/fbrs/internal/identity"
	"github.com/ngenohkevin/fbrs/internal/logging"
	"github.com/ngenohkevin/fbrs/internal/server"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2

	startTimeout = 10 * time.Second
)

// ExitError carries a specific exit code
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: exitUsage, Message: fmt.Sprintf(format, args...)}
}

// env bundles what every command needs
type env struct {
	ctx    context.Context
	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer
}

type command struct {
	name    string
	summary string
	run     func(e *env, args []string) error
}

func commands() []command {
	return []command{
		{"serve", "run the service in the foreground", runServe},
		{"start", "run the service and report once it answers", runStart},
		{"stop", "stop a running service", runStop},
		{"status", "report whether the service is running", runStatus},
		{"query", "describe a path through the running service", runQuery},
		{"groups", "manage groups", runGroups},
		{"users", "manage users", runUsers},
		{"tokens", "manage user tokens", runTokens},
	}
}

// Run executes the command line and returns the process exit code
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return exitUsage
	}

	switch args[0] {
	case "-h", "--help", "help":
		printUsage(stdout)
		return exitOK
	}

	var cmd *command
	for _, c := range commands() {
		if c.name == args[0] {
			cmd = &c
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "unknown command: %q\n\n", args[0])
		printUsage(stderr)
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "error: failed to load config: %v\n", err)
		return exitError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := &env{ctx: ctx, cfg: cfg, stdout: stdout, stderr: stderr}
	if err := cmd.run(e, args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		return exitError
	}
	return exitOK
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `fbrs - filesystem browser service

Usage:
  fbrs <command> [flags]

Commands:
`)
	for _, c := range commands() {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.summary)
	}
	fmt.Fprint(w, `
Use "fbrs <command> -h" for more info about a command.
`)
}

func newFlagSet(e *env, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usageError("%v", err)
	}
	if fs.NArg() > 0 {
		return usageError("unexpected arguments: %v", fs.Args())
	}
	return nil
}

// addrFlags registers -ip and -port and returns a func applying them to cfg
func addrFlags(fs *flag.FlagSet, e *env) func() (*config.Config, error) {
	ip := fs.String("ip", "", "address to bind or contact (default from FBRS_IP)")
	port := fs.Int("port", 0, "port to bind or contact (default from FBRS_PORT)")
	return func() (*config.Config, error) {
		cfg := e.cfg.WithOverrides(*ip, *port)
		if err := cfg.Validate(); err != nil {
			return nil, usageError("%v", err)
		}
		return cfg, nil
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func openStore(ctx context.Context, cfg *config.Config) (*identity.Store, error) {
	var adapter identity.Adapter
	switch cfg.Adapter {
	case config.AdapterMemory:
		adapter = identity.NewMemoryAdapter()
	default:
		adapter = identity.NewDiskAdapter(cfg.StorePath)
	}
	return identity.Open(ctx, adapter)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
}

func runServe(e *env, args []string) error {
	fs := newFlagSet(e, "serve")
	resolve := addrFlags(fs, e)
	if err := parse(fs, args); err != nil {
		return err
	}
	cfg, err := resolve()
	if err != nil {
		return err
	}
	return serve(e, cfg, nil)
}

func runStart(e *env, args []string) error {
	fs := newFlagSet(e, "start")
	resolve := addrFlags(fs, e)
	if err := parse(fs, args); err != nil {
		return err
	}
	cfg, err := resolve()
	if err != nil {
		return err
	}

	return serve(e, cfg, func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, startTimeout)
		defer cancel()
		if err := control.New(cfg.BaseURL()).WaitRunning(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				fmt.Fprintf(e.stderr, "error: service did not come up: %v\n", err)
			}
			return
		}
		fmt.Fprintf(e.stdout, "service started on %s\n", cfg.Addr())
	})
}

// serve runs the server until it stops. started, if set, runs once the
// address is bound and is canceled and waited for before serve returns.
func serve(e *env, cfg *config.Config, started func(context.Context)) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := openStore(e.ctx, cfg)
	if err != nil {
		return err
	}

	srv := server.New(cfg, logger, store)
	ln, err := srv.Listen()
	if err != nil {
		return err
	}
	if started == nil {
		return srv.Serve(ln)
	}

	ctx, cancel := context.WithCancel(e.ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		started(ctx)
	}()

	err = srv.Serve(ln)
	cancel()
	<-done
	return err
}

func runStop(e *env, args []string) error {
	fs := newFlagSet(e, "stop")
	resolve := addrFlags(fs, e)
	token := fs.String("token", "", "bearer token when the service requires auth")
	if err := parse(fs, args); err != nil {
		return err
	}
	cfg, err := resolve()
	if err != nil {
		return err
	}

	if err := control.New(cfg.BaseURL(), control.WithToken(*token)).Stop(e.ctx); err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, "service stopped")
	return nil
}

func runStatus(e *env, args []string) error {
	fs := newFlagSet(e, "status")
	resolve := addrFlags(fs, e)
	if err := parse(fs, args); err != nil {
		return err
	}
	cfg, err := resolve()
	if err != nil {
		return err
	}

	st, err := control.New(cfg.BaseURL()).Ping(e.ctx)
	if err != nil {
		return err
	}
	if st.Running {
		fmt.Fprintf(e.stdout, "service running on %s\n", cfg.Addr())
	} else {
		fmt.Fprintln(e.stdout, "service not running")
	}
	return nil
}

func queryOptions(path string, ignoreDotFiles, ignoreUpDir, ignoreCurDir, statEach bool) descriptor.Options {
	opts := descriptor.Options{
		Path:           path,
		IgnoreDotFiles: ignoreDotFiles,
		IgnoreUpDir:    ignoreUpDir,
		IgnoreCurDir:   ignoreCurDir,
	}
	if !statEach {
		opts.StatEach = descriptor.Bool(false)
	}
	return opts
}

func runQuery(e *env, args []string) error {
	fs := newFlagSet(e, "query")
	resolve := addrFlags(fs, e)
	token := fs.String("token", "", "bearer token when the service requires auth")
	path := fs.String("path", "", "path to describe (default: service home)")
	ignoreDotFiles := fs.Bool("ignore-dot-files", false, "drop entries whose name starts with a dot")
	ignoreUpDir := fs.Bool("ignore-up-dir", false, "omit the .. entry")
	ignoreCurDir := fs.Bool("ignore-cur-dir", false, "omit the . entry")
	statEach := fs.Bool("stat-each", true, "stat every directory entry")
	if err := parse(fs, args); err != nil {
		return err
	}
	cfg, err := resolve()
	if err != nil {
		return err
	}

	opts := queryOptions(*path, *ignoreDotFiles, *ignoreUpDir, *ignoreCurDir, *statEach)
	raw, err := control.New(cfg.BaseURL(), control.WithToken(*token)).Query(e.ctx, opts)
	if err != nil {
		return err
	}
	return printJSON(e.stdout, raw)
}
