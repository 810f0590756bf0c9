// Command agentctl drives the agent dashboard API from a terminal. Mutations
// made while the API is unreachable are queued on disk and replayed by a
// later invocation.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-agent-client/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

var (
	errUsage = errors.New("usage")
	logOnce  sync.Once
)

type options struct {
	configPath string
	baseURL    string
	storage    string
	dataDir    string
	offline    bool
	debug      bool
	version    bool
	wait       time.Duration
}

func (o *options) register(fs *pflag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "YAML config file")
	fs.StringVar(&o.baseURL, "base-url", "", "API root, e.g. http://localhost:8080/api")
	fs.StringVar(&o.storage, "storage", "", "storage backend: file, sqlite or memory")
	fs.StringVar(&o.dataDir, "data-dir", "", "folder for persisted state")
	fs.BoolVar(&o.offline, "offline", false, "skip the health check and start offline")
	fs.BoolVarP(&o.debug, "debug", "d", false, "log requests and responses")
	fs.BoolVar(&o.version, "version", false, "print the banner and exit")
	fs.DurationVar(&o.wait, "wait", 5*time.Second, "how long to let queued replays finish before exiting")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	if errors.Is(err, errUsage) {
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	stderr = &lockedWriter{w: stderr}
	var opts options
	fs := pflag.NewFlagSet("agentctl", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)
	opts.register(fs)
	fs.Usage = func() { usage(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return errUsage
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.version {
		displayAppname(stdout, cfg.GetAppName())
		return nil
	}
	if fs.NArg() == 0 {
		usage(stderr, fs)
		return errUsage
	}
	setupLogging(cfg, opts.debug, stderr)

	a, err := newApp(ctx, cfg, opts, stderr)
	if err != nil {
		return err
	}
	defer a.close()

	return a.dispatch(ctx, fs.Arg(0), fs.Args()[1:], stdout)
}

// lockedWriter serialises writes from the queue, the prober and the logger.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.New(), nil
	}
	return config.Load(path)
}

func setupLogging(c config.Config, debug bool, w io.Writer) {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if level, err := zerolog.ParseLevel(c.GetLogLevel()); err == nil && level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	}
	if debug || c.GetDebug() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	logOnce.Do(func() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly})
	})
}

func displayAppname(w io.Writer, appname string) {
	fig := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(w, fig.String())
}

func usage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintln(w, `usage: agentctl [flags] <command> [args]

commands:
  login --email EMAIL [--password PASSWORD]
  logout
  agents list | get ID | create --name NAME [...] | update ID [...] | delete ID
  sources list AGENT | add-text AGENT --content TEXT | add-url AGENT URL
          upload AGENT FILE | download ID [FILE] | delete ID
  chat AGENT [--session ID] MESSAGE...
  history SESSION
  queue status | list | clear | drain
  storage info

flags:`)
	fs.PrintDefaults()
}
