package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/NicolasHaas/rendezvous/pkg/datastore"
	"github.com/NicolasHaas/rendezvous/pkg/logging"
	"github.com/NicolasHaas/rendezvous/pkg/server"
	"github.com/NicolasHaas/rendezvous/pkg/version"
)

type options struct {
	cfg         server.Config
	log         logging.Options
	showVersion bool
}

// parseFlags builds the config from defaults, then the -config file, then any
// flag given explicitly on the command line.
func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("rendezvous-server", flag.ContinueOnError)
	fs.SetOutput(stderr)

	flagCfg := server.DefaultConfig()
	configPath := fs.String("config", "", "YAML config file (flags override its values)")
	fs.StringVar(&flagCfg.ListenAddr, "listen", flagCfg.ListenAddr, "TCP relay bind address")
	fs.StringVar(&flagCfg.MetricsAddr, "metrics", flagCfg.MetricsAddr, "HTTP bind address for /metrics, /healthz and /directory (empty to disable)")
	fs.StringVar(&flagCfg.WebSocketAddr, "ws", flagCfg.WebSocketAddr, "HTTP bind address for the /ws bridge (empty to disable)")
	fs.StringVar(&flagCfg.DBPath, "db", flagCfg.DBPath, "SQLite presence log file (empty to disable)")
	fs.IntVar(&flagCfg.MaxSessions, "max-sessions", flagCfg.MaxSessions, "Maximum concurrent sessions (0 = unbounded)")
	fs.Float64Var(&flagCfg.RelayRate, "relay-rate", flagCfg.RelayRate, "MSG relays per second per session (0 = unlimited)")
	fs.IntVar(&flagCfg.RelayBurst, "relay-burst", flagCfg.RelayBurst, "Burst size for -relay-rate")
	fs.BoolVar(&flagCfg.ExportPresence, "export-presence", false, "Export the presence log as YAML and exit")

	opts := options{log: logging.Options{Output: os.Stdout}}
	fs.StringVar(&opts.log.Level, "log-level", "info", "Log level: "+logging.LevelNames())
	fs.StringVar(&opts.log.Format, "log-format", "text", "Log format: text or json")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	cfg := server.DefaultConfig()
	if *configPath != "" {
		fileCfg, err := server.LoadConfigFile(*configPath)
		if err != nil {
			return options{}, err
		}
		cfg = fileCfg
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.ListenAddr = flagCfg.ListenAddr
		case "metrics":
			cfg.MetricsAddr = flagCfg.MetricsAddr
		case "ws":
			cfg.WebSocketAddr = flagCfg.WebSocketAddr
		case "db":
			cfg.DBPath = flagCfg.DBPath
		case "max-sessions":
			cfg.MaxSessions = flagCfg.MaxSessions
		case "relay-rate":
			cfg.RelayRate = flagCfg.RelayRate
		case "relay-burst":
			cfg.RelayBurst = flagCfg.RelayBurst
		}
	})
	cfg.ExportPresence = flagCfg.ExportPresence

	if err := cfg.Validate(); err != nil {
		return options{}, err
	}
	opts.cfg = cfg
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Println(version.Full("rendezvous-server"))
		return
	}

	// Configure structured logging
	if err := logging.Setup(opts.log); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}
	cfg := opts.cfg

	// Export command (run and exit)
	if cfg.ExportPresence {
		if err := exportPresence(cfg.DBPath, os.Stdout); err != nil {
			slog.Error("export presence", "err", err)
			os.Exit(1)
		}
		return
	}

	var deps server.Dependencies
	if cfg.DBPath != "" {
		st, err := datastore.New(cfg.DBPath)
		if err != nil {
			slog.Error("open presence log", "err", err)
			os.Exit(1)
		}
		deps.Store = st
	}

	slog.Info("starting rendezvous server", "version", version.String())
	srv := server.New(cfg, deps)
	if err := srv.Run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

func exportPresence(dbPath string, w io.Writer) error {
	if dbPath == "" {
		return errors.New("-export-presence needs -db or db_path")
	}
	st, err := datastore.New(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	data, err := server.ExportPresenceYAML(st)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
