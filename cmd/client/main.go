package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/NicolasHaas/rendezvous/pkg/client"
	"github.com/NicolasHaas/rendezvous/pkg/logging"
	"github.com/NicolasHaas/rendezvous/pkg/version"
)

type options struct {
	cfg         client.Config
	configPath  string
	username    string
	peerPort    string
	showVersion bool
	writeConfig bool
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags] <username> <peer_port>\n", fs.Name())
		fs.PrintDefaults()
	}
}

// parseFlags builds the config from defaults, then the -config file, then
// explicit flags, then RENDEZVOUS_LOG_* from the environment.
func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("rendezvous-client", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = usage(fs)

	var opts options
	flagCfg := client.DefaultConfig()
	fs.StringVar(&opts.configPath, "config", "client.yaml", "YAML config file (ignored if missing)")
	fs.StringVar(&flagCfg.ServerAddr, "server", flagCfg.ServerAddr, "Relay server address")
	fs.StringVar(&flagCfg.PeerHost, "peer-host", flagCfg.PeerHost, "Peer listener bind host (empty = all interfaces)")
	fs.StringVar(&flagCfg.LogLevel, "log-level", flagCfg.LogLevel, "Log level: "+logging.LevelNames())
	fs.StringVar(&flagCfg.LogFormat, "log-format", flagCfg.LogFormat, "Log format: text or json")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")
	fs.BoolVar(&opts.writeConfig, "write-config", false, "Write the effective config to -config and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg, err := client.LoadConfig(opts.configPath)
	if err != nil {
		return options{}, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "server":
			cfg.ServerAddr = flagCfg.ServerAddr
		case "peer-host":
			cfg.PeerHost = flagCfg.PeerHost
		case "log-level":
			cfg.LogLevel = flagCfg.LogLevel
		case "log-format":
			cfg.LogFormat = flagCfg.LogFormat
		}
	})
	env := logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}.FromEnv()
	cfg.LogLevel, cfg.LogFormat = env.Level, env.Format
	opts.cfg = cfg

	if opts.showVersion || opts.writeConfig {
		return opts, nil
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return options{}, errors.New("expected <username> <peer_port>")
	}
	opts.username, opts.peerPort = fs.Arg(0), fs.Arg(1)
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
		fmt.Println(version.Full("rendezvous-client"))
		return
	}
	if opts.writeConfig {
		if err := opts.cfg.Save(opts.configPath); err != nil {
			fmt.Fprintf(os.Stderr, "write config: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Logs go to stderr so they never mix with chat output.
	if err := logging.Setup(logging.Options{
		Level:  opts.cfg.LogLevel,
		Format: opts.cfg.LogFormat,
		Output: os.Stderr,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	app, err := client.NewApp(opts.cfg, opts.username, opts.peerPort, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Stdin); err != nil {
		slog.Error("client error", "err", err)
		os.Exit(1)
	}
}
