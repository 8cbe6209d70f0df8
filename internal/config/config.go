// Package config resolves process settings. Defaults are overridden by the
// environment (optionally seeded from a .env file), which is overridden by
// the command line.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 12345

	envPrefix = "COINRUSH_"
)

// Server configures cmd/server.
type Server struct {
	ListenHost        string        `json:"listenHost,omitempty" jsonschema:"description=Interface to bind; empty binds every interface"`
	Port              int           `json:"port" jsonschema:"minimum=1,maximum=65535,default=12345,description=TCP port for game connections"`
	DiagnosticsAddr   string        `json:"diagnosticsAddr,omitempty" jsonschema:"description=HTTP address for /health /diagnostics and /ws; empty disables it"`
	Latency           time.Duration `json:"latency,omitempty" jsonschema:"minimum=0,description=Artificial delay for every message in nanoseconds; zero disables it"`
	TickInterval      time.Duration `json:"tickInterval" jsonschema:"description=Simulation tick interval in nanoseconds"`
	BroadcastInterval time.Duration `json:"broadcastInterval" jsonschema:"description=Snapshot broadcast interval in nanoseconds"`
	CoinInterval      time.Duration `json:"coinInterval" jsonschema:"description=Coin spawn interval in nanoseconds"`
	StartThreshold    int           `json:"startThreshold" jsonschema:"minimum=1,default=2,description=Players required to start the session"`
	MaxPlayers        int           `json:"maxPlayers" jsonschema:"minimum=1,maximum=255,default=16"`
	LogLevel          string        `json:"logLevel,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	LogJSONPath       string        `json:"logJsonPath,omitempty" jsonschema:"description=Optional newline-delimited JSON event log"`
}

// Client configures cmd/client.
type Client struct {
	Host    string        `json:"host"`
	Port    int           `json:"port"`
	Latency time.Duration `json:"latency,omitempty"`
	LogPath string        `json:"logPath,omitempty"`
}

func DefaultServer() Server {
	return Server{
		Port:              DefaultPort,
		DiagnosticsAddr:   ":8080",
		TickInterval:      16 * time.Millisecond,
		BroadcastInterval: 50 * time.Millisecond,
		CoinInterval:      3 * time.Second,
		StartThreshold:    2,
		MaxPlayers:        16,
		LogLevel:          "info",
	}
}

func DefaultClient() Client {
	return Client{Host: DefaultHost, Port: DefaultPort}
}

// LoadEnvFiles seeds the process environment from .env style files. Missing
// files are skipped; variables already set win.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(string) (string, bool)

// LoadServer resolves the server configuration from lookup and args. args
// excludes the program name and accepts flags plus an optional positional
// port.
func LoadServer(args []string, lookup LookupFunc) (Server, error) {
	cfg := DefaultServer()
	if lookup == nil {
		lookup = os.LookupEnv
	}
	env := envReader{lookup: lookup}
	env.setString("LISTEN_HOST", &cfg.ListenHost)
	env.setInt("PORT", &cfg.Port)
	env.setString("DIAGNOSTICS_ADDR", &cfg.DiagnosticsAddr)
	env.setDuration("LATENCY", &cfg.Latency)
	env.setDuration("TICK_INTERVAL", &cfg.TickInterval)
	env.setDuration("BROADCAST_INTERVAL", &cfg.BroadcastInterval)
	env.setDuration("COIN_INTERVAL", &cfg.CoinInterval)
	env.setInt("START_THRESHOLD", &cfg.StartThreshold)
	env.setInt("MAX_PLAYERS", &cfg.MaxPlayers)
	env.setString("LOG_LEVEL", &cfg.LogLevel)
	env.setString("LOG_JSON", &cfg.LogJSONPath)
	if err := env.err(); err != nil {
		return Server{}, err
	}

	fsFlags := flag.NewFlagSet("server", flag.ContinueOnError)
	fsFlags.SetOutput(io.Discard)
	fsFlags.StringVar(&cfg.ListenHost, "listen", cfg.ListenHost, "interface to bind")
	fsFlags.IntVar(&cfg.Port, "port", cfg.Port, "game port")
	fsFlags.StringVar(&cfg.DiagnosticsAddr, "diagnostics", cfg.DiagnosticsAddr, "diagnostics HTTP address")
	fsFlags.DurationVar(&cfg.Latency, "latency", cfg.Latency, "artificial message delay")
	fsFlags.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "simulation tick interval")
	fsFlags.DurationVar(&cfg.BroadcastInterval, "broadcast", cfg.BroadcastInterval, "snapshot broadcast interval")
	fsFlags.DurationVar(&cfg.CoinInterval, "coin-interval", cfg.CoinInterval, "coin spawn interval")
	fsFlags.IntVar(&cfg.StartThreshold, "start-threshold", cfg.StartThreshold, "players needed to start")
	fsFlags.IntVar(&cfg.MaxPlayers, "max-players", cfg.MaxPlayers, "connection limit")
	fsFlags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "minimum event severity")
	fsFlags.StringVar(&cfg.LogJSONPath, "log-json", cfg.LogJSONPath, "JSON event log path")
	if err := fsFlags.Parse(args); err != nil {
		return Server{}, fmt.Errorf("parse flags: %w", err)
	}

	rest := fsFlags.Args()
	if len(rest) > 1 {
		return Server{}, fmt.Errorf("unexpected arguments: %s", strings.Join(rest[1:], " "))
	}
	if len(rest) == 1 {
		port, err := parsePort(rest[0])
		if err != nil {
			return Server{}, err
		}
		cfg.Port = port
	}
	return cfg, cfg.Validate()
}

// LoadClient resolves the client configuration. Positional arguments are
// [host] [port].
func LoadClient(args []string, lookup LookupFunc) (Client, error) {
	cfg := DefaultClient()
	if lookup == nil {
		lookup = os.LookupEnv
	}
	env := envReader{lookup: lookup}
	env.setString("HOST", &cfg.Host)
	env.setInt("PORT", &cfg.Port)
	env.setDuration("LATENCY", &cfg.Latency)
	env.setString("CLIENT_LOG", &cfg.LogPath)
	if err := env.err(); err != nil {
		return Client{}, err
	}

	fsFlags := flag.NewFlagSet("client", flag.ContinueOnError)
	fsFlags.SetOutput(io.Discard)
	fsFlags.DurationVar(&cfg.Latency, "latency", cfg.Latency, "artificial message delay")
	fsFlags.StringVar(&cfg.LogPath, "log", cfg.LogPath, "log file path")
	if err := fsFlags.Parse(args); err != nil {
		return Client{}, fmt.Errorf("parse flags: %w", err)
	}

	rest := fsFlags.Args()
	switch {
	case len(rest) > 2:
		return Client{}, fmt.Errorf("unexpected arguments: %s", strings.Join(rest[2:], " "))
	case len(rest) == 2:
		port, err := parsePort(rest[1])
		if err != nil {
			return Client{}, err
		}
		cfg.Port = port
		fallthrough
	case len(rest) == 1:
		cfg.Host = rest[0]
	}
	return cfg, cfg.Validate()
}

func (c Server) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Latency < 0 {
		errs = append(errs, fmt.Errorf("latency must not be negative"))
	}
	for name, d := range map[string]time.Duration{
		"tick interval":      c.TickInterval,
		"broadcast interval": c.BroadcastInterval,
		"coin interval":      c.CoinInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.StartThreshold < 1 {
		errs = append(errs, fmt.Errorf("start threshold must be at least 1"))
	}
	if c.MaxPlayers < 1 || c.MaxPlayers > 255 {
		errs = append(errs, fmt.Errorf("max players %d out of range", c.MaxPlayers))
	}
	if c.LogLevel != "" {
		switch strings.ToLower(c.LogLevel) {
		case "debug", "info", "warn", "warning", "error":
		default:
			errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
		}
	}
	return errors.Join(errs...)
}

func (c Client) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Host) == "" {
		errs = append(errs, errors.New("host must not be empty"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Latency < 0 {
		errs = append(errs, errors.New("latency must not be negative"))
	}
	return errors.Join(errs...)
}

func parsePort(raw string) (int, error) {
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", raw, err)
	}
	return port, nil
}

// envReader applies COINRUSH_* variables and collects parse errors.
type envReader struct {
	lookup LookupFunc
	errs   []error
}

func (r *envReader) raw(name string) (string, bool) {
	v, ok := r.lookup(envPrefix + name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (r *envReader) setString(name string, dst *string) {
	if v, ok := r.raw(name); ok {
		*dst = v
	}
}

func (r *envReader) setInt(name string, dst *int) {
	v, ok := r.raw(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s%s=%q: %w", envPrefix, name, v, err))
		return
	}
	*dst = n
}

func (r *envReader) setDuration(name string, dst *time.Duration) {
	v, ok := r.raw(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s%s=%q: %w", envPrefix, name, v, err))
		return
	}
	*dst = d
}

func (r *envReader) err() error {
	return errors.Join(r.errs...)
}
