// METF: Person Token ledger tool
//
// metf runs the Person Token program on a local ledger. It creates keypairs,
// funds wallets, issues person tokens, inspects accounts and moves the
// ledger in and out of snapshots.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fortiblox/metf/pkg/accounts"
	"github.com/fortiblox/metf/pkg/metrics"
	"github.com/fortiblox/metf/pkg/runtime"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

// Configuration flags
var (
	configFile      = flag.String("config", defaultConfigPath(), "Path to JSON configuration file")
	dataDir         = flag.String("data-dir", "", "Ledger directory (empty = in-memory)")
	logLevel        = flag.String("log-level", "", "Log level: debug, info, error")
	airdropLamports = flag.Uint64("airdrop-lamports", 0, "Default airdrop amount in lamports")
	computeUnits    = flag.Uint("compute-unit-limit", 0, "Default transaction compute unit limit")
	metricsAddr     = flag.String("metrics-addr", "", "Metrics server listen address")
	showVersion     = flag.Bool("version", false, "Print version and exit")
)

// Config represents the JSON configuration file structure.
type Config struct {
	General GeneralConfig `json:"general"`
	Ledger  LedgerConfig  `json:"ledger"`
	Metrics MetricsConfig `json:"metrics"`
}

// GeneralConfig holds general application settings.
type GeneralConfig struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
}

// LedgerConfig holds transaction defaults.
type LedgerConfig struct {
	AirdropLamports  uint64 `json:"airdrop_lamports"`
	ComputeUnitLimit uint32 `json:"compute_unit_limit"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Addr string `json:"addr"`
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "metf.json"
	}
	return filepath.Join(home, ".config", "metf", "config.json")
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		General: GeneralConfig{
			DataDir:  "",
			LogLevel: "info",
		},
		Ledger: LedgerConfig{
			AirdropLamports:  10_000_000_000,
			ComputeUnitLimit: 400_000,
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9090",
		},
	}
}

// loadConfig loads configuration from the specified JSON file.
// If the file doesn't exist, it returns the default configuration.
func loadConfig(configPath string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			debugf("Config file not found at %s, using defaults", configPath)
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	debugf("Loaded configuration from %s", configPath)
	return cfg, nil
}

// applyConfigWithCLIOverrides applies config values unless the matching
// flag was set on the command line.
func applyConfigWithCLIOverrides(cfg Config) {
	flagSet := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		flagSet[f.Name] = true
	})

	if !flagSet["data-dir"] {
		*dataDir = cfg.General.DataDir
	}
	if !flagSet["log-level"] {
		*logLevel = cfg.General.LogLevel
	}
	if !flagSet["airdrop-lamports"] {
		*airdropLamports = cfg.Ledger.AirdropLamports
	}
	if !flagSet["compute-unit-limit"] {
		*computeUnits = uint(cfg.Ledger.ComputeUnitLimit)
	}
	if !flagSet["metrics-addr"] {
		*metricsAddr = cfg.Metrics.Addr
	}
}

// setupLogging applies the log level: debug shows program logs, error
// silences progress messages.
func setupLogging(level string) {
	log.SetFlags(log.Ldate | log.Ltime)
	switch strings.ToLower(level) {
	case "error":
		log.SetOutput(io.Discard)
	default:
		log.SetOutput(os.Stderr)
	}
}

func debugf(format string, args ...interface{}) {
	if strings.EqualFold(*logLevel, "debug") {
		log.Printf(format, args...)
	}
}

// ledger is an open account store and the bank over it.
type ledger struct {
	db      accounts.AccountsDB
	bank    *runtime.Bank
	metrics *metrics.Metrics
}

func openDB() (accounts.AccountsDB, error) {
	if *dataDir == "" {
		debugf("Using in-memory ledger")
		return accounts.NewMemoryDB(), nil
	}
	dbPath := filepath.Join(*dataDir, "accounts")
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := accounts.NewBadgerDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open accounts database: %w", err)
	}
	debugf("Opened BadgerDB at %s", dbPath)
	return db, nil
}

func openLedger() (*ledger, error) {
	db, err := openDB()
	if err != nil {
		return nil, err
	}
	m := metrics.NewMetrics()
	cfg := runtime.DefaultConfig()
	cfg.Metrics = m
	if *computeUnits > 0 {
		cfg.ComputeUnitLimit = uint32(*computeUnits)
	}
	bank, err := runtime.NewBank(db, cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open bank: %w", err)
	}
	debugf("Registered %d native programs", bank.Registry().Count())
	return &ledger{db: db, bank: bank, metrics: m}, nil
}

func (l *ledger) Close() {
	if err := l.db.Close(); err != nil {
		log.Printf("Error closing accounts database: %v", err)
	}
}

type command struct {
	name  string
	usage string
	run   func(args []string) error
}

var commands = []command{
	{"keygen", "keygen -out <file>", runKeygen},
	{"airdrop", "airdrop -to <pubkey|keypair file> [-lamports n]", runAirdrop},
	{"init-person-token", "init-person-token -keypair <file> [-mint <file>] -name <s> -symbol <s> -uri <s>", runInitPersonToken},
	{"inspect", "inspect <pubkey>", runInspect},
	{"snapshot", "snapshot export|import <file>", runSnapshot},
	{"metrics", "metrics [-once]", runMetrics},
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: metf [flags] <command> [args]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %s\n", c.usage)
	}
	fmt.Fprintf(os.Stderr, "\nFlags:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("METF %s (%s)\n", Version, GitCommit)
		os.Exit(0)
	}

	setupLogging(*logLevel)
	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	applyConfigWithCLIOverrides(cfg)
	setupLogging(*logLevel)

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	name, args := flag.Arg(0), flag.Args()[1:]
	for _, c := range commands {
		if c.name == name {
			if err := c.run(args); err != nil {
				fmt.Fprintf(os.Stderr, "metf %s: %v\n", name, err)
				os.Exit(1)
			}
			return
		}
	}
	fmt.Fprintf(os.Stderr, "metf: unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}
