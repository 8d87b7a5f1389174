package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"

	"github.com/simonsavoca/bitburner/internal/daemon"
	"github.com/simonsavoca/bitburner/internal/host"
	"github.com/simonsavoca/bitburner/internal/model"
	"github.com/simonsavoca/bitburner/internal/setup"
	"github.com/simonsavoca/bitburner/internal/status"
	"github.com/simonsavoca/bitburner/internal/tui"
)

const version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "daemon":
		runDaemon(os.Args[2:])
	case "setup":
		runSetup(os.Args[2:])
	case "shutdown":
		runShutdown(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "top":
		runTop(os.Args[2:])
	case "world":
		runWorld(os.Args[2:])
	case "version":
		fmt.Printf("hwgw %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runDaemon(_ []string) {
	stateDir := requireStateDir()

	cfg, err := loadConfig(stateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	d, err := daemon.New(stateDir, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create daemon: %v\n", err)
		os.Exit(1)
	}
	if err := d.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "daemon: %v\n", err)
		os.Exit(1)
	}
}

func runSetup(args []string) {
	const usage = "usage: hwgw setup [--mode batch|simple] [--time-scale n] <project_dir>"
	var opts setup.Options
	var dir string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--mode":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, usage)
				os.Exit(1)
			}
			opts.Mode = args[i]
		case "--time-scale":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, usage)
				os.Exit(1)
			}
			scale, err := strconv.ParseFloat(args[i], 64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid --time-scale %q: %v\n", args[i], err)
				os.Exit(1)
			}
			opts.TimeScale = scale
		default:
			if strings.HasPrefix(args[i], "--") || dir != "" {
				fmt.Fprintf(os.Stderr, "unexpected argument: %s\n%s\n", args[i], usage)
				os.Exit(1)
			}
			dir = args[i]
		}
	}
	if dir == "" {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	if err := setup.Run(dir, opts); err != nil {
		fmt.Fprintf(os.Stderr, "setup: %v\n", err)
		os.Exit(1)
	}
	absDir, _ := filepath.Abs(dir)
	fmt.Printf("Initialized %s/ in %s\n", setup.StateDirName, absDir)
}

func runShutdown(args []string) {
	timeout := 30 * time.Second
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--timeout":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "usage: hwgw shutdown [--timeout 30s]")
				os.Exit(1)
			}
			d, err := time.ParseDuration(args[i])
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid --timeout %q: %v\n", args[i], err)
				os.Exit(1)
			}
			timeout = d
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: hwgw shutdown [--timeout 30s]\n", args[i])
			os.Exit(1)
		}
	}

	if err := status.Down(requireStateDir(), timeout, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
		os.Exit(1)
	}
}

func runStatus(args []string) {
	jsonOutput := false
	for _, a := range args {
		switch a {
		case "--json":
			jsonOutput = true
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: hwgw status [--json]\n", a)
			os.Exit(1)
		}
	}

	if err := status.Run(requireStateDir(), jsonOutput); err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		os.Exit(1)
	}
}

func runTop(args []string) {
	interval := time.Second
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--interval":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "usage: hwgw top [--interval 1s]")
				os.Exit(1)
			}
			d, err := time.ParseDuration(args[i])
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid --interval %q: %v\n", args[i], err)
				os.Exit(1)
			}
			interval = d
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: hwgw top [--interval 1s]\n", args[i])
			os.Exit(1)
		}
	}

	stateDir := requireStateDir()
	cfg, err := loadConfig(stateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	unitCost := model.NewOpTable(cfg.Operations.RAMCost).MaxUnitCost()
	if err := tui.Run(stateDir, unitCost, interval); err != nil {
		fmt.Fprintf(os.Stderr, "top: %v\n", err)
		os.Exit(1)
	}
}

// runWorld prints the servers of the configured world, after variable overrides.
func runWorld(args []string) {
	overrides := map[string]cty.Value{}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--var":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "usage: hwgw world [--var name=value]...")
				os.Exit(1)
			}
			name, val, ok := strings.Cut(args[i], "=")
			if !ok || name == "" {
				fmt.Fprintf(os.Stderr, "invalid --var %q: want name=value\n", args[i])
				os.Exit(1)
			}
			overrides[name] = varValue(val)
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: hwgw world [--var name=value]...\n", args[i])
			os.Exit(1)
		}
	}

	stateDir := requireStateDir()
	cfg, err := loadConfig(stateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	worldPath := cfg.Host.World
	if !filepath.IsAbs(worldPath) {
		worldPath = filepath.Join(stateDir, worldPath)
	}
	w, err := host.LoadWorld(worldPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "world: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("level %d, openers %s\n\n", w.Level, strings.Join(w.Openers, ","))
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVER\tRAM\tACCESS\tLEVEL\tPORTS\tMAX MONEY\tMIN SEC\tHACK TIME")
	for _, s := range w.Servers {
		fmt.Fprintf(tw, "%s\t%.0f\t%t\t%d\t%d\t%.0f\t%.1f\t%s\n",
			s.ID, s.RAM, s.Access, s.RequiredLevel, s.Ports, s.MaxMoney, s.MinSecurity, s.HackTime)
	}
	tw.Flush()
}

func varValue(s string) cty.Value {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return cty.NumberFloatVal(f)
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return cty.BoolVal(b)
	}
	return cty.StringVal(s)
}

func requireStateDir() string {
	stateDir := findStateDir()
	if stateDir == "" {
		fmt.Fprintf(os.Stderr, "error: %s/ directory not found. Run 'hwgw setup <dir>' first.\n", setup.StateDirName)
		os.Exit(1)
	}
	return stateDir
}

func findStateDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, setup.StateDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func loadConfig(stateDir string) (model.Config, error) {
	data, err := os.ReadFile(filepath.Join(stateDir, "config.yaml"))
	if err != nil {
		return model.Config{}, fmt.Errorf("read config.yaml: %w", err)
	}
	var cfg model.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.Config{}, fmt.Errorf("parse config.yaml: %w", err)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return model.Config{}, fmt.Errorf("config.yaml: %w", err)
	}
	return cfg, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `hwgw %s - fleet thread allocator and HWGW batch orchestrator

Usage: hwgw <command> [options]

Lifecycle:
  setup [--mode m] [--time-scale n] <dir>   Initialize %s/ directory
  daemon                                    Run the orchestrator in the foreground
  shutdown [--timeout 30s]                  Graceful shutdown
  status [--json]                           Show orchestrator status

Utilities:
  top [--interval 1s]          Live fleet view
  world [--var name=value]     List servers of the configured world
  version                      Show version
  help                         Show this help

`, version, setup.StateDirName)
}
