// Package setup handles hwgw state directory initialization.
package setup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/simonsavoca/bitburner/internal/host"
	"github.com/simonsavoca/bitburner/internal/model"
	yamlutil "github.com/simonsavoca/bitburner/internal/yaml"
	"github.com/simonsavoca/bitburner/templates"
)

// StateDirName is the directory setup creates inside the project directory.
const StateDirName = ".hwgw"

// Options override template values in the generated config.yaml.
type Options struct {
	Mode      string
	TimeScale float64
}

// Run initializes the .hwgw/ directory structure in projectDir.
func Run(projectDir string, opts Options) error {
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return fmt.Errorf("resolve project dir: %w", err)
	}

	base := filepath.Join(absDir, StateDirName)

	if _, err := os.Stat(base); err == nil {
		return fmt.Errorf("%s already exists", base)
	}

	cfg, err := generateConfig(opts)
	if err != nil {
		return fmt.Errorf("generate config: %w", err)
	}

	for _, d := range []string{"state", "locks", "logs"} {
		if err := os.MkdirAll(filepath.Join(base, d), 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	if err := copyTemplateFile("dashboard.md", filepath.Join(base, "dashboard.md")); err != nil {
		return err
	}
	worldPath := filepath.Join(base, cfg.Host.World)
	if err := copyTemplateFile("world.hcl", worldPath); err != nil {
		return err
	}
	if _, err := host.LoadWorld(worldPath, nil); err != nil {
		return fmt.Errorf("validate world template: %w", err)
	}

	if err := yamlutil.AtomicWrite(filepath.Join(base, "config.yaml"), cfg); err != nil {
		return fmt.Errorf("write config.yaml: %w", err)
	}
	if err := writeMetrics(filepath.Join(base, "state", "metrics.yaml")); err != nil {
		return fmt.Errorf("write metrics.yaml: %w", err)
	}
	return nil
}

func copyTemplateFile(name, dst string) error {
	data, err := fs.ReadFile(templates.FS, name)
	if err != nil {
		return fmt.Errorf("read template %s: %w", name, err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}

func generateConfig(opts Options) (*model.Config, error) {
	data, err := fs.ReadFile(templates.FS, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("read config template: %w", err)
	}

	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config template: %w", err)
	}

	if opts.Mode != "" {
		cfg.Orchestrator.Mode = opts.Mode
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.TimeScale < 0 {
		return nil, fmt.Errorf("time scale must be positive, got %g", opts.TimeScale)
	}
	if opts.TimeScale > 0 {
		cfg.Host.TimeScale = opts.TimeScale
	}
	return &cfg, nil
}

func writeMetrics(path string) error {
	m := model.Metrics{
		SchemaVersion: 1,
		FileType:      "state_metrics",
		Phase:         model.PhaseDiscovering,
	}
	return yamlutil.AtomicWrite(path, m)
}
