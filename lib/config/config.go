package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fosdem/glscale/lib/format"
	"github.com/fosdem/glscale/lib/log"
	"github.com/fosdem/glscale/lib/utils"
	yaml "github.com/goccy/go-yaml"
)

type Config struct {
	Accelerator *AcceleratorCfg
	Allocator   *AllocatorCfg
	Profiles    map[string]*ProfileCfg
	FillColour  string `yaml:"fill_colour"`
	LogLevel    string `yaml:"log_level"`
	Api         *ApiCfg
	Watch       *WatchCfg
}

func Parse(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %s", filename, err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	absFilename, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("somehow, %s is malformed: %w", filename, err)
	}
	UnmarshalBase = filepath.Dir(absFilename)

	m := yaml.NewDecoder(f)
	cfg := &Config{}
	err = m.Decode(cfg)
	if err != nil {
		return nil, err
	}
	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return cfg, err
}

func (c *Config) Validate() error {
	var err error
	if c.Accelerator == nil {
		return fmt.Errorf("please configure an accelerator")
	}
	err = c.Accelerator.Validate()
	if err != nil {
		return fmt.Errorf("accelerator %s is invalid: %w", c.Accelerator.Type, err)
	}

	if c.Allocator == nil {
		c.Allocator = &AllocatorCfg{Type: "heap"}
	}
	err = c.Allocator.Validate()
	if err != nil {
		return fmt.Errorf("allocator is invalid: %w", err)
	}

	if len(c.Profiles) < 1 {
		return fmt.Errorf("at least one profile should be defined")
	}
	for k, v := range c.Profiles {
		if v == nil {
			return fmt.Errorf("profile %s is empty", k)
		}
		err = v.Validate()
		if err != nil {
			return fmt.Errorf("profile %s is invalid: %w", k, err)
		}
	}

	if c.FillColour == "" {
		return fmt.Errorf("please set fill_colour in the config")
	}
	if !utils.ColourValidate(c.FillColour) {
		return fmt.Errorf("%s is not a valid RGBA hex colour", c.FillColour)
	}

	if c.LogLevel != "" {
		if _, err := log.ParseLevel(c.LogLevel); err != nil {
			return err
		}
	}

	if c.Watch != nil {
		err = c.Watch.Validate()
		if err != nil {
			return fmt.Errorf("watch is invalid: %w", err)
		}
		if _, ok := c.Profiles[c.Watch.Profile]; !ok {
			return fmt.Errorf("watch refers to non-existant profile %s", c.Watch.Profile)
		}
	}
	return nil
}

func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for k := range c.Profiles {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

func (c *Config) String() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Accelerator: %s\n", c.Accelerator.Type))
	b.WriteString(fmt.Sprintf("Allocator: %s\n", c.Allocator.Type))

	b.WriteString("\nProfiles:\n")
	for _, k := range c.ProfileNames() {
		v := c.Profiles[k]
		b.WriteString(fmt.Sprintf("  %s (%dx%d %s)\n", k, v.Width, v.Height, v.orientation))
	}

	if c.Watch != nil {
		b.WriteString(fmt.Sprintf("\nWatching %s -> %s (%s)\n", c.Watch.Input, c.Watch.Output, c.Watch.Profile))
	}
	return b.String()
}

type Valid interface {
	Validate() error
}

type AcceleratorCfgStub struct {
	Type string
}

type AcceleratorCfg struct {
	AcceleratorCfgStub
	Cfg Valid
}

type GLAccelCfg struct {
	// Debug requests a debug context and logs its limits
	Debug bool
}

type MemAccelCfg struct {
	PitchAlign   int    `yaml:"pitch_align"`
	MaxResources int    `yaml:"max_resources"`
	Interpolator string `yaml:"interpolator"`
}

var Interpolators = []string{"nearest", "approx_bilinear", "bilinear", "catmull_rom"}

func (a *AcceleratorCfg) UnmarshalYAML(b []byte) error {
	// accelerator: gl
	var raw any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return err
	}
	short, isShort := raw.(string)
	if isShort {
		a.Type = short
	} else if err := yaml.Unmarshal(b, &a.AcceleratorCfgStub); err != nil {
		return err
	}

	switch a.Type {
	case "gl":
		cfg := GLAccelCfg{}
		a.Cfg = &cfg
		if isShort {
			return nil
		}
		return yaml.Unmarshal(b, &cfg)
	case "mem":
		cfg := MemAccelCfg{}
		a.Cfg = &cfg
		if isShort {
			return nil
		}
		return yaml.Unmarshal(b, &cfg)
	default:
		return fmt.Errorf("unknown accelerator type: %s", a.Type)
	}
}

func (a *AcceleratorCfg) Validate() error {
	if a.Cfg == nil {
		return fmt.Errorf("accelerator type must be specified")
	}
	return a.Cfg.Validate()
}

func (g *GLAccelCfg) Validate() error {
	return nil
}

func (m *MemAccelCfg) Validate() error {
	if m.PitchAlign < 0 || m.PitchAlign&(m.PitchAlign-1) != 0 {
		return fmt.Errorf("pitch_align must be a power of two, not %d", m.PitchAlign)
	}
	if m.MaxResources < 0 {
		return fmt.Errorf("max_resources must be nonnegative")
	}
	if m.Interpolator != "" && !slices.Contains(Interpolators, m.Interpolator) {
		return fmt.Errorf("interpolator must be one of %s", strings.Join(Interpolators, ", "))
	}
	return nil
}

type AllocatorCfg struct {
	Type  string
	Align int
}

func (a *AllocatorCfg) Validate() error {
	switch a.Type {
	case "", "heap", "mmap":
	default:
		return fmt.Errorf("unknown allocator type: %s", a.Type)
	}
	if a.Align < 0 || a.Align&(a.Align-1) != 0 {
		return fmt.Errorf("align must be a power of two, not %d", a.Align)
	}
	return nil
}

type ProfileCfg struct {
	Width       int
	Height      int
	Orientation string

	orientation format.Orientation
}

func (p *ProfileCfg) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("width and height must be positive, not %dx%d", p.Width, p.Height)
	}
	o, err := format.ParseOrientation(p.Orientation)
	if err != nil {
		return err
	}
	p.orientation = o
	return nil
}

// Video is the output format of the profile
func (p *ProfileCfg) Video() format.Video {
	return format.Video{
		Chroma:      format.PackedRGBA32,
		Width:       p.Width,
		Height:      p.Height,
		Orientation: p.orientation,
	}
}

type ApiCfg struct {
	Bind           string
	EnableProfiler bool `yaml:"enable_profiler"`
}

type WatchCfg struct {
	Input   CfgPath
	Output  CfgPath
	Profile string
}

func (w *WatchCfg) Validate() error {
	if w.Input == "" || w.Output == "" {
		return fmt.Errorf("input and output must be specified")
	}
	if w.Input == w.Output {
		return fmt.Errorf("input and output can't be the same file")
	}
	if w.Profile == "" {
		return fmt.Errorf("profile must be specified")
	}
	if err := w.Output.CheckDir(); err != nil {
		return fmt.Errorf("output can't be written: %w", err)
	}
	return nil
}
