package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fosdem/glscale/lib/format"
	yaml "github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cfg, err := Parse("testdata/glscale.yaml")
	require.NoError(t, err)

	require.Equal(t, "mem", cfg.Accelerator.Type)
	mem, ok := cfg.Accelerator.Cfg.(*MemAccelCfg)
	require.True(t, ok)
	assert.Equal(t, 64, mem.PitchAlign)
	assert.Equal(t, "bilinear", mem.Interpolator)

	assert.Equal(t, "mmap", cfg.Allocator.Type)
	assert.Equal(t, []string{"hd", "thumb"}, cfg.ProfileNames())
	assert.Equal(t, format.Video{Chroma: format.PackedRGBA32, Width: 1280, Height: 720}, cfg.Profiles["hd"].Video())

	abs, err := filepath.Abs("testdata/in/slide.png")
	require.NoError(t, err)
	assert.Equal(t, CfgPath(abs), cfg.Watch.Input)
	assert.Equal(t, CfgPath("/tmp/slide-hd.png"), cfg.Watch.Output)

	assert.True(t, cfg.Api.EnableProfiler)
	assert.Contains(t, cfg.String(), "hd (1280x720 top_left)")
}

func decode(t *testing.T, doc string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(doc), cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

const minimal = `
accelerator: gl
fill_colour: "#00000000"
profiles:
  sd: {width: 640, height: 480}
`

func TestShortAccelerator(t *testing.T) {
	cfg, err := decode(t, minimal)
	require.NoError(t, err)
	assert.IsType(t, &GLAccelCfg{}, cfg.Accelerator.Cfg)
	assert.Equal(t, "heap", cfg.Allocator.Type)
}

func TestInvalid(t *testing.T) {
	for _, tc := range []struct {
		name string
		doc  string
		msg  string
	}{
		{"no accelerator", "fill_colour: \"#00000000\"\nprofiles: {a: {width: 1, height: 1}}", "configure an accelerator"},
		{"no profiles", "accelerator: mem\nfill_colour: \"#00000000\"", "at least one profile"},
		{"empty profile", "accelerator: mem\nfill_colour: \"#00000000\"\nprofiles:\n  hd:\n", "profile hd is empty"},
		{"zero profile", "accelerator: mem\nfill_colour: \"#00000000\"\nprofiles: {a: {width: 0, height: 1}}", "profile a is invalid"},
		{"bad orientation", "accelerator: mem\nfill_colour: \"#00000000\"\nprofiles: {a: {width: 1, height: 1, orientation: sideways}}", "unknown orientation"},
		{"bad colour", "accelerator: mem\nfill_colour: red\nprofiles: {a: {width: 1, height: 1}}", "not a valid RGBA"},
		{"no colour", "accelerator: mem\nprofiles: {a: {width: 1, height: 1}}", "fill_colour"},
		{"bad level", minimal + "log_level: loud\n", "unknown log level"},
		{"bad allocator", minimal + "allocator: {type: gpu}\n", "unknown allocator"},
		{"bad align", minimal + "allocator: {type: heap, align: 3}\n", "power of two"},
		{"watch profile", minimal + "watch: {input: /a.png, output: /b.png, profile: hd}\n", "non-existant profile"},
		{"watch output dir", minimal + "watch: {input: /a.png, output: /nonexistent-dir/b.png, profile: sd}\n", "output can't be written"},
		{"watch same file", minimal + "watch: {input: /a.png, output: /a.png, profile: sd}\n", "can't be the same"},
		{"bad interpolator", "accelerator: {type: mem, interpolator: sinc}\nfill_colour: \"#00000000\"\nprofiles: {a: {width: 1, height: 1}}", "interpolator must be"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decode(t, tc.doc)
			require.ErrorContains(t, err, tc.msg)
		})
	}
}

func TestUnknownAccelerator(t *testing.T) {
	_, err := decode(t, "accelerator: dispmanx\n")
	require.ErrorContains(t, err, "unknown accelerator type")
}

func TestParseMissingFile(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestParseTempFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(p, []byte(minimal), 0o644))
	cfg, err := Parse(p)
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Profiles["sd"].Width)
}
