package host

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

const sampleWorld = `
variable "base_ms" {
  default = 4000
}

player {
  level   = 50
  openers = ["BruteSSH.exe"]
}

server "home" {
  ram    = 64
  access = true
  links  = ["n00dles", "foodnstuff"]
}

server "n00dles" {
  ram            = 4
  max_money      = 1750000
  money          = 70000
  min_security   = 1
  security       = 2.5
  required_level = 1
  hack_time_ms   = var.base_ms
}

server "foodnstuff" {
  ram            = 16
  max_money      = 50000000
  min_security   = 3
  required_level = 1
  ports          = 1
  hack_time_ms   = var.base_ms * 2
}
`

func TestParseWorld(t *testing.T) {
	w, err := ParseWorld([]byte(sampleWorld), "world.hcl", nil)
	require.NoError(t, err)

	assert.Equal(t, 50, w.Level)
	assert.Equal(t, []string{"BruteSSH.exe"}, w.Openers)
	require.Len(t, w.Servers, 3)

	home := w.Servers[0]
	assert.Equal(t, "home", home.ID)
	assert.True(t, home.Access)
	assert.Equal(t, 64.0, home.RAM)

	noodles := w.Servers[1]
	assert.Equal(t, 70000.0, noodles.Money)
	assert.Equal(t, 2.5, noodles.Security)
	assert.Equal(t, 4*time.Second, noodles.HackTime)

	food := w.Servers[2]
	assert.Equal(t, food.MaxMoney, food.Money, "money defaults to max")
	assert.Equal(t, food.MinSecurity, food.Security, "security defaults to min")
	assert.Equal(t, 8*time.Second, food.HackTime)
	assert.Equal(t, 1, food.Ports)
}

func TestParseWorld_VariableOverride(t *testing.T) {
	w, err := ParseWorld([]byte(sampleWorld), "world.hcl", map[string]cty.Value{
		"base_ms": cty.NumberIntVal(1000),
	})
	require.NoError(t, err)
	assert.Equal(t, time.Second, w.Servers[1].HackTime)
	assert.Equal(t, 2*time.Second, w.Servers[2].HackTime)
}

func TestParseWorld_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `server "home" {`},
		{"missing player", `server "home" { ram = 8 }`},
		{"duplicate server", `
player { level = 1 }
server "a" { ram = 1 }
server "a" { ram = 2 }`},
		{"unknown link", `
player { level = 1 }
server "a" { links = ["b"] }`},
		{"undefined variable", `
player { level = var.missing }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWorld([]byte(tt.src), "bad.hcl", nil)
			assert.Error(t, err)
		})
	}
}

func TestLoadWorld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.hcl")
	require.NoError(t, os.WriteFile(path, []byte(sampleWorld), 0644))

	w, err := LoadWorld(path, nil)
	require.NoError(t, err)
	assert.Len(t, w.Servers, 3)

	_, err = LoadWorld(filepath.Join(t.TempDir(), "missing.hcl"), nil)
	assert.Error(t, err)
}
