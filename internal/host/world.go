package host

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// worldHeader is the first decoding pass: variable declarations only.
type worldHeader struct {
	Variables []variableBlock `hcl:"variable,block"`
	Remain    hcl.Body        `hcl:",remain"`
}

type variableBlock struct {
	Name    string         `hcl:"name,label"`
	Default hcl.Expression `hcl:"default,optional"`
}

type worldBody struct {
	Player  *playerBlock  `hcl:"player,block"`
	Servers []serverBlock `hcl:"server,block"`
}

type playerBlock struct {
	Level   int      `hcl:"level"`
	Openers []string `hcl:"openers,optional"`
}

type serverBlock struct {
	ID            string   `hcl:"id,label"`
	RAM           float64  `hcl:"ram,optional"`
	Reserved      float64  `hcl:"reserved,optional"`
	Access        bool     `hcl:"access,optional"`
	Links         []string `hcl:"links,optional"`
	MaxMoney      float64  `hcl:"max_money,optional"`
	Money         *float64 `hcl:"money,optional"`
	MinSecurity   float64  `hcl:"min_security,optional"`
	Security      *float64 `hcl:"security,optional"`
	RequiredLevel int      `hcl:"required_level,optional"`
	Ports         int      `hcl:"ports,optional"`
	Growth        float64  `hcl:"growth,optional"`
	HackTimeMs    int      `hcl:"hack_time_ms,optional"`
	HackFraction  float64  `hcl:"hack_fraction,optional"`
}

// LoadWorld reads an HCL world file. overrides replace variable defaults by name.
func LoadWorld(path string, overrides map[string]cty.Value) (World, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return World{}, fmt.Errorf("read world: %w", err)
	}
	return ParseWorld(src, path, overrides)
}

// ParseWorld decodes HCL world source. Attributes may reference var.<name>.
func ParseWorld(src []byte, filename string, overrides map[string]cty.Value) (World, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return World{}, fmt.Errorf("parse world: %s", diags.Error())
	}

	var header worldHeader
	if diags := gohcl.DecodeBody(file.Body, nil, &header); diags.HasErrors() {
		return World{}, fmt.Errorf("decode variables: %s", diags.Error())
	}

	vars := make(map[string]cty.Value, len(header.Variables))
	for _, v := range header.Variables {
		if _, dup := vars[v.Name]; dup {
			return World{}, fmt.Errorf("variable %q declared twice", v.Name)
		}
		val := cty.NullVal(cty.DynamicPseudoType)
		if v.Default != nil {
			var vdiags hcl.Diagnostics
			val, vdiags = v.Default.Value(nil)
			if vdiags.HasErrors() {
				return World{}, fmt.Errorf("variable %q default: %s", v.Name, vdiags.Error())
			}
		}
		vars[v.Name] = val
	}
	for name, val := range overrides {
		vars[name] = val
	}

	varObj := cty.EmptyObjectVal
	if len(vars) > 0 {
		varObj = cty.ObjectVal(vars)
	}
	ctx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"var": varObj},
	}

	var body worldBody
	if diags := gohcl.DecodeBody(header.Remain, ctx, &body); diags.HasErrors() {
		return World{}, fmt.Errorf("decode world: %s", diags.Error())
	}
	return body.toWorld()
}

func (b worldBody) toWorld() (World, error) {
	if b.Player == nil {
		return World{}, fmt.Errorf("world: missing player block")
	}
	w := World{Level: b.Player.Level, Openers: b.Player.Openers}
	seen := make(map[string]bool, len(b.Servers))
	for _, s := range b.Servers {
		if seen[s.ID] {
			return World{}, fmt.Errorf("world: server %q declared twice", s.ID)
		}
		seen[s.ID] = true
		if s.RAM < 0 || s.Reserved < 0 {
			return World{}, fmt.Errorf("world: server %q has negative RAM", s.ID)
		}
		spec := ServerSpec{
			ID:            s.ID,
			RAM:           s.RAM,
			Reserved:      s.Reserved,
			Access:        s.Access,
			Links:         s.Links,
			MaxMoney:      s.MaxMoney,
			Money:         s.MaxMoney,
			MinSecurity:   s.MinSecurity,
			Security:      s.MinSecurity,
			RequiredLevel: s.RequiredLevel,
			Ports:         s.Ports,
			Growth:        s.Growth,
			HackTime:      time.Duration(s.HackTimeMs) * time.Millisecond,
			HackFraction:  s.HackFraction,
		}
		if s.Money != nil {
			spec.Money = *s.Money
		}
		if s.Security != nil {
			spec.Security = *s.Security
		}
		w.Servers = append(w.Servers, spec)
	}
	for _, s := range w.Servers {
		for _, l := range s.Links {
			if !seen[l] {
				return World{}, fmt.Errorf("world: server %q links to unknown server %q", s.ID, l)
			}
		}
	}
	return w, nil
}
