package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

var rootSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "daemon"},
		{Type: "defaults"},
		{Type: "network", LabelNames: []string{"name"}},
		{Type: "zone", LabelNames: []string{"name"}},
		{Type: "forwarding"},
		{Type: "redirect"},
		{Type: "rule"},
		{Type: "include", LabelNames: []string{"path"}},
	},
}

// LoadFile loads a config file. Files ending in .json are parsed as
// JSON-syntax HCL.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return LoadJSON(data, path)
	}
	return LoadHCL(data, path)
}

// LoadHCL loads config from native HCL bytes.
func LoadHCL(data []byte, filename string) (*Config, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("HCL parse error: %s", diags.Error())
	}
	return load(file.Body)
}

// LoadJSON loads config from JSON-syntax HCL bytes.
func LoadJSON(data []byte, filename string) (*Config, error) {
	file, diags := hclparse.NewParser().ParseJSON(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("JSON parse error: %s", diags.Error())
	}
	return load(file.Body)
}

// Format returns data in canonical HCL layout.
func Format(data []byte) []byte {
	return hclwrite.Format(data)
}

// evalContext exposes the process environment as env.NAME.
func evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		vars[k] = cty.StringVal(v)
	}
	env := cty.EmptyObjectVal
	if len(vars) > 0 {
		env = cty.ObjectVal(vars)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": env},
	}
}

// item is one decoded block, kept in declaration order.
type item struct {
	kind  string
	index int
	value any
}

func load(body hcl.Body) (*Config, error) {
	content, diags := body.Content(rootSchema)
	if diags.HasErrors() {
		return nil, fmt.Errorf("HCL decode error: %s", diags.Error())
	}

	ctx := evalContext()
	counts := make(map[string]int)
	var items []item
	for _, blk := range content.Blocks {
		var v any
		switch blk.Type {
		case "daemon":
			v = &daemonBlock{}
		case "defaults":
			v = &defaultsBlock{}
		case "network":
			v = &networkBlock{Name: blk.Labels[0]}
		case "zone":
			v = &zoneBlock{Name: blk.Labels[0]}
		case "forwarding":
			v = &forwardingBlock{}
		case "redirect":
			v = &redirectBlock{}
		case "rule":
			v = &ruleBlock{}
		case "include":
			v = &includeBlock{Path: blk.Labels[0]}
		}
		if d := gohcl.DecodeBody(blk.Body, ctx, v); d.HasErrors() {
			return nil, fmt.Errorf("HCL decode error: %s", d.Error())
		}
		items = append(items, item{kind: blk.Type, index: counts[blk.Type], value: v})
		counts[blk.Type]++
	}

	cfg, errs := build(items)
	if errs.HasErrors() {
		return nil, errs
	}
	return cfg, nil
}
