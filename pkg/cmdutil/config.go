package cmdutil

import (
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/alecthomas/kong"
)

// TOML is a kong.ConfigurationLoader reading flag defaults from a TOML
// document. Top-level keys apply to any command; a table named after a
// command applies to that command's flags only and takes precedence.
//
//	debug = true
//
//	[detect]
//	root = "/sys/firmware/qemu_fw_cfg"
//	output = "json"
func TOML(r io.Reader) (kong.Resolver, error) {
	values := map[string]interface{}{}
	if _, err := toml.NewDecoder(r).Decode(&values); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %v", err)
	}
	return kong.ResolverFunc(func(ctx *kong.Context, parent *kong.Path, flag *kong.Flag) (interface{}, error) {
		if parent != nil {
			if n := parent.Node(); n != nil && n.Type == kong.CommandNode {
				if tbl, ok := values[n.Name].(map[string]interface{}); ok {
					if v, ok := lookup(tbl, flag.Name); ok {
						return v, nil
					}
				}
			}
		}
		if v, ok := lookup(values, flag.Name); ok {
			return v, nil
		}
		return nil, nil
	}), nil
}

func lookup(values map[string]interface{}, name string) (interface{}, bool) {
	for _, k := range []string{name, strings.ReplaceAll(name, "-", "_")} {
		v, ok := values[k]
		if !ok {
			continue
		}
		switch v.(type) {
		case map[string]interface{}, []map[string]interface{}:
			// A command table, not a flag value.
			return nil, false
		case []interface{}:
			return v, true
		}
		return fmt.Sprint(v), true
	}
	return nil, false
}
