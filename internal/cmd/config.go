package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Alia5/btkvm/internal/configpaths"

	toml "github.com/pelletier/go-toml"
	yaml "gopkg.in/yaml.v3"
)

// ConfigCommand groups config-related subcommands.
type ConfigCommand struct {
	Init ConfigInit `cmd:"" help:"Generate a configuration template"`
}

// ConfigInit scaffolds a configuration file for the server command.
type ConfigInit struct {
	Command string `arg:"" name:"command" help:"Command to generate config for" enum:"server"`
	Format  string `help:"Output format" enum:"json,yaml,yml,toml" default:"yaml"`
	Output  string `help:"Destination file path (defaults to the user config dir)"`
	Force   bool   `help:"Overwrite if the file already exists"`
}

// Run writes a template holding every server flag at its default. YAML and
// TOML templates carry the flag help as comments.
func (c *ConfigInit) Run() error {
	format := normalizeFormat(c.Format)
	if format == "" {
		return fmt.Errorf("unsupported format: %s", c.Format)
	}
	if c.Command != "server" {
		return fmt.Errorf("unknown command %q; expected 'server'", c.Command)
	}
	entries := entriesOf(reflect.TypeOf(Server{}))

	dest := c.Output
	if dest == "" {
		var err error
		if dest, err = configpaths.DefaultNamedConfigPath(c.Command, format); err != nil {
			return err
		}
	}
	if _, err := os.Stat(dest); err == nil && !c.Force {
		return errors.New("destination exists; use --force to overwrite")
	}

	data, err := render(entries, format)
	if err != nil {
		return err
	}
	if err := configpaths.EnsureDir(dest); err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return err
	}
	fmt.Println(dest)
	return nil
}

func normalizeFormat(f string) string {
	switch strings.ToLower(f) {
	case "json":
		return "json"
	case "yaml", "yml":
		return "yaml"
	case "toml":
		return "toml"
	}
	return ""
}

// entry is one key of a config file: a flag default or a nested section.
type entry struct {
	key     string
	help    string
	value   any
	section []entry
}

// configKey is the key kong's config resolvers look up for a field's flag:
// the flag name with dashes as underscores.
func configKey(field string) string {
	var b strings.Builder
	prevUpper := true
	for _, r := range field {
		upper := unicode.IsUpper(r)
		if upper && !prevUpper {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
		prevUpper = upper
	}
	return b.String()
}

// entriesOf lists t's flags in declaration order. Embedded structs with a
// prefix become sections; without one their flags are inlined.
func entriesOf(t reflect.Type) []entry {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	var out []entry
	for f := range fields(t) {
		if _, embedded := f.Tag.Lookup("embed"); embedded {
			sub := entriesOf(f.Type)
			if name := strings.TrimSuffix(f.Tag.Get("prefix"), "."); name != "" {
				out = append(out, entry{key: name, section: sub})
			} else {
				out = append(out, sub...)
			}
			continue
		}
		if v, ok := defaultOf(f.Type, f.Tag.Get("default")); ok {
			out = append(out, entry{key: configKey(f.Name), help: f.Tag.Get("help"), value: v})
		}
	}
	return out
}

func fields(t reflect.Type) func(yield func(reflect.StructField) bool) {
	return func(yield func(reflect.StructField) bool) {
		for i := range t.NumField() {
			f := t.Field(i)
			if !f.IsExported() || f.Tag.Get("kong") == "-" {
				continue
			}
			if !yield(f) {
				return
			}
		}
	}
}

var durationType = reflect.TypeOf(time.Duration(0))

// defaultOf parses a default tag into the value written to the template.
// Durations stay strings so they read like the flag.
func defaultOf(t reflect.Type, def string) (any, bool) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == durationType {
		if def == "" {
			def = "0s"
		}
		return def, true
	}
	switch t.Kind() {
	case reflect.String:
		return def, true
	case reflect.Bool:
		b, _ := strconv.ParseBool(def)
		return b, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, _ := strconv.ParseInt(def, 10, 64)
		return n, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, _ := strconv.ParseUint(def, 10, 64)
		return n, true
	case reflect.Float32, reflect.Float64:
		f, _ := strconv.ParseFloat(def, 64)
		return f, true
	}
	return nil, false
}

func render(entries []entry, format string) ([]byte, error) {
	switch format {
	case "json":
		return json.MarshalIndent(asMap(entries), "", "  ")
	case "yaml":
		node, err := yamlMapping(entries)
		if err != nil {
			return nil, err
		}
		return yaml.Marshal(node)
	case "toml":
		tree, err := toml.TreeFromMap(map[string]any{})
		if err != nil {
			return nil, err
		}
		setTOML(tree, "", entries)
		return tree.Marshal()
	}
	return nil, fmt.Errorf("unsupported format: %s", format)
}

func asMap(entries []entry) map[string]any {
	m := make(map[string]any, len(entries))
	for _, e := range entries {
		if e.section != nil {
			m[e.key] = asMap(e.section)
		} else {
			m[e.key] = e.value
		}
	}
	return m
}

func yamlMapping(entries []entry) (*yaml.Node, error) {
	m := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range entries {
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: e.key, HeadComment: e.help}
		var val *yaml.Node
		if e.section != nil {
			var err error
			if val, err = yamlMapping(e.section); err != nil {
				return nil, err
			}
		} else {
			val = &yaml.Node{}
			if err := val.Encode(e.value); err != nil {
				return nil, fmt.Errorf("encode %s: %w", e.key, err)
			}
		}
		m.Content = append(m.Content, key, val)
	}
	return m, nil
}

func setTOML(tree *toml.Tree, prefix string, entries []entry) {
	for _, e := range entries {
		if e.section != nil {
			setTOML(tree, prefix+e.key+".", e.section)
			continue
		}
		tree.SetWithComment(prefix+e.key, e.help, false, e.value)
	}
}
