package config

import (
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-org-registry/types"
)

// Parser resolves dot-separated paths ("auth.dev_keys.env_var") against the
// raw yaml document.
type Parser struct {
	data map[string]interface{}
}

func NewParser(raw *map[string]interface{}) *Parser {
	parser := &Parser{data: make(map[string]interface{})}
	if raw != nil && *raw != nil {
		parser.data = *raw
	}
	return parser
}

func (p *Parser) GetValue(path string, defaultValue interface{}) interface{} {
	value := p.navigateToPath(path)
	if value == nil {
		return defaultValue
	}
	return value
}

func (p *Parser) GetAs(path string, target interface{}) error {
	value := p.navigateToPath(path)
	if value == nil {
		return types.Errorf(types.ErrConfigInvalidPath, "path: %s", path)
	}

	valueBytes, err := yaml.Marshal(value)
	if err != nil {
		return types.WrapError(err, "failed to marshal config value")
	}

	if err = yaml.Unmarshal(valueBytes, target); err != nil {
		return types.WrapError(err, "failed to unmarshal config value")
	}

	return nil
}

func (p *Parser) Paths() []string {
	var paths []string
	collectPaths("", p.data, &paths)
	sort.Strings(paths)
	return paths
}

func collectPaths(prefix string, node interface{}, paths *[]string) {
	m, ok := node.(map[string]interface{})
	if !ok {
		if prefix != "" {
			*paths = append(*paths, prefix)
		}
		return
	}

	for k, v := range m {
		next := k
		if prefix != "" {
			next = prefix + "." + k
		}
		collectPaths(next, v, paths)
	}
}

func (p *Parser) navigateToPath(path string) interface{} {
	if path == "" {
		return p.data
	}

	var current interface{} = p.data
	for _, part := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]interface{}:
			val, exists := v[part]
			if !exists {
				return nil
			}
			current = val
		case map[interface{}]interface{}:
			val, exists := v[part]
			if !exists {
				return nil
			}
			current = val
		default:
			return nil
		}

		if current == nil {
			return nil
		}
	}

	return current
}
