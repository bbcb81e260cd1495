package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// tree is the JSON view of a Config that dot paths walk over.
type tree = map[string]any

func toTree(cfg *Config) (tree, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	var t tree
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return t, nil
}

func fromTree(t tree, cfg *Config) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return json.Unmarshal(data, cfg)
}

// GetByPath returns the value at a dot path such as "general.botName".
// Numeric segments index into lists.
func GetByPath(cfg *Config, path string) (any, error) {
	t, err := toTree(cfg)
	if err != nil {
		return nil, err
	}

	var node any = t
	for _, seg := range strings.Split(path, ".") {
		switch n := node.(type) {
		case tree:
			v, ok := n[seg]
			if !ok {
				return nil, fmt.Errorf("key not found: %s", path)
			}
			node = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(n) {
				return nil, fmt.Errorf("invalid list index %q in %s", seg, path)
			}
			node = n[i]
		default:
			return nil, fmt.Errorf("%s: %q is not a section", path, seg)
		}
	}
	return node, nil
}

// SetByPath stores value at a dot path, creating missing map sections.
// String values "true", "false" and numbers are stored typed.
func SetByPath(cfg *Config, path string, value any) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	t, err := toTree(cfg)
	if err != nil {
		return err
	}

	segs := strings.Split(path, ".")
	section := t
	for _, seg := range segs[:len(segs)-1] {
		switch next := section[seg].(type) {
		case tree:
			section = next
		case nil:
			child := tree{}
			section[seg] = child
			section = child
		default:
			return fmt.Errorf("%s: %q is not a section", path, seg)
		}
	}
	section[segs[len(segs)-1]] = coerce(value)

	return fromTree(t, cfg)
}

func coerce(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Sanitize returns a deep copy of cfg with tokens and secrets masked.
func Sanitize(cfg *Config) *Config {
	t, err := toTree(cfg)
	if err != nil {
		return cfg
	}
	var out Config
	if err := fromTree(t, &out); err != nil {
		return cfg
	}

	secrets := []*string{
		&out.Channels.Slack.BotToken,
		&out.Channels.Slack.AppToken,
		&out.Channels.Messenger.PageToken,
		&out.Channels.Messenger.AppSecret,
		&out.Channels.Messenger.VerifyToken,
	}
	for _, s := range secrets {
		*s = mask(*s)
	}
	return &out
}

// mask keeps the first and last four characters of long secrets.
func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "***"
	default:
		return s[:4] + "****" + s[len(s)-4:]
	}
}

// ListPaths returns every leaf dot path with its current value.
func ListPaths(cfg *Config) map[string]any {
	t, err := toTree(cfg)
	if err != nil {
		return nil
	}
	leaves := make(map[string]any)
	collectLeaves("", t, leaves)
	return leaves
}

func collectLeaves(prefix string, t tree, leaves map[string]any) {
	for k, v := range t {
		if prefix != "" {
			k = prefix + "." + k
		}
		if sub, ok := v.(tree); ok {
			collectLeaves(k, sub, leaves)
			continue
		}
		leaves[k] = v
	}
}
