package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "MONCTL_CONFIG"

// SourceKind says where an effective value came from.
type SourceKind string

const (
	SourceDefault SourceKind = "default"
	SourceFile    SourceKind = "file"
)

// Source locates the YAML node that set a value.
type Source struct {
	Kind   SourceKind
	File   string
	Line   int
	Column int
}

// LoadResult is an effective config plus where each set key was written.
type LoadResult struct {
	Config  *Config
	Sources map[string]Source // dotted path -> last file that set it
	Files   []string          // every file read, in merge order
}

// DefaultConfigPath returns $MONCTL_CONFIG or ~/.config/monctl/config.yaml.
func DefaultConfigPath() (string, error) {
	if path := strings.TrimSpace(os.Getenv(EnvConfigPath)); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "monctl", "config.yaml"), nil
}

// Load reads the config from the default location.
func Load() (*Config, error) {
	res, err := LoadWithSources()
	if err != nil {
		return nil, err
	}
	return res.Config, nil
}

// LoadWithSources is Load plus per-key sources for `config explain`.
func LoadWithSources() (*LoadResult, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads path and everything it includes. Included files are
// merged first, in order, and the including file wins. A missing top-level
// file yields the defaults.
func LoadFromPath(path string) (*LoadResult, error) {
	l := &loader{
		visited: make(map[string]bool),
		sources: make(map[string]Source),
	}

	var raw RawConfig
	if _, err := os.Stat(path); err == nil {
		if raw, err = l.load(path); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}

	cfg, err := BuildEffectiveConfig(raw)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		return nil, l.locate(err)
	}
	return &LoadResult{Config: cfg, Sources: l.sources, Files: l.files}, nil
}

// loader walks one include tree. visited skips diamonds; chain holds the
// files currently being loaded and catches cycles.
type loader struct {
	visited map[string]bool
	chain   []string
	files   []string
	sources map[string]Source
}

type includeRef struct {
	target string
	at     Source
}

func (l *loader) load(path string) (RawConfig, error) {
	file := resolveFile(path)
	if slices.Contains(l.chain, file) {
		return RawConfig{}, fmt.Errorf("include cycle detected: %s -> %s", strings.Join(l.chain, " -> "), file)
	}
	if l.visited[file] {
		return RawConfig{}, nil
	}
	l.visited[file] = true

	raw, root, err := parseFile(file)
	if err != nil {
		return RawConfig{}, err
	}
	own, includes := indexNodes(root, file)

	l.chain = append(l.chain, file)
	var merged RawConfig
	for _, inc := range includes {
		targets, err := expandInclude(file, inc.target)
		if err != nil {
			return RawConfig{}, fmt.Errorf("%s:%d:%d: include %q: %w", inc.at.File, inc.at.Line, inc.at.Column, inc.target, err)
		}
		for _, target := range targets {
			sub, err := l.load(target)
			if err != nil {
				return RawConfig{}, err
			}
			merged = merged.merge(sub)
		}
	}
	l.chain = l.chain[:len(l.chain)-1]

	for key, src := range own {
		l.sources[key] = src
	}
	l.files = append(l.files, file)
	return merged.merge(raw), nil
}

// locate points a ValidationError at the file position that set the key.
func (l *loader) locate(err error) error {
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Path == "" {
		return err
	}
	if src, ok := l.sources[verr.Path]; ok {
		verr.Source = src
	}
	return verr
}

// parseFile decodes file twice: strictly into RawConfig, and as a node tree
// for positions.
func parseFile(file string) (RawConfig, *yaml.Node, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return RawConfig{}, nil, fmt.Errorf("%s: failed to read: %w", file, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return RawConfig{}, nil, fmt.Errorf("%s: failed to parse yaml: %w", file, err)
	}

	var raw RawConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return RawConfig{}, nil, fmt.Errorf("%s: %w", file, err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	return raw, root, nil
}

// indexNodes records the position of every mapping key under its dotted path
// and collects the top-level include entries.
func indexNodes(root *yaml.Node, file string) (map[string]Source, []includeRef) {
	sources := make(map[string]Source)
	var includes []includeRef
	if root == nil || root.Kind != yaml.MappingNode {
		return sources, nil
	}

	var walk func(node *yaml.Node, prefix string)
	walk = func(node *yaml.Node, prefix string) {
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i].Value, node.Content[i+1]
			if prefix != "" {
				key = prefix + "." + key
			}
			sources[key] = Source{Kind: SourceFile, File: file, Line: val.Line, Column: val.Column}
			if val.Kind == yaml.MappingNode {
				walk(val, key)
			}
		}
	}
	walk(root, "")

	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != "include" {
			continue
		}
		val := root.Content[i+1]
		items := []*yaml.Node{val}
		if val.Kind == yaml.SequenceNode {
			items = val.Content
		}
		for _, item := range items {
			if item.Kind != yaml.ScalarNode {
				continue
			}
			includes = append(includes, includeRef{
				target: item.Value,
				at:     Source{Kind: SourceFile, File: file, Line: item.Line, Column: item.Column},
			})
		}
	}
	return sources, includes
}

// expandInclude resolves an include entry relative to the including file.
// Directories contribute their *.yaml and *.yml files and glob patterns their
// matches, both in lexical order.
func expandInclude(from, target string) ([]string, error) {
	if target == "" {
		return nil, fmt.Errorf("path is empty")
	}
	path, err := expandHome(target)
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(from), path)
	}

	if strings.ContainsAny(path, "*?[") {
		matches, err := filepath.Glob(path)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("pattern matched no files")
		}
		slices.Sort(matches)
		return matches, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, ent := range entries {
		switch strings.ToLower(filepath.Ext(ent.Name())) {
		case ".yaml", ".yml":
			if !ent.IsDir() {
				files = append(files, filepath.Join(path, ent.Name()))
			}
		}
	}
	return files, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/")), nil
}

// resolveFile returns an absolute, symlink-free path when one can be had.
func resolveFile(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return path
}
