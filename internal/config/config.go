package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	perrors "git.home.luguber.info/inful/presto/internal/errors"
)

// SectionName is the required top-level section of a presto configuration file.
const SectionName = "presto"

// Config represents the application configuration
type Config struct {
	Presto    PrestoConfig   `yaml:"presto"`
	Variables map[string]any `yaml:"variables,omitempty"`

	// baseDir is the directory relative paths are resolved against.
	baseDir string
}

// PrestoConfig holds the settings of the required [presto] section.
type PrestoConfig struct {
	MarkdownDir      string            `yaml:"markdown_dir"`
	OutputDir        string            `yaml:"output_dir"`
	TemplateFile     string            `yaml:"template_file"`
	CacheFile        string            `yaml:"cache_file"`
	PartialsDir      string            `yaml:"partials_dir,omitempty"`
	Whitelist        Whitelist         `yaml:"whitelist,omitempty"`
	HTMLExtension    string            `yaml:"html_extension,omitempty"`
	SourceExtensions []string          `yaml:"source_extensions,omitempty"`
	Eligibility      EligibilityMode   `yaml:"eligibility,omitempty"`
	Passthrough      PassthroughConfig `yaml:"passthrough,omitempty"`
	MetricsFile      string            `yaml:"metrics_file,omitempty"`
	DateFormat       string            `yaml:"date_format,omitempty"`
	EnvFile          string            `yaml:"env_file,omitempty"`
}

// PassthroughConfig names the control file copied verbatim instead of rendered.
type PassthroughConfig struct {
	Source string `yaml:"source,omitempty"`
	Dest   string `yaml:"dest,omitempty"`
}

// EligibilityMode selects the file-level marker deciding whether a source is published.
type EligibilityMode string

const (
	// EligibilityPrefix publishes every source whose name does not start with '_'.
	EligibilityPrefix EligibilityMode = "prefix"
	// EligibilityExecutable publishes sources with the owner execute bit set.
	EligibilityExecutable EligibilityMode = "executable"
)

// Whitelist is a set of destination-relative directories protected from
// reconciliation. It accepts a YAML sequence or a comma-separated string.
type Whitelist []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (w *Whitelist) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*w = splitWhitelist(node.Value)
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		out := make(Whitelist, 0, len(items))
		for _, item := range items {
			out = append(out, splitWhitelist(item)...)
		}
		*w = out
		return nil
	default:
		return fmt.Errorf("whitelist must be a string or a list of strings")
	}
}

func splitWhitelist(s string) Whitelist {
	var out Whitelist
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, filepath.Clean(part))
	}
	return out
}

// Load loads configuration from the specified file
func Load(configPath string) (*Config, error) {
	info, err := os.Stat(configPath)
	if err != nil || info.IsDir() {
		return nil, perrors.ConfigNotFound(configPath)
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- path supplied by the operator
	if err != nil {
		return nil, perrors.Wrap(err, perrors.CategoryConfig, perrors.SeverityFatal, "failed to read config file").
			WithContext("path", configPath)
	}

	baseDir := filepath.Dir(configPath)
	if err := loadEnvFile(baseDir, data); err != nil {
		return nil, err
	}

	// Expand environment variables in the YAML content
	expanded := []byte(os.ExpandEnv(string(data)))

	var raw map[string]any
	if err := yaml.Unmarshal(expanded, &raw); err != nil {
		return nil, perrors.Wrap(err, perrors.CategoryConfig, perrors.SeverityFatal, "failed to parse config file").
			WithContext("path", configPath)
	}
	if section, ok := raw[SectionName]; !ok || section == nil {
		return nil, perrors.ConfigSectionMissing(configPath, SectionName)
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, perrors.Wrap(err, perrors.CategoryConfig, perrors.SeverityFatal, "failed to unmarshal config").
			WithContext("path", configPath)
	}
	cfg.baseDir = baseDir

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Path resolves a configured path against the configuration file's directory.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.baseDir, p)
}

// MarkdownDir returns the resolved source tree root.
func (c *Config) MarkdownDir() string { return c.Path(c.Presto.MarkdownDir) }

// OutputDir returns the resolved destination tree root.
func (c *Config) OutputDir() string { return c.Path(c.Presto.OutputDir) }

// TemplateFile returns the resolved page template path.
func (c *Config) TemplateFile() string { return c.Path(c.Presto.TemplateFile) }

// CacheFile returns the resolved cache file path.
func (c *Config) CacheFile() string { return c.Path(c.Presto.CacheFile) }

// PartialsDir returns the resolved partials directory, defaulting to the source tree.
func (c *Config) PartialsDir() string {
	if c.Presto.PartialsDir == "" {
		return c.MarkdownDir()
	}
	return c.Path(c.Presto.PartialsDir)
}

// MetricsFile returns the resolved metrics textfile path or "" when disabled.
func (c *Config) MetricsFile() string { return c.Path(c.Presto.MetricsFile) }

// Init creates a new configuration file with example content
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Config{
		Presto: PrestoConfig{
			MarkdownDir:   "markdown",
			OutputDir:     "public_html",
			TemplateFile:  "template.html",
			CacheFile:     ".presto-cache",
			PartialsDir:   "partials",
			Whitelist:     Whitelist{"static", "downloads"},
			HTMLExtension: DefaultHTMLExtension,
		},
		Variables: map[string]any{
			"site_name": "My Site",
			"author":    "Your Name",
		},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil { // #nosec G306 -- config is not secret
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
