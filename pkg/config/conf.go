package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	FileName = "config.yaml"
	dirMode  = 0700
	fileMode = 0600

	DefaultImageSize  = 512
	DefaultPowerMeanP = 0.55
	DefaultWorkers    = 4
	DefaultUIDPrefix  = "Eva_Set"
)

// Style is the label pair an evaluation folder maps to.
type Style struct {
	Name   string `yaml:"name" json:"name"`
	Abbrev string `yaml:"abbrev" json:"abbrev"`
}

// Config represents the run configuration.
type Config struct {
	ImageSize  int              `yaml:"image_size"`
	PowerMeanP float64          `yaml:"power_mean_p"`
	Workers    int              `yaml:"workers"`
	UIDPrefix  string           `yaml:"uid_prefix"`
	Styles     map[string]Style `yaml:"styles"`
}

// DefaultStyles maps evaluation and comparison folder names to styles.
// Comparison folders often use the short codes.
func DefaultStyles() map[string]Style {
	return map[string]Style{
		"CH-AD":   {Name: "Chinese_Art_Deco", Abbrev: "Ch-AD"},
		"CH-BAR":  {Name: "Chinese_Baroque", Abbrev: "Ch-BAR"},
		"CH-BYZ":  {Name: "Chinese_Byzantine_Revival", Abbrev: "Ch-BYZ"},
		"CH-GOTH": {Name: "Chinese_Gothic_Revival", Abbrev: "Ch-GOTH"},
		"CH-NEO":  {Name: "Chinese_Neoclassical", Abbrev: "Ch-NEO"},
		"AD":      {Name: "Chinese_Art_Deco", Abbrev: "Ch-AD"},
		"BAR":     {Name: "Chinese_Baroque", Abbrev: "Ch-BAR"},
		"BYZ":     {Name: "Chinese_Byzantine_Revival", Abbrev: "Ch-BYZ"},
		"GOTH":    {Name: "Chinese_Gothic_Revival", Abbrev: "Ch-GOTH"},
		"NEO":     {Name: "Chinese_Neoclassical", Abbrev: "Ch-NEO"},
	}
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		ImageSize:  DefaultImageSize,
		PowerMeanP: DefaultPowerMeanP,
		Workers:    DefaultWorkers,
		UIDPrefix:  DefaultUIDPrefix,
		Styles:     DefaultStyles(),
	}
}

// Validate checks the numeric settings and fills empty fields with defaults.
func (c *Config) Validate() error {
	if c.ImageSize <= 0 {
		return errors.Errorf("image_size must be positive, got %d", c.ImageSize)
	}
	if c.PowerMeanP <= 0 {
		return errors.Errorf("power_mean_p must be positive, got %g", c.PowerMeanP)
	}
	if c.Workers < 1 {
		return errors.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.UIDPrefix == "" {
		c.UIDPrefix = DefaultUIDPrefix
	}
	if len(c.Styles) == 0 {
		c.Styles = DefaultStyles()
	}
	for folder, s := range c.Styles {
		if s.Name == "" || s.Abbrev == "" {
			return errors.Errorf("style folder %s requires both name and abbrev", folder)
		}
	}
	return nil
}

// StyleFolders returns the configured folder names in sorted order.
func (c *Config) StyleFolders() []string {
	list := make([]string, 0, len(c.Styles))
	for k := range c.Styles {
		list = append(list, k)
	}
	sort.Strings(list)
	return list
}

func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	path := filepath.Join(dirPath, FileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return errors.Wrapf(err, "failed to write config file: %s", path)
	}
	return nil
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading config file: %s", path)
	}

	// styles from the file replace the defaults rather than merge into them
	c := Default()
	c.Styles = nil
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrapf(err, "error unmarshalling config file: %s", path)
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config file: %s", path)
	}
	return c, nil
}

// ReadOrCreate reads the run config from directory or creates a default one.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dirPath, dirMode); err != nil {
			return nil, errors.Wrapf(err, "failed to create dir: %s", dirPath)
		}
	}

	path := filepath.Join(dirPath, FileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating default config", "path", path)
		if err := Save(dirPath, Default()); err != nil {
			return nil, errors.Wrap(err, "failed to create default config")
		}
	}

	return Load(path)
}

// GetOrCreateHomeDir returns the named dot-directory under the user home.
// The created flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, errors.Wrap(err, "failed to get user home dir")
	}

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, errors.Wrapf(err, "failed to create dir: %s", dir)
		}
		created = true
	}
	return dir, created, nil
}
