package config

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path"

	"gopkg.in/yaml.v2"
)

const (
	configDir  string = ".kdbg"
	configFile string = "config.yml"

	// DefaultSymbolizer is the addr2line of the riscv64 bare metal toolchain.
	DefaultSymbolizer = "riscv64-unknown-elf-addr2line"
	// DefaultAnnotationColor is the ANSI foreground color (yellow) of
	// backtrace annotation lines.
	DefaultAnnotationColor = 33
)

// ColorMode selects when annotations are colored.
type ColorMode string

const (
	ColorNever  ColorMode = "never"
	ColorAlways ColorMode = "always"
	ColorAuto   ColorMode = "auto"
)

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// Symbolizer is the addr2line compatible executable used to resolve
	// return addresses.
	Symbolizer string `yaml:"symbolizer"`

	// Color selects whether annotation lines are colored when --color is
	// not passed: never, always or auto (only when stdout is a terminal).
	Color ColorMode `yaml:"color"`

	// Annotation line color (3/4 bit color codes as defined
	// here: https://en.wikipedia.org/wiki/ANSI_escape_code#Colors)
	AnnotationColor int `yaml:"annotation-color"`

	// CacheSize is the number of resolved addresses remembered during a
	// run, zero disables the cache.
	CacheSize int `yaml:"cache-size"`

	// MaxDepth is the maximum nesting depth printed by the pretty printers.
	MaxDepth *int `yaml:"max-depth,omitempty"`

	// PrettyPrintTypes are type names displayed by the recursive debug
	// printer, in addition to the default kernel types.
	PrettyPrintTypes []string `yaml:"pretty-print-types"`

	// Commands aliases for the interactive prompt.
	Aliases map[string][]string `yaml:"aliases"`
}

// SymbolizerTool returns the configured symbolizer or DefaultSymbolizer.
func (c *Config) SymbolizerTool() string {
	if c == nil || c.Symbolizer == "" {
		return DefaultSymbolizer
	}
	return c.Symbolizer
}

// AnnotationEscape returns the ANSI escape sequence that starts an
// annotation line.
func (c *Config) AnnotationEscape() string {
	color := DefaultAnnotationColor
	if c != nil && c.AnnotationColor != 0 {
		color = c.AnnotationColor
	}
	return fmt.Sprintf("\x1b[%dm", color)
}

// ColorMode returns the configured color mode, ColorNever if unset or invalid.
func (c *Config) ColorMode() ColorMode {
	if c == nil {
		return ColorNever
	}
	switch c.Color {
	case ColorAlways, ColorAuto:
		return c.Color
	}
	return ColorNever
}

// LoadConfig attempts to populate a Config object from the config.yml file.
func LoadConfig() *Config {
	err := createConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not create config directory: %v.\n", err)
		return &Config{}
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to get config file path: %v.\n", err)
		return &Config{}
	}

	if _, err := os.Stat(fullConfigFile); err != nil {
		f, err := createDefaultConfig(fullConfigFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating default config file: %v\n", err)
			return &Config{}
		}
		f.Close()
	}

	c, err := LoadConfigFrom(fullConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v.\n", err)
		return &Config{}
	}
	return c
}

// LoadConfigFrom reads the configuration at path.
func LoadConfigFrom(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open config file: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("unable to read config data: %v", err)
	}

	var c Config
	err = yaml.Unmarshal(data, &c)
	if err != nil {
		return nil, fmt.Errorf("unable to decode config file: %v", err)
	}
	return &c, nil
}

// SaveConfig will marshal and save the config struct
// to disk.
func SaveConfig(conf *Config) error {
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}

	f, err := os.Create(fullConfigFile)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(out)
	return err
}

func createDefaultConfig(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create config file: %v", err)
	}
	err = writeDefaultConfig(f)
	if err != nil {
		return nil, fmt.Errorf("unable to write default configuration: %v", err)
	}
	return f, nil
}

func writeDefaultConfig(f io.Writer) error {
	_, err := io.WriteString(f,
		`# Configuration file for kdbg.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# addr2line compatible tool used by 'kdbg backtrace'.
# symbolizer: riscv64-unknown-elf-addr2line

# Color annotation lines when --color is not given: never, always or auto.
# color: never

# ANSI foreground color of annotation lines (default 33, yellow).
# See https://en.wikipedia.org/wiki/ANSI_escape_code#3/4_bit
# annotation-color: 33

# Number of resolved addresses remembered during a single run (0 disables).
# cache-size: 0

# Maximum nesting depth printed for a value.
# max-depth: 64

# Types printed field by field, in addition to TaskControlBlock and TaskUserResource.
pretty-print-types: []

# Provided aliases will be added to the default aliases for a given command.
aliases:
  # command: ["alias1", "alias2"]
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return path.Join(userHomeDir, configDir, file), nil
}
