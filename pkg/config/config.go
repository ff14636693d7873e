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
	configDir  string = ".logpoint"
	configFile string = "config.yml"

	// DefaultIterations is the length of the reference sequence computed by
	// the target workload when nothing else is configured.
	DefaultIterations = 100
)

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// Iterations is the number of steps the target workload runs.
	Iterations *int `yaml:"iterations,omitempty"`

	// LocationMode selects how the location argument is interpreted when
	// --mode is not passed: counter, line, addr or func.
	LocationMode string `yaml:"location-mode,omitempty"`

	// Color enables colored output of reported values when standard output
	// is a terminal. A nil value means enabled.
	Color *bool `yaml:"color,omitempty"`

	// TargetArgs is appended to the command line of the target runner,
	// split like a shell would.
	TargetArgs string `yaml:"target-args,omitempty"`
}

// GetIterations returns the configured number of iterations or the default.
func (c *Config) GetIterations() int {
	if c == nil || c.Iterations == nil {
		return DefaultIterations
	}
	return *c.Iterations
}

// ColorEnabled reports whether colored output is allowed.
func (c *Config) ColorEnabled() bool {
	if c == nil || c.Color == nil {
		return true
	}
	return *c.Color
}

// LoadConfig attempts to populate a Config object from the config.yml file.
func LoadConfig() (*Config, error) {
	err := createConfigPath()
	if err != nil {
		return &Config{}, fmt.Errorf("could not create config directory: %v", err)
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to get config file path: %v", err)
	}

	f, err := os.Open(fullConfigFile)
	if err != nil {
		f, err = createDefaultConfig(fullConfigFile)
		if err != nil {
			return &Config{}, fmt.Errorf("error creating default config file: %v", err)
		}
	}
	defer f.Close()

	return Decode(f)
}

// Decode reads a YAML configuration from r.
func Decode(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to read config data: %v", err)
	}

	var c Config
	err = yaml.Unmarshal(data, &c)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to decode config file: %v", err)
	}
	if c.Iterations != nil && *c.Iterations < 0 {
		return &Config{}, fmt.Errorf("invalid iterations %d", *c.Iterations)
	}

	return &c, nil
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
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return f, nil
}

func writeDefaultConfig(f io.Writer) error {
	_, err := io.WriteString(f,
		`# Configuration file for logpoint.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Number of steps computed by the target workload.
# iterations: 100

# How the location argument is interpreted: counter, line, addr or func.
# location-mode: counter

# Set to false to never color reported values.
# color: true

# Extra arguments for the target runner, for example "--notify".
# target-args: ""
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
// If XDG_CONFIG_HOME is set the file is looked up in
// $XDG_CONFIG_HOME/logpoint instead of $HOME/.logpoint.
func GetConfigFilePath(file string) (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return path.Join(xdg, "logpoint", file), nil
	}
	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return path.Join(userHomeDir, configDir, file), nil
}
