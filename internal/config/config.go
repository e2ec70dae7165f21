package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/tako/pkg/types"
)

// Config holds the session configuration
type Config struct {
	Input   InputConfig   `json:"input" yaml:"input"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Window  WindowConfig  `json:"window" yaml:"window"`
	Reset   bool          `json:"reset" yaml:"reset"`
	// LogLevel is a zap level name
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// InputConfig locates the material an annotation session starts from
type InputConfig struct {
	InputDir   string `json:"input_dir" yaml:"input_dir"`
	LabelFile  string `json:"label_file" yaml:"label_file"`
	OutputPath string `json:"output_path" yaml:"output_path"`
}

// StorageConfig holds the content directories and the chunk memory ceiling
type StorageConfig struct {
	ImageDir          string `json:"image_dir" yaml:"image_dir"`
	ClassificationDir string `json:"classification_dir" yaml:"classification_dir"`
	MaxChunkBytes     int64  `json:"max_chunk_bytes" yaml:"max_chunk_bytes"`
}

// WindowConfig is the grid cell size in pixels
type WindowConfig struct {
	Height int `json:"window_height" yaml:"window_height"`
	Width  int `json:"window_width" yaml:"window_width"`
}

// Size returns the window dimensions as a WindowSize
func (w WindowConfig) Size() types.WindowSize {
	return types.WindowSize{H: w.Height, W: w.Width}
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Input: InputConfig{
			InputDir:   "./input",
			LabelFile:  "./labels.txt",
			OutputPath: "./output.npy",
		},
		Storage: StorageConfig{
			ImageDir:          "data/images",
			ClassificationDir: "data/classifications",
			MaxChunkBytes:     1 << 30,
		},
		Window: WindowConfig{
			Height: 512,
			Width:  512,
		},
		Reset:    false,
		LogLevel: "info",
	}
}

// LoadFromFile loads configuration from a JSON or YAML file on top of the
// defaults. The format is chosen by file extension.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", types.ErrConfiguration, err)
	}

	config := Default()
	if isYAML(filename) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse config file: %v", types.ErrConfiguration, err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON or YAML file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	if isYAML(filename) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid. Every failure wraps
// types.ErrConfiguration.
func (c *Config) Validate() error {
	if c.Window.Height < 1 || c.Window.Width < 1 {
		return fmt.Errorf("%w: window dimensions must be positive, got %dx%d",
			types.ErrConfiguration, c.Window.Height, c.Window.Width)
	}

	if c.Storage.MaxChunkBytes < 1 {
		return fmt.Errorf("%w: storage.max_chunk_bytes must be positive", types.ErrConfiguration)
	}

	if c.Storage.ImageDir == "" || c.Storage.ClassificationDir == "" {
		return fmt.Errorf("%w: storage directories cannot be empty", types.ErrConfiguration)
	}

	if filepath.Clean(c.Storage.ImageDir) == filepath.Clean(c.Storage.ClassificationDir) {
		return fmt.Errorf("%w: image_dir and classification_dir must differ", types.ErrConfiguration)
	}

	if c.Input.OutputPath == "" {
		return fmt.Errorf("%w: input.output_path cannot be empty", types.ErrConfiguration)
	}

	if c.Input.LabelFile == "" {
		return fmt.Errorf("%w: input.label_file cannot be empty", types.ErrConfiguration)
	}

	return nil
}

// ValidateInputDir checks that the import source exists. It is only needed
// when images are going to be imported.
func (c *Config) ValidateInputDir() error {
	info, err := os.Stat(c.Input.InputDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: input directory %q does not exist", types.ErrConfiguration, c.Input.InputDir)
	}
	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./tako.json"
	}
	return filepath.Join(home, ".config", "tako", "config.json")
}

func isYAML(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}
