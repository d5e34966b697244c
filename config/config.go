package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nachoal/urban-quest/internal/logging"
)

const (
	envPrefix      = "URBAN_QUEST"
	configFileName = "config.json"

	DefaultProvider = "gemini"
	VisionStub      = "stub"
	VisionGemini    = "gemini"
)

// Keys understood by the configuration layers
const (
	KeyProvider     = "provider"
	KeyModel        = "model"
	KeyVision       = "vision"
	KeyVisionModel  = "vision_model"
	KeyTimeout      = "timeout"
	KeyMaxTurns     = "max_turns"
	KeyVerbose      = "verbose"
	KeyLogFile      = "log_file"
	KeySystemPrompt = "system_prompt"
	KeyMaxTokens    = "max_tokens"
	KeyOrganization = "organization"
	KeyHeaders      = "headers"
)

// Config represents the resolved application configuration
type Config struct {
	Provider     string
	Model        string
	Vision       string
	VisionModel  string
	Timeout      time.Duration
	MaxTurns     int
	Verbose      bool
	LogFile      string
	SystemPrompt string
	MaxTokens    int
	Organization string
	Headers      map[string]string
}

// Manager layers defaults, the config file, environment and flags
type Manager struct {
	configDir  string
	configPath string
	v          *viper.Viper
}

// NewManager creates a config manager rooted at ~/.urban-quest
func NewManager() (*Manager, error) {
	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return NewManagerAt(filepath.Join(homeDir, ".urban-quest"))
}

// NewManagerAt creates a config manager using configDir
func NewManagerAt(configDir string) (*Manager, error) {
	// Create config directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(configDir, configFileName))
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyProvider, DefaultProvider)
	v.SetDefault(KeyModel, "")
	v.SetDefault(KeyVision, VisionStub)
	v.SetDefault(KeyVisionModel, "")
	v.SetDefault(KeyTimeout, 2*time.Minute)
	v.SetDefault(KeyMaxTurns, 0)
	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeyLogFile, logging.DefaultFile(configDir))
	v.SetDefault(KeySystemPrompt, DefaultSystemPrompt)
	v.SetDefault(KeyMaxTokens, 0)
	v.SetDefault(KeyOrganization, "")

	m := &Manager{
		configDir:  configDir,
		configPath: filepath.Join(configDir, configFileName),
		v:          v,
	}

	// Load existing config if it exists
	if err := m.Load(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return m, nil
}

// Load reads the configuration file, a missing file is not an error
func (m *Manager) Load() error {
	if err := m.v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// BindFlags lets command line flags override every other layer.
// Flags are matched by key name with underscores written as dashes.
func (m *Manager) BindFlags(flags *pflag.FlagSet) error {
	for _, key := range []string{KeyProvider, KeyModel, KeyVision, KeyVisionModel, KeyTimeout, KeyMaxTurns, KeyVerbose, KeyLogFile, KeyMaxTokens, KeyOrganization} {
		flag := flags.Lookup(strings.ReplaceAll(key, "_", "-"))
		if flag == nil {
			continue
		}
		if err := m.v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", flag.Name, err)
		}
	}
	return nil
}

// Config returns the resolved configuration
func (m *Manager) Config() Config {
	return Config{
		Provider:     strings.ToLower(m.v.GetString(KeyProvider)),
		Model:        m.v.GetString(KeyModel),
		Vision:       strings.ToLower(m.v.GetString(KeyVision)),
		VisionModel:  m.v.GetString(KeyVisionModel),
		Timeout:      m.v.GetDuration(KeyTimeout),
		MaxTurns:     m.v.GetInt(KeyMaxTurns),
		Verbose:      m.v.GetBool(KeyVerbose),
		LogFile:      m.v.GetString(KeyLogFile),
		SystemPrompt: m.v.GetString(KeySystemPrompt),
		MaxTokens:    m.v.GetInt(KeyMaxTokens),
		Organization: m.v.GetString(KeyOrganization),
		Headers:      m.v.GetStringMapString(KeyHeaders),
	}
}

// GetDefaultProvider returns the default provider
func (m *Manager) GetDefaultProvider() string {
	return m.Config().Provider
}

// GetDefaultModel returns the default model
func (m *Manager) GetDefaultModel() string {
	return m.Config().Model
}

// SetDefaults updates the default provider and model in the config file
func (m *Manager) SetDefaults(provider, model string) error {
	settings := map[string]interface{}{}
	data, err := os.ReadFile(m.configPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &settings); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("failed to read config: %w", err)
	}

	settings[KeyProvider] = strings.ToLower(provider)
	if model == "" {
		delete(settings, KeyModel)
	} else {
		settings[KeyModel] = model
	}

	return m.save(settings)
}

// Path returns the config file location
func (m *Manager) Path() string {
	return m.configPath
}

// save writes only the settings given, never values from env or flags
func (m *Manager) save(settings map[string]interface{}) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return m.Load()
}

// DefaultSystemPrompt frames the model as a travel companion
const DefaultSystemPrompt = `You are Urban Quest, a friendly guide for people exploring a city on foot.
Answer questions about places, landmarks and things the user has photographed.
Keep answers short and practical, and suggest something nearby to explore when it fits.`
