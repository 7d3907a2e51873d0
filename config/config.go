// Package config loads the service configuration from defaults, an optional
// YAML file and NAVIGATOR_* environment variables.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix  = "NAVIGATOR"
	configName = "navigator"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Tokenizer TokenizerConfig `mapstructure:"tokenizer" yaml:"tokenizer"`
	Prompt    PromptConfig    `mapstructure:"prompt" yaml:"prompt"`
	Ranker    RankerConfig    `mapstructure:"ranker" yaml:"ranker"`
	Generator GeneratorConfig `mapstructure:"generator" yaml:"generator"`
	Agent     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host" yaml:"host"`
	Port         int           `mapstructure:"port" yaml:"port"`
	CORSOrigins  []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type TokenizerConfig struct {
	Backend   string `mapstructure:"backend" yaml:"backend"`
	Encoding  string `mapstructure:"encoding" yaml:"encoding"`
	CacheSize int    `mapstructure:"cache_size" yaml:"cache_size"`
}

type PromptConfig struct {
	MaxHTMLTokens           int  `mapstructure:"max_html_tokens" yaml:"max_html_tokens"`
	MaxUtteranceTokens      int  `mapstructure:"max_utterance_tokens" yaml:"max_utterance_tokens"`
	MaxPrevTurnsTokens      int  `mapstructure:"max_prev_turns_tokens" yaml:"max_prev_turns_tokens"`
	MaxCandidatesTokens     int  `mapstructure:"max_candidates_tokens" yaml:"max_candidates_tokens"`
	NumUtterances           int  `mapstructure:"num_utterances" yaml:"num_utterances"`
	NumPrevTurns            int  `mapstructure:"num_prev_turns" yaml:"num_prev_turns"`
	MaxCandidates           int  `mapstructure:"max_candidates" yaml:"max_candidates"`
	AddUnusedLenToCands     bool `mapstructure:"add_unused_len_to_cands" yaml:"add_unused_len_to_cands"`
	AllowIterativeReduction bool `mapstructure:"allow_iterative_reduction" yaml:"allow_iterative_reduction"`
	MaxAttempts             int  `mapstructure:"max_attempts" yaml:"max_attempts"`
	IncludeHTML             bool `mapstructure:"include_html" yaml:"include_html"`
}

type RankerConfig struct {
	Backend    string `mapstructure:"backend" yaml:"backend"`
	Similarity string `mapstructure:"similarity" yaml:"similarity"`
	Model      string `mapstructure:"model" yaml:"model"`
	APIURL     string `mapstructure:"api_url" yaml:"api_url"`
	APIKey     string `mapstructure:"api_key" yaml:"-"`
	AuthToken  string `mapstructure:"auth_token" yaml:"-"`
	BatchSize  int    `mapstructure:"batch_size" yaml:"batch_size"`
	CacheSize  int    `mapstructure:"cache_size" yaml:"cache_size"`
}

type GeneratorConfig struct {
	Backend     string  `mapstructure:"backend" yaml:"backend"`
	Model       string  `mapstructure:"model" yaml:"model"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`
	APIKey      string  `mapstructure:"api_key" yaml:"-"`
	MaxOutLen   int     `mapstructure:"max_out_len" yaml:"max_out_len"`
	Temperature float32 `mapstructure:"temperature" yaml:"temperature"`
}

type AgentConfig struct {
	Strategy    string `mapstructure:"strategy" yaml:"strategy"`
	MaxAttempts int    `mapstructure:"max_attempts" yaml:"max_attempts"`
}

type SessionConfig struct {
	// DumpDir receives every session replay on shutdown when set.
	DumpDir string `mapstructure:"dump_dir" yaml:"dump_dir"`
}

type BrowserConfig struct {
	Headful bool   `mapstructure:"headful" yaml:"headful"`
	UIDKey  string `mapstructure:"uid_key" yaml:"uid_key"`
	URL     string `mapstructure:"url" yaml:"url"`
}

// SetDefaults registers a default for every key so that environment
// variables are picked up for all of them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("tokenizer.backend", "codec")
	v.SetDefault("tokenizer.encoding", "cl100k_base")
	v.SetDefault("tokenizer.cache_size", 4096)

	v.SetDefault("prompt.max_html_tokens", 700)
	v.SetDefault("prompt.max_utterance_tokens", 200)
	v.SetDefault("prompt.max_prev_turns_tokens", 250)
	v.SetDefault("prompt.max_candidates_tokens", 650)
	v.SetDefault("prompt.num_utterances", 5)
	v.SetDefault("prompt.num_prev_turns", 5)
	v.SetDefault("prompt.max_candidates", 20)
	v.SetDefault("prompt.add_unused_len_to_cands", true)
	v.SetDefault("prompt.allow_iterative_reduction", false)
	v.SetDefault("prompt.max_attempts", 5)
	v.SetDefault("prompt.include_html", true)

	v.SetDefault("ranker.backend", "order")
	v.SetDefault("ranker.similarity", "cos_sim")
	v.SetDefault("ranker.model", "text-embedding-3-small")
	v.SetDefault("ranker.api_url", "")
	v.SetDefault("ranker.api_key", "")
	v.SetDefault("ranker.auth_token", "")
	v.SetDefault("ranker.batch_size", 64)
	v.SetDefault("ranker.cache_size", 10000)

	v.SetDefault("generator.backend", "completion")
	v.SetDefault("generator.model", "McGill-NLP/Llama-2-13b-chat-weblinx")
	v.SetDefault("generator.base_url", "http://localhost:8000/v1")
	v.SetDefault("generator.api_key", "")
	v.SetDefault("generator.max_out_len", 256)
	v.SetDefault("generator.temperature", 0)

	v.SetDefault("agent.strategy", "base")
	v.SetDefault("agent.max_attempts", 3)

	v.SetDefault("session.dump_dir", "")

	v.SetDefault("browser.headful", false)
	v.SetDefault("browser.uid_key", "data-webtasks-id")
	v.SetDefault("browser.url", "https://www.google.com")
}

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path, or navigator.yaml from the working directory or $HOME
// when path is empty. A missing default file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("server.port out of range: %d", c.Server.Port)
	}
	for key, v := range map[string]int{
		"prompt.max_html_tokens":       c.Prompt.MaxHTMLTokens,
		"prompt.max_utterance_tokens":  c.Prompt.MaxUtteranceTokens,
		"prompt.max_prev_turns_tokens": c.Prompt.MaxPrevTurnsTokens,
		"prompt.max_candidates_tokens": c.Prompt.MaxCandidatesTokens,
	} {
		if v < 0 {
			return errors.Errorf("%s must not be negative", key)
		}
	}
	if c.Prompt.NumUtterances < 1 {
		return errors.New("prompt.num_utterances must be at least 1")
	}
	return nil
}

// YAML renders the effective configuration. Secrets are left out.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "encode config")
	}
	return out, nil
}
