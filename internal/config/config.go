package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults mirror the production Ark deployment.
const (
	DefaultAPIURL = "https://ark.cn-beijing.volces.com/api/v3"
	DefaultModel  = "doubao-seed-1-8-251228"
	DefaultPrompt = "请分析这个表情包并返回JSON，包含字段：所代表情绪、使用场景、设计灵感。" +
		"只输出JSON，不要附加解释或Markdown。"
	DefaultHost = "127.0.0.1"
	DefaultPort = 8000

	DefaultRequestTimeout  = 60 * time.Second
	DefaultDownloadTimeout = 15 * time.Second
)

type Config struct {
	API struct {
		Key    string `yaml:"key"`
		URL    string `yaml:"url"`
		Model  string `yaml:"model"`
		Prompt string `yaml:"prompt"`
	} `yaml:"api"`

	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`
}

// Load reads an optional yaml file, then applies environment overrides.
// A missing file is fine; the environment alone can configure everything.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ARK_API_KEY"); v != "" {
		c.API.Key = v
	}
	if v := os.Getenv("ARK_API_URL"); v != "" {
		c.API.URL = v
	}
	if v := os.Getenv("ARK_MODEL"); v != "" {
		c.API.Model = v
	}
	if v := os.Getenv("ARK_PROMPT"); v != "" {
		c.API.Prompt = v
	}
	if v := os.Getenv("ANALYSIS_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("ANALYSIS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

func (c *Config) applyDefaults() {
	if c.API.URL == "" {
		c.API.URL = DefaultAPIURL
	}
	if c.API.Model == "" {
		c.API.Model = DefaultModel
	}
	if c.API.Prompt == "" {
		c.API.Prompt = DefaultPrompt
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
}

// RequireAPIKey fails fast before any network work is attempted.
func (c *Config) RequireAPIKey() error {
	if c.API.Key == "" {
		return fmt.Errorf("ARK_API_KEY is required; set it with: export ARK_API_KEY=your-api-key")
	}
	return nil
}

// ListenAddr builds the server bind address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
