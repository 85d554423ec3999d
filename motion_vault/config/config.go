package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// Config is the server configuration. Values come from an optional yaml file
// with environment variables taking precedence, so deployments can ship a
// base file and override per host.
type Config struct {
	Port      int    `yaml:"port" env:"VAULT_PORT"`
	PublicURL string `yaml:"public_url" env:"VAULT_PUBLIC_URL"`

	DbPath string `yaml:"db_path" env:"VAULT_DB_PATH"`
	DbURL  string `yaml:"db_url" env:"VAULT_DB_URL"`

	DataDir      string `yaml:"data_dir" env:"VAULT_DATA_DIR"`
	ServerSecret string `yaml:"server_secret" env:"VAULT_SERVER_SECRET"`

	EnableEditing  bool `yaml:"enable_editing" env:"VAULT_ENABLE_EDITING"`
	EnableDownload bool `yaml:"enable_download" env:"VAULT_ENABLE_DOWNLOAD"`

	KubeConfig       string `yaml:"kube_config" env:"VAULT_KUBE_CONFIG"`
	ClusterURL       string `yaml:"cluster_url" env:"VAULT_CLUSTER_URL"`
	ClusterNamespace string `yaml:"cluster_namespace" env:"VAULT_CLUSTER_NAMESPACE"`
	ClusterImage     string `yaml:"cluster_image" env:"VAULT_CLUSTER_IMAGE"`

	AdminUsername string `yaml:"admin_username" env:"VAULT_ADMIN_USERNAME"`
	AdminEmail    string `yaml:"admin_email" env:"VAULT_ADMIN_EMAIL"`
	AdminPassword string `yaml:"admin_password" env:"VAULT_ADMIN_PASSWORD"`
}

func defaults() Config {
	return Config{
		Port:             8000,
		DbPath:           "motion_vault.db",
		DataDir:          "data",
		EnableEditing:    true,
		EnableDownload:   true,
		ClusterNamespace: "default",
	}
}

// Load reads the yaml file when path is non-empty, then applies environment
// overrides.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("error reading config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("error parsing config file %q: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config from environment: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.ServerSecret == "" {
		return fmt.Errorf("server_secret must be configured")
	}
	if c.DbPath == "" && c.DbURL == "" {
		return fmt.Errorf("one of db_path or db_url must be configured")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be configured")
	}
	return nil
}
