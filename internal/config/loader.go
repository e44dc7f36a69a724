package config

import (
	"fmt"
	"time"

	"github.com/rtoassure/backend/internal/db"
	"github.com/spf13/viper"
)

// ProviderConfig holds the external service settings (file-search indexing
// provider, Azure OpenAI, workflow engine).
type ProviderConfig struct {
	FileSearchBaseURL string
	FileSearchAPIKey  string
	FileSearchStore   string
	AzureOpenAIBase   string
	AzureOpenAIKey    string
	AzureDeployment   string
	WorkflowWebhook   string
}

// CreditConfig holds the per-request credit costs.
type CreditConfig struct {
	UploadCost     int
	ValidationCost int
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port           int
	AllowedOrigins []string
	MaxIndexWait   time.Duration
	ReportDir      string
	StorageBucket  string
	UploadDir      string
	RedisAddr      string
}

// Config bundles everything cmd/server needs to wire the application.
type Config struct {
	DB       db.Config
	Server   ServerConfig
	Provider ProviderConfig
	Credits  CreditConfig
}

// Load reads config.yaml from configPath, with environment overrides.
func Load(configPath string) (Config, error) {
	cfg := Config{
		DB: db.DefaultConfig(),
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:3000"},
			MaxIndexWait:   5 * time.Minute,
		},
		Credits: CreditConfig{
			UploadCost:     1,
			ValidationCost: 1,
		},
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv() // allow environment overrides
	v.SetEnvPrefix("RTOASSURE")

	// Optional: Map nested keys to flat env vars
	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.port")
	v.BindEnv("server.redis_addr")
	v.BindEnv("provider.filesearch_api_key")
	v.BindEnv("provider.azure_openai_key")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	// Override defaults if values exist
	if v.IsSet("database.host") {
		cfg.DB.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.DB.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.DB.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.DB.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.DB.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.DB.SSLMode = v.GetString("database.sslmode")
	}

	if v.IsSet("server.port") {
		cfg.Server.Port = v.GetInt("server.port")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("server.max_index_wait") {
		cfg.Server.MaxIndexWait = v.GetDuration("server.max_index_wait")
	}
	if v.IsSet("server.report_dir") {
		cfg.Server.ReportDir = v.GetString("server.report_dir")
	}
	if v.IsSet("server.storage_bucket") {
		cfg.Server.StorageBucket = v.GetString("server.storage_bucket")
	}
	if v.IsSet("server.upload_dir") {
		cfg.Server.UploadDir = v.GetString("server.upload_dir")
	}
	if v.IsSet("server.redis_addr") {
		cfg.Server.RedisAddr = v.GetString("server.redis_addr")
	}

	cfg.Provider.FileSearchBaseURL = v.GetString("provider.filesearch_base_url")
	cfg.Provider.FileSearchAPIKey = v.GetString("provider.filesearch_api_key")
	cfg.Provider.FileSearchStore = v.GetString("provider.filesearch_store")
	cfg.Provider.AzureOpenAIBase = v.GetString("provider.azure_openai_base")
	cfg.Provider.AzureOpenAIKey = v.GetString("provider.azure_openai_key")
	cfg.Provider.AzureDeployment = v.GetString("provider.azure_deployment")
	cfg.Provider.WorkflowWebhook = v.GetString("provider.workflow_webhook")

	if v.IsSet("credits.upload_cost") {
		cfg.Credits.UploadCost = v.GetInt("credits.upload_cost")
	}
	if v.IsSet("credits.validation_cost") {
		cfg.Credits.ValidationCost = v.GetInt("credits.validation_cost")
	}

	return cfg, nil
}
