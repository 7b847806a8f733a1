// Package config builds the immutable runtime configuration from an optional
// YAML file, a .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultWhatsAppAPIBase   = "https://graph.facebook.com/v19.0"
	DefaultVerifyToken       = "change_me"
	DefaultOpenRouterModel   = "z-ai/glm-4.5-air:free"
	DefaultOpenRouterURL     = "https://openrouter.ai/api/v1/chat/completions"
	DefaultOpenRouterReferer = "https://example.com"
	DefaultOpenRouterTitle   = "LeadBridge"
	DefaultSystemPrompt      = "You are a friendly sales assistant. You collect contact details, answer to the point " +
		"and offer a consultation with a manager when it helps."
	DefaultAnalyticsPrompt = "You are a sales analyst. Write briefly, as a bulleted list."
	DefaultLogDir          = "conversation_logs"
	DefaultDBPath          = "data/conversations.db"
	DefaultHTTPAddr        = ":8000"
)

// Config is built once at startup and shared read-only.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Telegram  TelegramConfig   `yaml:"telegram"`
	WhatsApp  WhatsAppConfig   `yaml:"whatsapp"`
	AI        OpenRouterConfig `yaml:"openrouter"`
	Analytics AnalyticsConfig  `yaml:"analytics"`
	Storage   StorageConfig    `yaml:"storage"`
	Logging   LoggingConfig    `yaml:"logging"`

	// Warnings collects non-fatal problems found while loading.
	Warnings []string `yaml:"-"`
}

type ServerConfig struct {
	HTTPAddr          string `yaml:"http_addr"`
	OperatorAPISecret string `yaml:"operator_api_secret"`
}

type TelegramConfig struct {
	BotToken           string `yaml:"bot_token"`
	NotifyChatID       string `yaml:"notify_chat_id"`
	ApplicationsChatID string `yaml:"applications_chat_id"`
	LogChatID          string `yaml:"log_chat_id"`
	AnalyticsChatID    string `yaml:"analytics_chat_id"`
}

type WhatsAppConfig struct {
	Token         string `yaml:"token"`
	PhoneNumberID string `yaml:"phone_number_id"`
	APIBase       string `yaml:"api_base"`
	VerifyToken   string `yaml:"verify_token"`
}

type OpenRouterConfig struct {
	APIKey          string `yaml:"api_key"`
	Model           string `yaml:"model"`
	URL             string `yaml:"url"`
	SystemPrompt    string `yaml:"system_prompt"`
	AnalyticsPrompt string `yaml:"analytics_prompt"`
	Referrer        string `yaml:"referrer"`
	Title           string `yaml:"title"`
	AutoReply       *bool  `yaml:"auto_reply"`
}

type AnalyticsConfig struct {
	Enabled  *bool  `yaml:"enabled"`
	Hour     int    `yaml:"hour"`
	Minute   int    `yaml:"minute"`
	TimeZone string `yaml:"time_zone"`

	Location *time.Location `yaml:"-"`
}

type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	LogDir       string `yaml:"log_dir"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MissingError lists required options that were not provided.
type MissingError struct {
	Names []string
}

func (e *MissingError) Error() string {
	return "missing required environment variables: " + strings.Join(e.Names, ", ")
}

// AutoReplyEnabled reports whether AI replies may be requested.
func (c *Config) AutoReplyEnabled() bool {
	return c.AI.AutoReply == nil || *c.AI.AutoReply
}

// CompletionEnabled reports whether any completion may be requested. The
// auto-reply flag switches off customer replies and analytics summaries alike.
func (c *Config) CompletionEnabled() bool {
	return c.AutoReplyEnabled() && c.AI.APIKey != ""
}

// AnalyticsEnabled reports whether the daily analytics job is switched on.
func (c *Config) AnalyticsEnabled() bool {
	return c.Analytics.Enabled == nil || *c.Analytics.Enabled
}

// AnalyticsTarget picks the analytics destination, falling back to the log
// chat and then to the applications chat.
func (c *Config) AnalyticsTarget() string {
	for _, id := range []string{c.Telegram.AnalyticsChatID, c.Telegram.LogChatID, c.Telegram.ApplicationsChatID} {
		if id != "" {
			return id
		}
	}
	return ""
}

// Load reads .env (if present), the YAML file named by LEADBRIDGE_CONFIG (if
// set) and the environment, in increasing order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Config{Analytics: AnalyticsConfig{Hour: 23, Minute: 30}}
	if path := os.Getenv("LEADBRIDGE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value (empty if unset).
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&cfg.Telegram.NotifyChatID, "TELEGRAM_CHAT_ID")
	setString(&cfg.Telegram.NotifyChatID, "TELEGRAM_NOTIFY_CHAT_ID")
	setString(&cfg.Telegram.ApplicationsChatID, "TELEGRAM_APPLICATIONS_CHAT_ID")
	setString(&cfg.Telegram.LogChatID, "TELEGRAM_LOG_CHAT_ID")
	setString(&cfg.Telegram.AnalyticsChatID, "TELEGRAM_ANALYTICS_CHAT_ID")

	setString(&cfg.WhatsApp.Token, "WA_TOKEN")
	setString(&cfg.WhatsApp.PhoneNumberID, "WA_PHONE_NUMBER_ID")
	setString(&cfg.WhatsApp.APIBase, "WA_API_BASE")
	setString(&cfg.WhatsApp.VerifyToken, "WA_VERIFY_TOKEN")

	setString(&cfg.AI.APIKey, "OPENROUTER_API_KEY")
	setString(&cfg.AI.Model, "OPENROUTER_MODEL")
	setString(&cfg.AI.URL, "OPENROUTER_URL")
	setString(&cfg.AI.SystemPrompt, "OPENROUTER_SYSTEM_PROMPT")
	setString(&cfg.AI.AnalyticsPrompt, "OPENROUTER_ANALYTICS_PROMPT")
	setString(&cfg.AI.Referrer, "OPENROUTER_REFERRER")
	setString(&cfg.AI.Title, "OPENROUTER_TITLE")
	setFlag(&cfg.AI.AutoReply, "ENABLE_AI_AUTOREPLY")

	setFlag(&cfg.Analytics.Enabled, "ENABLE_DAILY_ANALYTICS")
	setString(&cfg.Analytics.TimeZone, "DAILY_ANALYTICS_TZ")
	if err := setInt(&cfg.Analytics.Hour, "DAILY_ANALYTICS_HOUR"); err != nil {
		return err
	}
	if err := setInt(&cfg.Analytics.Minute, "DAILY_ANALYTICS_MINUTE"); err != nil {
		return err
	}

	setString(&cfg.Storage.DatabasePath, "CONVERSATIONS_DB_PATH")
	setString(&cfg.Storage.LogDir, "CONVERSATION_LOG_DIR")

	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.HTTPAddr = ":" + port
	}
	setString(&cfg.Server.OperatorAPISecret, "OPERATOR_API_SECRET")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
	return nil
}

func applyDefaults(cfg *Config) {
	defaultString(&cfg.Telegram.ApplicationsChatID, cfg.Telegram.NotifyChatID)
	defaultString(&cfg.WhatsApp.APIBase, DefaultWhatsAppAPIBase)
	defaultString(&cfg.WhatsApp.VerifyToken, DefaultVerifyToken)
	defaultString(&cfg.AI.Model, DefaultOpenRouterModel)
	defaultString(&cfg.AI.URL, DefaultOpenRouterURL)
	defaultString(&cfg.AI.SystemPrompt, DefaultSystemPrompt)
	defaultString(&cfg.AI.AnalyticsPrompt, DefaultAnalyticsPrompt)
	defaultString(&cfg.AI.Referrer, DefaultOpenRouterReferer)
	defaultString(&cfg.AI.Title, DefaultOpenRouterTitle)
	defaultString(&cfg.Storage.DatabasePath, DefaultDBPath)
	defaultString(&cfg.Storage.LogDir, DefaultLogDir)
	defaultString(&cfg.Server.HTTPAddr, DefaultHTTPAddr)
	defaultString(&cfg.Logging.Level, "info")
	defaultString(&cfg.Logging.Format, "text")

	defaultString(&cfg.Analytics.TimeZone, "UTC")
	loc, err := time.LoadLocation(cfg.Analytics.TimeZone)
	if err != nil {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("unknown time zone %q, falling back to UTC", cfg.Analytics.TimeZone))
		loc = time.UTC
	}
	cfg.Analytics.Location = loc
}

// Validate reports every missing required option at once.
func (c *Config) Validate() error {
	var missing []string
	if c.Telegram.BotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if c.AutoReplyEnabled() {
		if c.WhatsApp.Token == "" {
			missing = append(missing, "WA_TOKEN")
		}
		if c.WhatsApp.PhoneNumberID == "" {
			missing = append(missing, "WA_PHONE_NUMBER_ID")
		}
		if c.AI.APIKey == "" {
			missing = append(missing, "OPENROUTER_API_KEY")
		}
	}
	if len(missing) > 0 {
		return &MissingError{Names: missing}
	}

	if c.Analytics.Hour < 0 || c.Analytics.Hour > 23 {
		return fmt.Errorf("DAILY_ANALYTICS_HOUR must be between 0 and 23, got %d", c.Analytics.Hour)
	}
	if c.Analytics.Minute < 0 || c.Analytics.Minute > 59 {
		return fmt.Errorf("DAILY_ANALYTICS_MINUTE must be between 0 and 59, got %d", c.Analytics.Minute)
	}
	return nil
}

func setString(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func setFlag(dst **bool, name string) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return
	}
	enabled := parseFlag(v)
	*dst = &enabled
}

func setInt(dst *int, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("parsing %s %q: %w", name, v, err)
	}
	*dst = n
	return nil
}

func defaultString(dst *string, fallback string) {
	if *dst == "" {
		*dst = fallback
	}
}

// parseFlag treats 0/false/no (any case) as off and everything else as on.
func parseFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "0", "false", "no":
		return false
	}
	return true
}
