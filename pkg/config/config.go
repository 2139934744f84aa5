package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	RateLimitBackendFile  = "file"
	RateLimitBackendRedis = "redis"
)

const mebibyte = 1024 * 1024

// Config is built once at process start and handed to every component.
type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Log       LogConfig
	RateLimit RateLimitConfig
	Upload    UploadConfig
	Mail      MailConfig
	Webhook   WebhookConfig
	Backup    BackupConfig
	Spam      SpamConfig
	Form      FormConfig
	Jobs      JobsConfig
	Retention RetentionConfig
}

type DatabaseConfig struct {
	Enabled      bool
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

// RateLimitConfig drives the sliding-window admission check.
type RateLimitConfig struct {
	Enabled     bool
	Window      time.Duration
	MaxRequests int
	Whitelist   []string
	Backend     string
	StateDir    string
}

// UploadConfig bounds attachment handling.
type UploadConfig struct {
	Dir               string
	TempDir           string
	MaxFileSize       int64
	MaxFiles          int
	MaxRequestSize    int64
	AllowedTypes      []string
	AllowedExtensions []string
	NamePrefix        string
}

// MailConfig carries SMTP credentials and addressing.
type MailConfig struct {
	To       string
	From     string
	FromName string
	Admin    string
	SMTPHost string
	SMTPPort int
	Username string
	Password string
}

// WebhookConfig configures the CRM/notification webhook. An empty URL disables it.
type WebhookConfig struct {
	URL     string
	Secret  string
	Timeout time.Duration
}

// BackupConfig toggles JSON copies of sent quote emails.
type BackupConfig struct {
	Enabled bool
	Dir     string
}

// SpamConfig lists the anti-spam rules applied to submissions.
type SpamConfig struct {
	BlockedIPs       []string
	BlockedEmails    []string
	SpamWords        []string
	TempEmailDomains []string
}

// FormConfig holds the redirect targets used for browser submissions.
type FormConfig struct {
	HomeURL    string
	ErrorURL   string
	SuccessURL string
}

type JobsConfig struct {
	Workers      int
	MaxRetries   int
	RetryDelay   time.Duration
	DrainTimeout time.Duration
}

// DirectoryRetention is the per-directory retention budget.
type DirectoryRetention struct {
	Name         string
	Dir          string
	Pattern      string
	Days         int
	MaxSizeBytes int64
	Enabled      bool
	RotateLogs   bool
}

// RetentionConfig configures the cleanup batch job.
type RetentionConfig struct {
	Root                       string
	Directories                []DirectoryRetention
	MinFreeBytes               int64
	MaxFilesPerRun             int
	LogMaxLines                int
	NotificationThresholdBytes int64
	NotifyEnabled              bool
	Cron                       string
	MetricsFile                string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Enabled:      v.GetBool("ENABLE_SUBMISSION_LOG"),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
		File:   v.GetString("LOG_FILE"),
	}

	// No viper default for the limit: IsSet would always report true.
	maxRequests := 3
	if cfg.Env == EnvDevelopment {
		maxRequests = 10
	}
	if v.IsSet("RATE_LIMIT_MAX_REQUESTS") {
		maxRequests = v.GetInt("RATE_LIMIT_MAX_REQUESTS")
	}
	cfg.RateLimit = RateLimitConfig{
		Enabled:     v.GetBool("RATE_LIMIT_ENABLED"),
		Window:      time.Duration(v.GetInt("RATE_LIMIT_WINDOW_SECONDS")) * time.Second,
		MaxRequests: maxRequests,
		Whitelist:   splitAndTrim(v.GetString("RATE_LIMIT_WHITELIST")),
		Backend:     strings.ToLower(v.GetString("RATE_LIMIT_BACKEND")),
		StateDir:    v.GetString("RATE_LIMIT_STATE_DIR"),
	}

	cfg.Upload = UploadConfig{
		Dir:               v.GetString("UPLOAD_DIR"),
		TempDir:           v.GetString("UPLOAD_TEMP_DIR"),
		MaxFileSize:       v.GetInt64("UPLOAD_MAX_SIZE"),
		MaxFiles:          v.GetInt("UPLOAD_MAX_FILES"),
		MaxRequestSize:    v.GetInt64("UPLOAD_MAX_REQUEST_SIZE"),
		AllowedTypes:      splitAndTrim(v.GetString("UPLOAD_ALLOWED_TYPES")),
		AllowedExtensions: splitAndTrim(v.GetString("UPLOAD_ALLOWED_EXTENSIONS")),
		NamePrefix:        v.GetString("UPLOAD_NAME_PREFIX"),
	}

	cfg.Mail = MailConfig{
		To:       v.GetString("EMAIL_TO"),
		From:     v.GetString("EMAIL_FROM"),
		FromName: v.GetString("EMAIL_FROM_NAME"),
		Admin:    v.GetString("EMAIL_ADMIN"),
		SMTPHost: v.GetString("SMTP_HOST"),
		SMTPPort: v.GetInt("SMTP_PORT"),
		Username: v.GetString("SMTP_USERNAME"),
		Password: v.GetString("SMTP_PASSWORD"),
	}

	cfg.Webhook = WebhookConfig{
		URL:     v.GetString("WEBHOOK_URL"),
		Secret:  v.GetString("WEBHOOK_SECRET"),
		Timeout: parseDuration(v.GetString("WEBHOOK_TIMEOUT"), 5*time.Second),
	}

	cfg.Backup = BackupConfig{
		Enabled: v.GetBool("BACKUP_EMAILS"),
		Dir:     v.GetString("BACKUP_DIR"),
	}

	cfg.Spam = SpamConfig{
		BlockedIPs:       splitAndTrim(v.GetString("BLOCKED_IPS")),
		BlockedEmails:    splitAndTrim(v.GetString("BLOCKED_EMAILS")),
		SpamWords:        splitAndTrim(v.GetString("SPAM_WORDS")),
		TempEmailDomains: splitAndTrim(v.GetString("TEMP_EMAIL_DOMAINS")),
	}

	cfg.Form = FormConfig{
		HomeURL:    v.GetString("FORM_HOME_URL"),
		ErrorURL:   v.GetString("FORM_ERROR_URL"),
		SuccessURL: v.GetString("FORM_SUCCESS_URL"),
	}

	cfg.Jobs = JobsConfig{
		Workers:      v.GetInt("JOB_WORKERS"),
		MaxRetries:   v.GetInt("JOB_RETRIES"),
		RetryDelay:   parseDuration(v.GetString("JOB_RETRY_DELAY"), 2*time.Second),
		DrainTimeout: parseDuration(v.GetString("JOB_DRAIN_TIMEOUT"), 10*time.Second),
	}

	cfg.Retention = RetentionConfig{
		Root:                       v.GetString("RETENTION_ROOT"),
		MinFreeBytes:               v.GetInt64("MIN_FREE_SPACE_MB") * mebibyte,
		MaxFilesPerRun:             v.GetInt("MAX_FILES_PER_RUN"),
		LogMaxLines:                v.GetInt("LOG_MAX_LINES"),
		NotificationThresholdBytes: v.GetInt64("NOTIFICATION_THRESHOLD_MB") * mebibyte,
		NotifyEnabled:              v.GetBool("RETENTION_NOTIFY"),
		Cron:                       v.GetString("RETENTION_CRON"),
		MetricsFile:                v.GetString("RETENTION_METRICS_FILE"),
		Directories: []DirectoryRetention{
			directoryRetention(v, "uploads", cfg.Upload.Dir, "*", false),
			directoryRetention(v, "logs", v.GetString("LOGS_DIR"), "*", true),
			directoryRetention(v, "backups", v.GetString("BACKUPS_DIR"), "*", false),
			directoryRetention(v, "temp", cfg.Upload.TempDir, "*", false),
			directoryRetention(v, "cache", v.GetString("CACHE_DIR"), "*", false),
		},
	}

	return cfg
}

func directoryRetention(v *viper.Viper, name, dir, pattern string, rotate bool) DirectoryRetention {
	key := strings.ToUpper(name)
	return DirectoryRetention{
		Name:         name,
		Dir:          dir,
		Pattern:      pattern,
		Days:         v.GetInt("RETENTION_" + key + "_DAYS"),
		MaxSizeBytes: v.GetInt64("RETENTION_"+key+"_MAX_MB") * mebibyte,
		Enabled:      v.GetBool("RETENTION_" + key + "_ENABLED"),
		RotateLogs:   rotate,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvProduction)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("ENABLE_SUBMISSION_LOG", false)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "rc_quotes")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 5)
	v.SetDefault("DB_MAX_IDLE_CONNS", 2)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_FILE", "logs/rc-email.log")

	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 3600)
	v.SetDefault("RATE_LIMIT_WHITELIST", "127.0.0.1,::1")
	v.SetDefault("RATE_LIMIT_BACKEND", RateLimitBackendFile)
	v.SetDefault("RATE_LIMIT_STATE_DIR", filepath.Join(os.TempDir(), "rc_rate"))

	v.SetDefault("UPLOAD_DIR", "uploads")
	v.SetDefault("UPLOAD_TEMP_DIR", "temp")
	v.SetDefault("UPLOAD_MAX_SIZE", 10*mebibyte)
	v.SetDefault("UPLOAD_MAX_FILES", 5)
	v.SetDefault("UPLOAD_MAX_REQUEST_SIZE", 100*mebibyte)
	v.SetDefault("UPLOAD_ALLOWED_TYPES", "image/jpeg,image/jpg,image/png,image/gif,image/webp,video/mp4,video/avi,video/mov,video/wmv,video/quicktime,application/pdf")
	v.SetDefault("UPLOAD_ALLOWED_EXTENSIONS", "jpg,jpeg,png,gif,webp,mp4,avi,mov,wmv,pdf")
	v.SetDefault("UPLOAD_NAME_PREFIX", "rc_")

	v.SetDefault("EMAIL_TO", "")
	v.SetDefault("EMAIL_FROM", "")
	v.SetDefault("EMAIL_FROM_NAME", "RC Construções - Sistema de Orçamentos")
	v.SetDefault("EMAIL_ADMIN", "")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")

	v.SetDefault("WEBHOOK_URL", "")
	v.SetDefault("WEBHOOK_SECRET", "")
	v.SetDefault("WEBHOOK_TIMEOUT", "5s")

	v.SetDefault("BACKUP_EMAILS", true)
	v.SetDefault("BACKUP_DIR", "backups/emails")

	v.SetDefault("BLOCKED_IPS", "")
	v.SetDefault("BLOCKED_EMAILS", "")
	v.SetDefault("SPAM_WORDS", "viagra,casino,lottery,winner,congratulations,urgent,click here,make money,guaranteed,free money,act now,limited time,nigerian prince")
	v.SetDefault("TEMP_EMAIL_DOMAINS", "10minutemail.com,tempmail.org,guerrillamail.com,mailinator.com,throwaway.email")

	v.SetDefault("FORM_HOME_URL", "index.html")
	v.SetDefault("FORM_ERROR_URL", "orcamento.html")
	v.SetDefault("FORM_SUCCESS_URL", "obrigado.html")

	v.SetDefault("JOB_WORKERS", 1)
	v.SetDefault("JOB_RETRIES", 3)
	v.SetDefault("JOB_RETRY_DELAY", "2s")
	v.SetDefault("JOB_DRAIN_TIMEOUT", "10s")

	v.SetDefault("RETENTION_ROOT", ".")
	v.SetDefault("LOGS_DIR", "logs")
	v.SetDefault("BACKUPS_DIR", "backups")
	v.SetDefault("CACHE_DIR", "cache")
	v.SetDefault("MIN_FREE_SPACE_MB", 100)
	v.SetDefault("MAX_FILES_PER_RUN", 1000)
	v.SetDefault("LOG_MAX_LINES", 5000)
	v.SetDefault("NOTIFICATION_THRESHOLD_MB", 50)
	v.SetDefault("RETENTION_NOTIFY", true)
	v.SetDefault("RETENTION_CRON", "")
	v.SetDefault("RETENTION_METRICS_FILE", "")

	retentionDefaults := []struct {
		name  string
		days  int
		maxMB int
	}{
		{"UPLOADS", 7, 500},
		{"LOGS", 30, 100},
		{"BACKUPS", 90, 1000},
		{"TEMP", 1, 0},
		{"CACHE", 7, 200},
	}
	for _, d := range retentionDefaults {
		v.SetDefault("RETENTION_"+d.name+"_DAYS", d.days)
		v.SetDefault("RETENTION_"+d.name+"_MAX_MB", d.maxMB)
		v.SetDefault("RETENTION_"+d.name+"_ENABLED", true)
	}
}

// ValidateRetention reports settings the cleanup job cannot run without.
func (c *Config) ValidateRetention() error {
	if c == nil {
		return fmt.Errorf("configuration missing")
	}
	r := c.Retention
	var problems []string
	if r.MaxFilesPerRun <= 0 {
		problems = append(problems, "MAX_FILES_PER_RUN must be positive")
	}
	if r.LogMaxLines <= 0 {
		problems = append(problems, "LOG_MAX_LINES must be positive")
	}
	if r.MinFreeBytes < 0 {
		problems = append(problems, "MIN_FREE_SPACE_MB must not be negative")
	}
	for _, d := range r.Directories {
		if !d.Enabled {
			continue
		}
		if strings.TrimSpace(d.Dir) == "" {
			problems = append(problems, fmt.Sprintf("%s directory path is empty", d.Name))
		}
		if d.Days < 0 {
			problems = append(problems, fmt.Sprintf("RETENTION_%s_DAYS must not be negative", strings.ToUpper(d.Name)))
		}
		if d.MaxSizeBytes < 0 {
			problems = append(problems, fmt.Sprintf("RETENTION_%s_MAX_MB must not be negative", strings.ToUpper(d.Name)))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid retention configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
