package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ganttmailer/internal/pipeline"
	"github.com/ganttmailer/internal/teamgantt"
)

const (
	ModeRun      = "run"
	ModeServe    = "serve"
	ModeSchedule = "schedule"

	SourceFile   = "file"
	SourceSheets = "sheets"

	BackendCSV      = "csv"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	// Run
	Mode        string // run, serve, schedule
	Date        string
	Simulate    bool
	RequireDate bool
	Schedule    string
	Env         string // development, production

	// Server
	Port             string
	TriggerTokenHash string

	// TeamGantt
	TeamGanttUser         string
	TeamGanttPassword     string
	TeamGanttClientID     string
	TeamGanttClientSecret string
	LoginURL              string
	LoginTimeout          time.Duration
	ExportURL             string
	ExportOptions         teamgantt.ExportOptions
	CollapseGroups        bool
	ReportsDir            string

	// Accounts
	AccountsSource           string // file, sheets
	AccountsFile             string
	GoogleServiceAccountFile string
	SpreadsheetID            string
	SpreadsheetRange         string

	// Sent log
	SentLogBackend string // csv, postgres, redis
	SentLogPath    string
	DatabaseURL    string
	RedisAddr      string
	RedisPassword  string
	RedisKey       string

	// SMTP
	EmailHost           string
	EmailPort           int
	EmailUser           string
	EmailPassword       string
	EmailFrom           string
	EmailFromName       string
	EmailAttachmentName string

	// Failure reports
	TeamsWebhookURL   string
	SendFailurePolicy pipeline.SendFailurePolicy
}

// Load reads .env, then the environment, then flags in args. Flags win over
// the environment.
func Load(args []string) (*Config, error) {
	// Load .env file if it exists (don't error if missing)
	_ = godotenv.Load()

	cfg := &Config{}
	var problems []error

	fs := flag.NewFlagSet("ganttmailer", flag.ContinueOnError)
	fs.StringVar(&cfg.Mode, "mode", getEnv("MODE", ModeRun), "Mode (run, serve, schedule)")
	fs.StringVar(&cfg.Date, "date", getEnv("DATE", ""), "Run date YYYY-MM-DD (default today, UTC)")
	fs.BoolVar(&cfg.Simulate, "simulate", getBool("SIMULATE", false, &problems), "Export PDFs but do not send or log emails")
	fs.BoolVar(&cfg.RequireDate, "require-date", getBool("REQUIRE_DATE", false, &problems), "Refuse to run without --date")
	fs.StringVar(&cfg.Port, "port", getEnv("PORT", "8080"), "Server port")
	fs.StringVar(&cfg.Env, "env", getEnv("ENV", "development"), "Environment (development, production)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", getEnv("DATABASE_URL", ""), "PostgreSQL connection string")

	cfg.Schedule = getEnv("SCHEDULE", "0 7 * * 1")
	cfg.TriggerTokenHash = getEnv("TRIGGER_TOKEN_HASH", "")

	cfg.TeamGanttUser = getEnv("TEAMGANTT_USER", "")
	cfg.TeamGanttPassword = getEnv("TEAMGANTT_PASSWORD", "")
	cfg.TeamGanttClientID = getEnv("TEAMGANTT_CLIENT_ID", "")
	cfg.TeamGanttClientSecret = getEnv("TEAMGANTT_CLIENT_SECRET", "")
	cfg.LoginURL = getEnv("TEAMGANTT_LOGIN_URL", "https://app.teamgantt.com")
	cfg.LoginTimeout = getDuration("LOGIN_TIMEOUT", 30*time.Second, &problems)
	cfg.ExportURL = getEnv("TEAMGANTT_EXPORT_URL", teamgantt.DefaultExportURL)
	cfg.CollapseGroups = getBool("COLLAPSE_GROUPS", true, &problems)
	cfg.ReportsDir = getEnv("REPORTS_DIR", "./reports")

	cfg.AccountsSource = getEnv("ACCOUNTS_SOURCE", SourceFile)
	cfg.AccountsFile = getEnv("ACCOUNTS_FILE", "./accounts.json")
	cfg.GoogleServiceAccountFile = getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	cfg.SpreadsheetID = getEnv("SPREADSHEET_ID", "")
	cfg.SpreadsheetRange = getEnv("SPREADSHEET_RANGE", "Sheet1")

	cfg.SentLogBackend = getEnv("SENT_LOG_BACKEND", BackendCSV)
	cfg.SentLogPath = getEnv("SENT_LOG_PATH", "./mailLog.csv")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisKey = getEnv("REDIS_KEY", "")

	cfg.EmailHost = getEnv("EMAIL_HOST", "smtp.office365.com")
	cfg.EmailPort = getInt("EMAIL_PORT", 587, &problems)
	cfg.EmailUser = getEnv("EMAIL_USER", "")
	cfg.EmailPassword = getEnv("EMAIL_PASSWORD", "")
	cfg.EmailFrom = getEnv("EMAIL_FROM", "")
	cfg.EmailFromName = getEnv("EMAIL_FROM_NAME", "")
	cfg.EmailAttachmentName = getEnv("EMAIL_ATTACHMENT_NAME", "Terminplan")

	cfg.TeamsWebhookURL = getEnv("TEAMS_WEBHOOK_URL", "")

	policy, err := pipeline.ParsePolicy(getEnv("SEND_FAILURE_POLICY", string(pipeline.PolicyAbort)))
	if err != nil {
		problems = append(problems, err)
	}
	cfg.SendFailurePolicy = policy

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	opts, err := LoadExportOptions(getEnv("EXPORT_OPTIONS_FILE", ""))
	if err != nil {
		problems = append(problems, err)
	}
	cfg.ExportOptions = opts

	if err := errors.Join(append(problems, cfg.Validate())...); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Mode {
	case ModeRun, ModeServe, ModeSchedule:
	default:
		add("mode must be one of run, serve, schedule, got %q", c.Mode)
	}

	if c.Date != "" {
		if _, err := time.Parse(pipeline.DateLayout, c.Date); err != nil {
			add("date must be YYYY-MM-DD, got %q", c.Date)
		}
	} else if c.RequireDate && c.Mode == ModeRun {
		add("--date is required when REQUIRE_DATE is set")
	}

	if c.TeamGanttUser == "" || c.TeamGanttPassword == "" {
		add("TEAMGANTT_USER and TEAMGANTT_PASSWORD are required")
	}
	if c.CollapseGroups && (c.TeamGanttClientID == "" || c.TeamGanttClientSecret == "") {
		add("TEAMGANTT_CLIENT_ID and TEAMGANTT_CLIENT_SECRET are required when COLLAPSE_GROUPS is enabled")
	}

	switch c.AccountsSource {
	case SourceFile:
		if c.AccountsFile == "" {
			add("ACCOUNTS_FILE is required for the file account source")
		}
	case SourceSheets:
		if c.SpreadsheetID == "" || c.GoogleServiceAccountFile == "" {
			add("SPREADSHEET_ID and GOOGLE_SERVICE_ACCOUNT_FILE are required for the sheets account source")
		}
	default:
		add("ACCOUNTS_SOURCE must be file or sheets, got %q", c.AccountsSource)
	}

	switch c.SentLogBackend {
	case BackendCSV:
		if c.SentLogPath == "" {
			add("SENT_LOG_PATH is required for the csv sent log")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			add("DATABASE_URL is required for the postgres sent log")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			add("REDIS_ADDR is required for the redis sent log")
		}
	default:
		add("SENT_LOG_BACKEND must be csv, postgres or redis, got %q", c.SentLogBackend)
	}

	if !c.Simulate && (c.EmailUser == "" || c.EmailPassword == "") {
		add("EMAIL_USER and EMAIL_PASSWORD are required unless simulating")
	}

	return errors.Join(errs...)
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// LoadExportOptions overlays the YAML file at path onto the default export
// options. An empty path returns the defaults.
func LoadExportOptions(path string) (teamgantt.ExportOptions, error) {
	opts := teamgantt.DefaultExportOptions()
	if path == "" {
		return opts, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("read export options: %w", err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("parse export options %s: %w", path, err)
	}
	return opts, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool, problems *[]error) bool {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		*problems = append(*problems, fmt.Errorf("%s must be a boolean, got %q", key, v))
		return fallback
	}
	return b
}

func getInt(key string, fallback int, problems *[]error) int {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		*problems = append(*problems, fmt.Errorf("%s must be an integer, got %q", key, v))
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration, problems *[]error) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		*problems = append(*problems, fmt.Errorf("%s must be a duration, got %q", key, v))
		return fallback
	}
	return d
}
