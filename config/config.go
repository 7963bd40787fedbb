package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"reachly/models"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB        *gorm.DB
	AppConfig Config
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type SMTPConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
}

type Config struct {
	Environment    string `json:"environment"`
	ServerPort     string `json:"server_port"`
	JWTSecret      string `json:"-"`
	SentryDSN      string `json:"-"`
	AllowedOrigins string `json:"allowed_origins"`

	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	Redis RedisConfig `json:"redis"`
	SMTP  SMTPConfig  `json:"smtp"`

	OpenAIAPIKey string `json:"-"`
	OpenAIModel  string `json:"openai_model"`

	// Engine tuning
	ReviewWindowHours    int `json:"review_window_hours"`
	SchedulerIntervalSec int `json:"scheduler_interval_sec"`
	ExpirySweepSec       int `json:"expiry_sweep_sec"`
	EnrollChunkSize      int `json:"enroll_chunk_size"`
	EnrollRateLimit      int `json:"enroll_rate_limit"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		ServerPort:     getEnv("SERVER_PORT", "5000"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		SentryDSN:      getEnv("SENTRY_DSN", ""),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "reachly"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "false") == "true",
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", "localhost"),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("FROM_EMAIL", "outreach@example.com"),
			FromName:  getEnv("FROM_NAME", "Reachly"),
		},

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		ReviewWindowHours:    getEnvAsInt("REVIEW_WINDOW_HOURS", 24),
		SchedulerIntervalSec: getEnvAsInt("SCHEDULER_INTERVAL_SEC", 60),
		ExpirySweepSec:       getEnvAsInt("EXPIRY_SWEEP_SEC", 120),
		EnrollChunkSize:      getEnvAsInt("ENROLL_CHUNK_SIZE", 500),
		EnrollRateLimit:      getEnvAsInt("ENROLL_RATE_LIMIT", 10),
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if AppConfig.Environment == "production" && AppConfig.SMTP.Username == "" {
		return fmt.Errorf("SMTP credentials are required in production")
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("✅ Successfully connected to the database")
	log.Println("🔄 Starting database migration...")
	if err := MigrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Review window: %dh, scheduler tick: %ds, expiry sweep: %ds",
		AppConfig.ReviewWindowHours,
		AppConfig.SchedulerIntervalSec,
		AppConfig.ExpirySweepSec)
}

// MigrateDB runs schema migration plus the raw-SQL constraints AutoMigrate
// cannot express. The two partial unique indexes back the engine's
// "one live enrollment per contact and sequence" and "one pending draft per
// enrollment step" invariants.
func MigrateDB(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Contact{},
		&models.ContactTag{},
		&models.Segment{},
		&models.SegmentMember{},
		&models.EmailTemplate{},
		&models.EmailSequence{},
		&models.SequenceStep{},
		&models.ProspectEnrollment{},
		&models.AIEmailDraft{},
	); err != nil {
		return err
	}

	if db.Dialector.Name() == "postgres" {
		if err := db.Exec(`
            CREATE UNIQUE INDEX IF NOT EXISTS uniq_live_enrollment
            ON prospect_enrollments (contact_id, sequence_id)
            WHERE status IN ('active', 'paused') AND deleted_at IS NULL;
        `).Error; err != nil {
			return fmt.Errorf("failed to create enrollment uniqueness index: %w", err)
		}

		if err := db.Exec(`
            CREATE UNIQUE INDEX IF NOT EXISTS uniq_pending_draft
            ON ai_email_drafts (enrollment_id, step_number)
            WHERE status = 'pending_review' AND deleted_at IS NULL;
        `).Error; err != nil {
			return fmt.Errorf("failed to create pending draft uniqueness index: %w", err)
		}
	}

	return nil
}
