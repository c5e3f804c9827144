package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Anchor modes for the evidence cooldown window.
const (
	AnchorModeFirst  = "first"  // anchor stays at the very first submission of a track
	AnchorModeLatest = "latest" // anchor moves to the most recent submission of a track
)

type (
	ServerConfig struct {
		Host                      string
		Port                      int
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	SMTPConfig struct {
		Host     string
		Port     int
		User     string
		Password string
	}

	UploadsConfig struct {
		Dir          string
		MaxSize      int64
		SniffContent bool
	}

	EvidenceConfig struct {
		CooldownDays   int
		MaxSubmissions int
		AnchorMode     string
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	Config struct {
		Env                       string
		Debug                     bool
		TestMode                  bool
		AppName                   string
		Build                     string
		SecretKey                 string
		FrontendBaseURL           string
		Timezone                  string
		PasswordResetTimeoutDelta time.Duration
		RollbarToken              string
		SendgridAPIKey            string
		AMQPURL                   string
		NotificationQueueSize     int
		Storage                   string // postgres | inmem

		Server   ServerConfig
		Database DatabaseConfig
		SMTP     SMTPConfig
		Uploads  UploadsConfig
		Evidence EvidenceConfig
		Redis    RedisConfig

		defaultFromEmail string
		location         *time.Location
	}
)

// NewConfig loads the configuration of the current environment (ENV: DEV (default), TEST, QA, PROD).
// Environment variables are prefixed by the environment name, eg. PROD_DATABASE_HOST.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", env == "DEV")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("appName", "Bitácora")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "k2m8-zq)xw$+93=hy&oap4(r!v)#*t7(#bn4^$jdlx0qe")
	v.SetDefault("frontendBaseURL", "http://localhost:8080")
	v.SetDefault("defaultFromEmail", "Bitácora <noreply@localhost>")
	v.SetDefault("timezone", "America/Bogota")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("amqp.url", "")
	v.SetDefault("notifications.queueSize", 256)
	v.SetDefault("storage", "postgres")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.debugHost", "localhost:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "bitacora")
	v.SetDefault("database.user", "bitacora")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", env == "DEV" || env == "TEST")

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.user", "")
	v.SetDefault("smtp.password", "")

	v.SetDefault("uploads.dir", "uploads")
	v.SetDefault("uploads.maxSize", int64(10<<20))
	v.SetDefault("uploads.sniffContent", true)

	v.SetDefault("evidence.cooldownDays", 90)
	v.SetDefault("evidence.maxSubmissions", 17)
	v.SetDefault("evidence.anchorMode", AnchorModeFirst)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	conf := &Config{
		Env:                       env,
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		AppName:                   v.GetString("appName"),
		Build:                     v.GetString("build"),
		SecretKey:                 v.GetString("secretKey"),
		FrontendBaseURL:           v.GetString("frontendBaseURL"),
		Timezone:                  v.GetString("timezone"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		RollbarToken:              v.GetString("rollbarToken"),
		SendgridAPIKey:            v.GetString("sendgridApiKey"),
		AMQPURL:                   v.GetString("amqp.url"),
		NotificationQueueSize:     v.GetInt("notifications.queueSize"),
		Storage:                   v.GetString("storage"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Port:                      v.GetInt("server.port"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("smtp.host"),
			Port:     v.GetInt("smtp.port"),
			User:     v.GetString("smtp.user"),
			Password: v.GetString("smtp.password"),
		},
		Uploads: UploadsConfig{
			Dir:          v.GetString("uploads.dir"),
			MaxSize:      v.GetInt64("uploads.maxSize"),
			SniffContent: v.GetBool("uploads.sniffContent"),
		},
		Evidence: EvidenceConfig{
			CooldownDays:   v.GetInt("evidence.cooldownDays"),
			MaxSubmissions: v.GetInt("evidence.maxSubmissions"),
			AnchorMode:     v.GetString("evidence.anchorMode"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		defaultFromEmail: v.GetString("defaultFromEmail"),
	}
	conf.location = loadLocation(conf.Timezone)
	return conf
}

// NewTestConfig returns the configuration used by tests: no external services, in-memory storage.
func NewTestConfig() *Config {
	return &Config{
		Env:                       "TEST",
		TestMode:                  true,
		AppName:                   "Bitácora",
		Build:                     "test",
		SecretKey:                 "secret",
		FrontendBaseURL:           "http://localhost:8080",
		Timezone:                  "UTC",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		NotificationQueueSize:     16,
		Storage:                   "inmem",
		Server: ServerConfig{
			Host:                      "localhost",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Uploads:          UploadsConfig{MaxSize: 10 << 20, SniffContent: true},
		Evidence:         EvidenceConfig{CooldownDays: 90, MaxSubmissions: 17, AnchorMode: AnchorModeFirst},
		defaultFromEmail: "Bitácora <noreply@localhost>",
		location:         time.UTC,
	}
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

// Location returns the timezone used to turn instants into calendar days.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Printf("config: unknown timezone %q, falling back to UTC", name)
		return time.UTC
	}
	return loc
}

func (c *Config) ServerAddress() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
