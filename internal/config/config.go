package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // fuso embutido para imagens sem zoneinfo

	"github.com/joho/godotenv"
)

const defaultDatabaseURL = "sqlite:celulas.db"

type Config struct {
	Env         string
	HTTPPort    string
	DatabaseURL string
	CORSOrigins string
	LogLevel    string

	JWTSecret  string
	JWTExpiry  time.Duration
	BcryptCost int

	// Datas de oração são calculadas neste fuso
	Timezone *time.Location

	AdminName     string
	AdminEmail    string
	AdminPassword string

	// Vazio desativa a lista de revogação de tokens
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Warnings []string
}

// Load lê o .env (se existir) e as variáveis de ambiente.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return fromEnv()
}

func fromEnv() (*Config, error) {
	cfg := &Config{
		Env:           getEnv("APP_ENV", "production"),
		HTTPPort:      getEnv("HTTP_PORT", "8080"),
		DatabaseURL:   getEnv("DATABASE_URL", defaultDatabaseURL),
		CORSOrigins:   getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		AdminName:     getEnv("ADMIN_NAME", "Administrador"),
		AdminEmail:    strings.ToLower(strings.TrimSpace(getEnv("ADMIN_EMAIL", ""))),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET não definido")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("JWT_SECRET deve ter pelo menos 32 caracteres")
	}

	expiry, err := time.ParseDuration(getEnv("JWT_EXPIRES_IN", "168h"))
	if err != nil || expiry <= 0 {
		return nil, fmt.Errorf("JWT_EXPIRES_IN inválido: %q", os.Getenv("JWT_EXPIRES_IN"))
	}
	cfg.JWTExpiry = expiry

	cost, err := strconv.Atoi(getEnv("BCRYPT_COST", "10"))
	if err != nil || cost < 10 || cost > 12 {
		return nil, fmt.Errorf("BCRYPT_COST deve estar entre 10 e 12")
	}
	cfg.BcryptCost = cost

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("REDIS_DB inválido: %w", err)
	}
	cfg.RedisDB = redisDB

	tzName := getEnv("APP_TIMEZONE", "America/Sao_Paulo")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("fuso %q indisponível, usando UTC", tzName))
		loc = time.UTC
	}
	cfg.Timezone = loc

	if cfg.DatabaseURL == defaultDatabaseURL {
		cfg.Warnings = append(cfg.Warnings, "DATABASE_URL não definido, usando SQLite local")
	}
	if (cfg.AdminEmail == "") != (cfg.AdminPassword == "") {
		cfg.Warnings = append(cfg.Warnings, "ADMIN_EMAIL e ADMIN_PASSWORD devem ser definidos juntos, bootstrap ignorado")
	}

	return cfg, nil
}

// BootstrapAdminEnabled indica se há credenciais de admin inicial.
func (c *Config) BootstrapAdminEnabled() bool {
	return c.AdminEmail != "" && c.AdminPassword != ""
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
