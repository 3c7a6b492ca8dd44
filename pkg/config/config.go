// Package config holds daemon configuration: 12-factor environment
// variables for wiring, plus a YAML policy file for the ledger's economic
// parameters.
package config

import "os"

// Config holds ledger daemon configuration.
type Config struct {
	LogLevel      string
	DatabasePath  string // SQLite database file
	PostgresURL   string // optional mirror for the transaction log
	RedisAddr     string
	RedisPassword string
	OracleURL     string
	PolicyPath    string
	OTLPEndpoint  string
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbPath := os.Getenv("LEDGER_DB_PATH")
	if dbPath == "" {
		dbPath = "ledger.db"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	oracleURL := os.Getenv("ORACLE_URL")
	if oracleURL == "" {
		oracleURL = "http://localhost:8055/price"
	}

	policyPath := os.Getenv("LEDGER_POLICY_PATH")
	if policyPath == "" {
		policyPath = "policy.yaml"
	}

	return &Config{
		LogLevel:      logLevel,
		DatabasePath:  dbPath,
		PostgresURL:   os.Getenv("POSTGRES_URL"),
		RedisAddr:     redisAddr,
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		OracleURL:     oracleURL,
		PolicyPath:    policyPath,
		OTLPEndpoint:  os.Getenv("OTLP_ENDPOINT"),
	}
}
