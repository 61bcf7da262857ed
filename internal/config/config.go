package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultUploadURL is the Twitter v1.1 media upload endpoint.
	DefaultUploadURL = "https://upload.twitter.com/1.1/media/upload.json"
	// DefaultStatusURL is the Twitter v1.1 status update endpoint.
	DefaultStatusURL = "https://api.twitter.com/1.1/statuses/update.json"
)

type Config struct {
	GPIOPin      string // Button pin name, e.g. GPIO17
	I2CBus       string // "1" on a Raspberry Pi
	I2CAddress   uint16 // 7-bit address of the LCD backpack
	CameraDevice int
	CascadeFile  string

	NasneIP string // Empty disables the title lookup

	TwitterConsumerKey    string
	TwitterConsumerSecret string
	TwitterAccessToken    string
	TwitterAccessSecret   string
	TwitterUploadURL      string
	TwitterStatusURL      string

	PollInterval time.Duration
	ResultDwell  time.Duration
	HTTPTimeout  time.Duration

	LogDirectory string
	MonitorPort  int // 0 disables the monitor server
}

// Load reads the configuration from the environment. Values from an optional
// .env file (ENV_FILE) are merged first; variables already set win.
func Load() *Config {
	_ = godotenv.Load(getEnv("ENV_FILE", ".env"))

	return &Config{
		GPIOPin:      getEnv("GPIO_PIN", "GPIO17"),
		I2CBus:       getEnv("I2C_BUS", "1"),
		I2CAddress:   getEnvAsAddress("I2C_ADDR", 0x27),
		CameraDevice: getEnvAsInt("CAMERA_DEVICE", 0),
		CascadeFile:  getEnv("CASCADE_FILE", filepath.Join(".", "lbpcascade_animeface.xml")),

		NasneIP: getEnv("NASNE_IP", ""),

		TwitterConsumerKey:    getEnv("TWITTER_CONSUMER_KEY", ""),
		TwitterConsumerSecret: getEnv("TWITTER_CONSUMER_SECRET", ""),
		TwitterAccessToken:    getEnv("TWITTER_ACCESS_TOKEN", ""),
		TwitterAccessSecret:   getEnv("TWITTER_ACCESS_SECRET", ""),
		TwitterUploadURL:      getEnv("TWITTER_UPLOAD_URL", DefaultUploadURL),
		TwitterStatusURL:      getEnv("TWITTER_STATUS_URL", DefaultStatusURL),

		PollInterval: getEnvAsDuration("POLL_INTERVAL_MS", 100, time.Millisecond),
		ResultDwell:  getEnvAsDuration("RESULT_DWELL_MS", 3000, time.Millisecond),
		HTTPTimeout:  getEnvAsDuration("HTTP_TIMEOUT_SECONDS", 30, time.Second),

		LogDirectory: getEnv("LOG_DIR", filepath.Join(".", "logs")),
		MonitorPort:  getEnvAsInt("MONITOR_PORT", 0),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsAddress accepts decimal or 0x-prefixed hex (I2C_ADDR=0x3f).
func getEnvAsAddress(key string, defaultValue uint16) uint16 {
	if value := os.Getenv(key); value != "" {
		if addr, err := strconv.ParseUint(value, 0, 7); err == nil {
			return uint16(addr)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue int, unit time.Duration) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultValue)) * unit
}
