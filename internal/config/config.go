package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath            string
	ListenAddr        string
	BackendBaseURL    string
	BackendTimeout    time.Duration
	OwnerID           string
	DeviceID          string
	SyncInterval      time.Duration
	ProbeInterval     time.Duration
	StorageQuotaBytes int64
	OTLPEndpoint      string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	backendTimeout, _ := time.ParseDuration(os.Getenv("BACKEND_TIMEOUT"))
	if backendTimeout == 0 {
		backendTimeout = 15 * time.Second
	}
	syncInterval, _ := time.ParseDuration(os.Getenv("SYNC_INTERVAL"))
	if syncInterval == 0 {
		syncInterval = 5 * time.Minute
	}
	probeInterval, _ := time.ParseDuration(os.Getenv("PROBE_INTERVAL"))
	if probeInterval == 0 {
		probeInterval = 30 * time.Second
	}
	quota, _ := strconv.ParseInt(os.Getenv("WALLET_STORAGE_QUOTA_BYTES"), 10, 64)
	if quota == 0 {
		quota = 64 << 20
	}

	dbPath := os.Getenv("WALLET_DB_PATH")
	if dbPath == "" {
		dbPath = "wallet.db"
	}
	addr := os.Getenv("WALLET_API_ADDR")
	if addr == "" {
		addr = "127.0.0.1:8090"
	}

	return &Config{
		DBPath:            dbPath,
		ListenAddr:        addr,
		BackendBaseURL:    os.Getenv("BACKEND_BASE_URL"),
		BackendTimeout:    backendTimeout,
		OwnerID:           os.Getenv("WALLET_OWNER_ID"),
		DeviceID:          os.Getenv("WALLET_DEVICE_ID"),
		SyncInterval:      syncInterval,
		ProbeInterval:     probeInterval,
		StorageQuotaBytes: quota,
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}
