package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

type Config struct {
	ServerAddr     string
	SigningKey     []byte
	AllowedOrigins []string
	// Tenants maps a tenant id to the DSN of that school's database.
	Tenants        map[string]string
	PushWebhookURL string

	// Admission control for the message class; other classes use engine
	// defaults.
	MessageRateCeiling int
	MessageRateWindow  time.Duration
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func loadTenants(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenants file: %w", err)
	}

	tenants := make(map[string]string)
	if err := json.Unmarshal(raw, &tenants); err != nil {
		return nil, fmt.Errorf("parse tenants file: %w", err)
	}
	if len(tenants) == 0 {
		return nil, fmt.Errorf("tenants file %q lists no tenants", path)
	}

	return tenants, nil
}

func NewConfig(serverAddr, base64Secret, tenantsPath, pushWebhookURL string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if tenantsPath == "" {
		return nil, fmt.Errorf("tenants file cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	tenants, err := loadTenants(tenantsPath)
	if err != nil {
		return nil, err
	}

	return &Config{
		ServerAddr:         serverAddr,
		SigningKey:         signingKey,
		AllowedOrigins:     allowedOrigins,
		Tenants:            tenants,
		PushWebhookURL:     pushWebhookURL,
		MessageRateCeiling: 30,
		MessageRateWindow:  time.Minute,
	}, nil
}
