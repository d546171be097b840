package config

import (
	"encoding/json"
	"os"

	"github.com/deykows/giftkeeper/internal/flagx"
	"github.com/deykows/giftkeeper/internal/timex"
)

// JsonConfig is the JSON-file shape of Config. It is an intermediate DTO
// used only for unmarshalling; values are copied into the runtime Config.
type JsonConfig struct {
	VendorEmail    string `json:"vendor_email"`
	VendorPassword string `json:"vendor_password"`
	CaptchaAPIKey  string `json:"captcha_api_key"`
	SealSecret     string `json:"seal_secret"`

	// CredentialRefreshInterval accepts both string values such as "50m"
	// and integer nanoseconds.
	CredentialRefreshInterval timex.Duration `json:"credential_refresh_interval"`

	AuthBaseURL    string `json:"auth_base_url"`
	CoreBaseURL    string `json:"core_base_url"`
	CaptchaBaseURL string `json:"captcha_base_url"`
	ImageBaseURL   string `json:"image_base_url"`

	StoreBackend string `json:"store_backend"`
	SQLitePath   string `json:"sqlite_path"`
	DatabaseDSN  string `json:"database_dsn"`

	S3AccessKey    string `json:"s3_access_key"`
	S3SecretKey    string `json:"s3_secret_key"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`
	S3Prefix       string `json:"s3_prefix"`
}

// parseJson overlays configuration from a JSON file onto config. The file
// path comes from the -c/-config flags; with neither set no file is
// loaded. Empty JSON fields leave the existing value in place. An
// unreadable or invalid file panics: a present-but-broken config file is a
// deployment error, not a condition to run through.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setIf(&config.VendorEmail, c.VendorEmail)
	setIf(&config.VendorPassword, c.VendorPassword)
	setIf(&config.CaptchaAPIKey, c.CaptchaAPIKey)
	setIf(&config.SealSecret, c.SealSecret)
	if c.CredentialRefreshInterval.Duration > 0 {
		config.CredentialRefreshInterval = c.CredentialRefreshInterval.Duration
	}
	setIf(&config.AuthBaseURL, c.AuthBaseURL)
	setIf(&config.CoreBaseURL, c.CoreBaseURL)
	setIf(&config.CaptchaBaseURL, c.CaptchaBaseURL)
	setIf(&config.ImageBaseURL, c.ImageBaseURL)
	setIf(&config.StoreBackend, c.StoreBackend)
	setIf(&config.SQLitePath, c.SQLitePath)
	setIf(&config.DatabaseDSN, c.DatabaseDSN)
	setIf(&config.S3AccessKey, c.S3AccessKey)
	setIf(&config.S3SecretKey, c.S3SecretKey)
	setIf(&config.S3Bucket, c.S3Bucket)
	setIf(&config.S3Region, c.S3Region)
	setIf(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setIf(&config.S3Prefix, c.S3Prefix)
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
