package config

import "os"

// parseEnv overlays configuration from environment variables. Secrets are
// expected to arrive this way in deployments (cmd/bot also loads a local
// .env file into the environment before this runs).
func parseEnv(config *Config) {
	setIf(&config.VendorEmail, os.Getenv("GIFTKEEPER_VENDOR_EMAIL"))
	setIf(&config.VendorPassword, os.Getenv("GIFTKEEPER_VENDOR_PASSWORD"))
	setIf(&config.CaptchaAPIKey, os.Getenv("GIFTKEEPER_CAPTCHA_API_KEY"))
	setIf(&config.SealSecret, os.Getenv("GIFTKEEPER_SEAL_SECRET"))
	setIf(&config.StoreBackend, os.Getenv("GIFTKEEPER_STORE_BACKEND"))
	setIf(&config.SQLitePath, os.Getenv("GIFTKEEPER_SQLITE_PATH"))
	setIf(&config.DatabaseDSN, os.Getenv("GIFTKEEPER_DATABASE_DSN"))
	setIf(&config.S3AccessKey, os.Getenv("GIFTKEEPER_S3_ACCESS_KEY"))
	setIf(&config.S3SecretKey, os.Getenv("GIFTKEEPER_S3_SECRET_KEY"))
	setIf(&config.S3Bucket, os.Getenv("GIFTKEEPER_S3_BUCKET"))
	setIf(&config.S3Region, os.Getenv("GIFTKEEPER_S3_REGION"))
	setIf(&config.S3BaseEndpoint, os.Getenv("GIFTKEEPER_S3_BASE_ENDPOINT"))
}
