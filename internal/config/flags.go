package config

import (
	"flag"
	"os"
	"time"

	"github.com/deykows/giftkeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-m string   vendor account email
//	-w string   vendor account password
//	-k string   captcha service API key
//	-s string   seal secret for stored passwords
//	-r int      credential refresh interval, minutes
//	-t string   store backend (sqlite, postgres, s3)
//	-f string   sqlite database file
//	-d string   PostgreSQL DSN
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with the -c/-config flags handled
// by the JSON overlay.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-m", "-w", "-k", "-s", "-r", "-t", "-f", "-d", "-b", "-g", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.VendorEmail, "m", config.VendorEmail, "vendor account email")
	fs.StringVar(&config.VendorPassword, "w", config.VendorPassword, "vendor account password")
	fs.StringVar(&config.CaptchaAPIKey, "k", config.CaptchaAPIKey, "captcha service API key")
	fs.StringVar(&config.SealSecret, "s", config.SealSecret, "seal secret")

	refreshInterval := fs.Int("r", int(config.CredentialRefreshInterval.Minutes()), "credential_refresh_interval (in minutes)")

	fs.StringVar(&config.StoreBackend, "t", config.StoreBackend, "store backend (sqlite, postgres, s3)")
	fs.StringVar(&config.SQLitePath, "f", config.SQLitePath, "sqlite database file")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.CredentialRefreshInterval = time.Duration(*refreshInterval) * time.Minute
}
