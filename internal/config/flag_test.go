package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "Test1 OK", args: []string{"cmd",
			"-m", "bot@example.com", "-w", "hunter2", "-k", "capkey", "-s", "sealsecret", "-r", "45",
			"-t", "postgres", "-f", "data.db", "-d", "dsn", "-b", "bucket", "-g", "us-west-1", "-e", "http://endpoint",
		}, expectPanic: false,
			expected: &Config{
				VendorEmail:               "bot@example.com",
				VendorPassword:            "hunter2",
				CaptchaAPIKey:             "capkey",
				SealSecret:                "sealsecret",
				CredentialRefreshInterval: 45 * time.Minute,
				StoreBackend:              BackendPostgres,
				SQLitePath:                "data.db",
				DatabaseDSN:               "dsn",
				S3Bucket:                  "bucket",
				S3Region:                  "us-west-1",
				S3BaseEndpoint:            "http://endpoint",
			}},
		{name: "Test2 unknown flags filtered", args: []string{"cmd",
			"-m", "bot@example.com", "-unknown", "x",
		}, expectPanic: false,
			expected: &Config{
				VendorEmail: "bot@example.com",
			}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()
			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
