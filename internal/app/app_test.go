package app

import (
	"context"
	"testing"
	"time"

	"github.com/deykows/giftkeeper/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	cfg := &config.Config{
		VendorEmail:    "bot@example.com",
		VendorPassword: "pw",
		CaptchaAPIKey:  "key",
		SealSecret:     "secret",
	}
	require.NoError(t, validate(cfg))

	missingEmail := *cfg
	missingEmail.VendorEmail = ""
	assert.Error(t, validate(&missingEmail))

	missingCaptcha := *cfg
	missingCaptcha.CaptchaAPIKey = ""
	assert.Error(t, validate(&missingCaptcha))

	missingSeal := *cfg
	missingSeal.SealSecret = ""
	assert.Error(t, validate(&missingSeal))
}

func TestOpenStore_UnknownBackend(t *testing.T) {
	_, _, err := OpenStore(context.Background(), &config.Config{StoreBackend: "etcd"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "etcd")
}

func TestNextRefresh(t *testing.T) {
	loc := time.UTC

	before := time.Date(2025, 6, 2, 1, 30, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 6, 2, 3, 0, 0, 0, loc), nextRefresh(before))

	after := time.Date(2025, 6, 2, 14, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 6, 3, 3, 0, 0, 0, loc), nextRefresh(after))

	exactly := time.Date(2025, 6, 2, 3, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 6, 3, 3, 0, 0, 0, loc), nextRefresh(exactly))
}
