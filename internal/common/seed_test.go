package common

import (
	"os"
	"path/filepath"
	"testing"

	"wallet-pool-go/internal/models"
	"wallet-pool-go/internal/notify"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSeed = `
wallets:
  - network: tron
    address: TXYZopYRdj2D9XRtbG411XZZ3kM5VkAeBf
  - address: TLsV52sRDL79HXGGm9yzwKibb6BeruhUzy
claims:
  - bank_name: HDFC
    account_number: "001122334455"
    ifsc_code: HDFC0000001
    account_holder: Pool Ops
    amount: "5000.00"
`

func TestLoadPoolSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSeed), 0o600))

	seed, err := LoadPoolSeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Wallets, 2)
	assert.Equal(t, "tron", seed.Wallets[0].Network)
	assert.Empty(t, seed.Wallets[1].Network)

	require.Len(t, seed.Claims, 1)
	details, err := seed.Claims[0].Details()
	require.NoError(t, err)
	assert.True(t, details.Amount.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, "001122334455", details.AccountNumber)
}

func TestParsePoolSeed_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing address": "wallets:\n  - network: tron\n",
		"bad amount":      "claims:\n  - account_number: \"1\"\n    ifsc_code: X\n    amount: lots\n",
		"zero amount":     "claims:\n  - account_number: \"1\"\n    ifsc_code: X\n    amount: \"0\"\n",
		"missing ifsc":    "claims:\n  - account_number: \"1\"\n    amount: \"10\"\n",
		"not yaml":        "wallets: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePoolSeed([]byte(doc), "seed.yaml")
			assert.Error(t, err)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a@x.io", "b@x.io"}, splitList(" a@x.io, ,b@x.io "))
	assert.Nil(t, splitList(""))
}

func TestBuildNotifier(t *testing.T) {
	assert.Equal(t, notify.LogSink{}, buildNotifier(models.NotifyConfig{}))

	withEmail := buildNotifier(models.NotifyConfig{
		SmtpHost: "smtp.example.com",
		SmtpPort: 587,
		EmailTo:  "ops@example.com",
	})
	multi, ok := withEmail.(notify.Multi)
	require.True(t, ok)
	require.Len(t, multi, 2)
	assert.Equal(t, notify.LogSink{}, multi[0])
	assert.IsType(t, notify.MinLevel{}, multi[1])
}
