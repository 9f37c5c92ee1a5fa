package chainaddr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Tron(t *testing.T) {
	got, err := Normalize(NetworkTron, " TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t ")
	require.NoError(t, err)
	assert.Equal(t, "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", got)

	// bad checksum
	_, err = Normalize(NetworkTron, "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6u")
	assert.True(t, errors.Is(err, ErrInvalidAddress))

	// valid base58check, wrong version byte
	_, err = Normalize(NetworkTron, "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2")
	assert.True(t, errors.Is(err, ErrInvalidAddress))
}

func TestNormalize_Evm(t *testing.T) {
	got, err := Normalize("ERC20", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	require.NoError(t, err)
	assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", got)

	_, err = Normalize(NetworkEthereum, "0x1234")
	assert.True(t, errors.Is(err, ErrInvalidAddress))
}

func TestNormalize_Ton(t *testing.T) {
	raw := "0:0000000000000000000000000000000000000000000000000000000000000000"
	friendly, err := Normalize(NetworkTon, raw)
	require.NoError(t, err)
	assert.NotEqual(t, raw, friendly)

	again, err := Normalize(NetworkTon, friendly)
	require.NoError(t, err)
	assert.Equal(t, friendly, again)

	assert.Error(t, Validate(NetworkTon, "not-an-address"))
}

func TestNormalize_UnknownNetworkPassesThrough(t *testing.T) {
	got, err := Normalize("internal", "  acct-42 ")
	require.NoError(t, err)
	assert.Equal(t, "acct-42", got)

	_, err = Normalize("internal", "   ")
	assert.Error(t, err)
}
