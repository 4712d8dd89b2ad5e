package crypto

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/overtimeamm/internal/config"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSignAndRecoverRequest(t *testing.T) {
	s, err := NewSignerFromHex("0x" + testKey)
	require.NoError(t, err)
	ts := time.Unix(1_760_000_000, 0)
	body := []byte(`{"amount":"10"}`)

	sig, err := s.SignRequest(ts, "POST", "/api/amm/buy", body)
	require.NoError(t, err)

	got, err := Recover(RequestMessage(ts, "POST", "/api/amm/buy", body), sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), got)

	other, err := Recover(RequestMessage(ts, "POST", "/api/amm/sell", body), sig)
	require.NoError(t, err)
	assert.NotEqual(t, s.Address(), other)
}

func TestRecoverRejectsMalformed(t *testing.T) {
	_, err := Recover([]byte("x"), "0x1234")
	assert.ErrorIs(t, err, ErrBadSignature)
	_, err = Recover([]byte("x"), "not-hex")
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestRequestMessageLayout(t *testing.T) {
	msg := RequestMessage(time.Unix(42, 0), "GET", "/api/markets", nil)
	assert.Equal(t, "42GET/api/markets", string(msg))
}

func TestSealOpenKeystore(t *testing.T) {
	key, err := ethcrypto.HexToECDSA(testKey)
	require.NoError(t, err)

	sealed, err := SealKey(key, "hunter2")
	require.NoError(t, err)
	assert.Contains(t, string(sealed), ethcrypto.PubkeyToAddress(key.PublicKey).Hex())

	opened, err := OpenKey(sealed, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, key.D, opened.D)

	_, err = OpenKey(sealed, "wrong")
	assert.Error(t, err)
	_, err = SealKey(key, "")
	assert.Error(t, err)
}

func TestLoadOperatorKey(t *testing.T) {
	_, err := LoadOperatorKey(config.OperatorConfig{})
	assert.ErrorIs(t, err, ErrNoKey)

	raw, err := LoadOperatorKey(config.OperatorConfig{PrivateKey: "0x" + testKey})
	require.NoError(t, err)

	sealed, err := SealKey(raw, "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "operator.json")
	require.NoError(t, os.WriteFile(path, sealed, 0o600))

	fromFile, err := LoadOperatorKey(config.OperatorConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, raw.D, fromFile.D)
}
