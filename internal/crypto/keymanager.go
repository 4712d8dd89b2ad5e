// Package crypto manages the operator key and authenticates API requests
// signed by trader wallets.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"

	"github.com/alanyoungcy/overtimeamm/internal/config"
)

const (
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	keystoreVersion  = 1
)

// ErrNoKey is returned when no key source is configured.
var ErrNoKey = errors.New("crypto: no operator key configured")

// keystore is the on-disk format of a sealed key.
type keystore struct {
	Version    int    `json:"version"`
	Address    string `json:"address"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

func deriveAEAD(password string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New))
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	return gcm, nil
}

// SealKey encrypts key with a password-derived AES-256-GCM key. The
// address is stored in clear so operators can tell keystores apart.
func SealKey(key *ecdsa.PrivateKey, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: empty password")
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	gcm, err := deriveAEAD(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}
	ks := keystore{
		Version:    keystoreVersion,
		Address:    ethcrypto.PubkeyToAddress(key.PublicKey).Hex(),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, ethcrypto.FromECDSA(key), nil)),
	}
	return json.MarshalIndent(ks, "", "  ")
}

// OpenKey decrypts a keystore produced by SealKey.
func OpenKey(data []byte, password string) (*ecdsa.PrivateKey, error) {
	var ks keystore
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, fmt.Errorf("crypto: parse keystore: %w", err)
	}
	if ks.Version != keystoreVersion {
		return nil, fmt.Errorf("crypto: unsupported keystore version %d", ks.Version)
	}
	var raw [3][]byte
	for i, s := range []string{ks.Salt, ks.Nonce, ks.Ciphertext} {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("crypto: decode keystore: %w", err)
		}
		raw[i] = b
	}
	gcm, err := deriveAEAD(password, raw[0])
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, raw[1], raw[2], nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: open keystore (wrong password?): %w", err)
	}
	key, err := ethcrypto.ToECDSA(plain)
	if err != nil {
		return nil, fmt.Errorf("crypto: keystore holds an invalid key: %w", err)
	}
	if ks.Address != "" && !strings.EqualFold(ks.Address, ethcrypto.PubkeyToAddress(key.PublicKey).Hex()) {
		return nil, errors.New("crypto: keystore address does not match key")
	}
	return key, nil
}

// LoadOperatorKey resolves the operator key: a raw hex key first, then a
// keystore file.
func LoadOperatorKey(cfg config.OperatorConfig) (*ecdsa.PrivateKey, error) {
	if cfg.PrivateKey != "" {
		key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("crypto: operator private key: %w", err)
		}
		return key, nil
	}
	if cfg.EncryptedKeyPath != "" {
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: read keystore: %w", err)
		}
		return OpenKey(data, cfg.KeyPassword)
	}
	return nil, ErrNoKey
}
