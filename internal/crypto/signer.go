package crypto

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrBadSignature is returned when a request signature cannot be recovered.
var ErrBadSignature = errors.New("crypto: bad signature")

// RequestMessage is the text a wallet signs to authenticate an API call:
// unix timestamp, method, path and raw body, concatenated.
func RequestMessage(ts time.Time, method, path string, body []byte) []byte {
	msg := strconv.FormatInt(ts.Unix(), 10) + method + path
	return append([]byte(msg), body...)
}

// Signer signs API requests with the EIP-191 personal message scheme.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, address: ethcrypto.PubkeyToAddress(key.PublicKey)}
}

// NewSignerFromHex parses a hex private key, with or without 0x.
func NewSignerFromHex(hexKey string) (*Signer, error) {
	if len(hexKey) > 1 && hexKey[:2] == "0x" {
		hexKey = hexKey[2:]
	}
	key, err := ethcrypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return NewSigner(key), nil
}

func (s *Signer) Address() common.Address { return s.address }

// Sign returns the 65-byte hex signature of msg, with v in {27, 28}.
func (s *Signer) Sign(msg []byte) (string, error) {
	sig, err := ethcrypto.Sign(accounts.TextHash(msg), s.key)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: sign: %w", err)
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

// SignRequest signs the request message of an API call.
func (s *Signer) SignRequest(ts time.Time, method, path string, body []byte) (string, error) {
	return s.Sign(RequestMessage(ts, method, path, body))
}

// Recover returns the address that produced sig over msg. Both v
// conventions are accepted.
func Recover(msg []byte, sig string) (common.Address, error) {
	raw, err := hexutil.Decode(sig)
	if err != nil || len(raw) != 65 {
		return common.Address{}, ErrBadSignature
	}
	if raw[64] >= 27 {
		raw[64] -= 27
	}
	if raw[64] > 1 {
		return common.Address{}, ErrBadSignature
	}
	pub, err := ethcrypto.SigToPub(accounts.TextHash(msg), raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
