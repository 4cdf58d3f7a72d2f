// Package sui implements the parts of the Sui blockchain client the mint
// workflow needs: Ed25519 keys, addresses, intent signing, transaction
// digests and a JSON-RPC client for a fullnode.
package sui

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/dmitrijs2005/educhain/internal/common"
	"golang.org/x/crypto/blake2b"
)

// ed25519Flag is the signature scheme flag Sui prefixes to Ed25519 keys,
// public keys and signatures.
const ed25519Flag byte = 0x00

// privateKeyHRP is the Bech32 prefix of exported private keys.
const privateKeyHRP = "suiprivkey"

var ErrInvalidSecretKey = errors.New("invalid secret key")

type Keypair struct {
	priv ed25519.PrivateKey
}

// GenerateKeypair creates a new random Ed25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	seed := common.GenerateRandByteArray(ed25519.SeedSize)
	defer common.WipeByteArray(seed)
	return KeypairFromSeed(seed)
}

// KeypairFromSeed builds a keypair from a 32-byte Ed25519 seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes, got %d", ErrInvalidSecretKey, ed25519.SeedSize, len(seed))
	}
	return &Keypair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// ParseSecretKey accepts the formats a Sui keystore or CLI export produces:
//
//   - Bech32 suiprivkey1... of flag||seed, as printed by sui keytool export
//   - base64 of flag||seed (33 bytes), as stored in sui.keystore
//   - base64 of a bare 32-byte seed
//   - hex of a 32-byte seed, with or without 0x
func ParseSecretKey(s string) (*Keypair, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidSecretKey)
	}

	if strings.HasPrefix(strings.ToLower(s), privateKeyHRP+"1") {
		return parseBech32SecretKey(s)
	}

	h := strings.TrimPrefix(s, "0x")
	if len(h) == 2*ed25519.SeedSize {
		if seed, err := hex.DecodeString(h); err == nil {
			defer common.WipeByteArray(seed)
			return KeypairFromSeed(seed)
		}
	}

	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecretKey, err)
	}
	defer common.WipeByteArray(raw)

	switch len(raw) {
	case ed25519.SeedSize + 1:
		if raw[0] != ed25519Flag {
			return nil, fmt.Errorf("%w: unsupported key scheme flag %d", ErrInvalidSecretKey, raw[0])
		}
		return KeypairFromSeed(raw[1:])
	case ed25519.SeedSize:
		return KeypairFromSeed(raw)
	default:
		return nil, fmt.Errorf("%w: unexpected length %d", ErrInvalidSecretKey, len(raw))
	}
}

func parseBech32SecretKey(s string) (*Keypair, error) {
	hrp, data, err := bech32.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecretKey, err)
	}
	if hrp != privateKeyHRP {
		return nil, fmt.Errorf("%w: unexpected prefix %q", ErrInvalidSecretKey, hrp)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecretKey, err)
	}
	defer common.WipeByteArray(raw)

	if len(raw) != ed25519.SeedSize+1 {
		return nil, fmt.Errorf("%w: unexpected length %d", ErrInvalidSecretKey, len(raw))
	}
	if raw[0] != ed25519Flag {
		return nil, fmt.Errorf("%w: unsupported key scheme flag %d", ErrInvalidSecretKey, raw[0])
	}
	return KeypairFromSeed(raw[1:])
}

// EncodeSecretKey returns the keystore form, base64(flag||seed).
func (k *Keypair) EncodeSecretKey() string {
	buf := make([]byte, 0, ed25519.SeedSize+1)
	buf = append(buf, ed25519Flag)
	buf = append(buf, k.priv.Seed()...)
	defer common.WipeByteArray(buf)
	return base64.StdEncoding.EncodeToString(buf)
}

func (k *Keypair) PublicKey() ed25519.PublicKey {
	return k.priv.Public().(ed25519.PublicKey)
}

// Address is 0x followed by the hex blake2b-256 of flag||pubkey.
func (k *Keypair) Address() string {
	buf := make([]byte, 0, ed25519.PublicKeySize+1)
	buf = append(buf, ed25519Flag)
	buf = append(buf, k.PublicKey()...)
	sum := blake2b.Sum256(buf)
	return "0x" + hex.EncodeToString(sum[:])
}

// transactionIntent is the intent prefix for a TransactionData message:
// scope TransactionData, version V0, app id Sui.
var transactionIntent = []byte{0, 0, 0}

// SignTransaction signs BCS transaction bytes and returns the serialized
// signature expected by sui_executeTransactionBlock: base64(flag||sig||pubkey).
func (k *Keypair) SignTransaction(txBytes []byte) string {
	msg := make([]byte, 0, len(transactionIntent)+len(txBytes))
	msg = append(msg, transactionIntent...)
	msg = append(msg, txBytes...)
	digest := blake2b.Sum256(msg)

	sig := ed25519.Sign(k.priv, digest[:])

	out := make([]byte, 0, 1+ed25519.SignatureSize+ed25519.PublicKeySize)
	out = append(out, ed25519Flag)
	out = append(out, sig...)
	out = append(out, k.PublicKey()...)
	return base64.StdEncoding.EncodeToString(out)
}

// VerifyTransactionSignature checks a serialized signature produced by
// SignTransaction against txBytes.
func VerifyTransactionSignature(txBytes []byte, serialized string) bool {
	raw, err := base64.StdEncoding.DecodeString(serialized)
	if err != nil || len(raw) != 1+ed25519.SignatureSize+ed25519.PublicKeySize || raw[0] != ed25519Flag {
		return false
	}
	sig := raw[1 : 1+ed25519.SignatureSize]
	pub := ed25519.PublicKey(raw[1+ed25519.SignatureSize:])

	msg := append(append([]byte{}, transactionIntent...), txBytes...)
	digest := blake2b.Sum256(msg)
	return ed25519.Verify(pub, digest[:], sig)
}
