package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnsupportedKey is returned for keys that are neither RSA nor ECDSA.
var ErrUnsupportedKey = errors.New("token: unsupported key type")

// ParsePrivateKeyPEM accepts PKCS1, PKCS8 or SEC1 encoded RSA and ECDSA keys.
func ParsePrivateKeyPEM(data []byte) (crypto.Signer, error) {
	if key, err := jwt.ParseECPrivateKeyFromPEM(data); err == nil {
		return key, nil
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("token: parse private key: %w", err)
	}
	return key, nil
}

// ParsePublicKeyPEM accepts PKIX, PKCS1 or certificate encoded RSA and ECDSA keys.
func ParsePublicKeyPEM(data []byte) (crypto.PublicKey, error) {
	if key, err := jwt.ParseECPublicKeyFromPEM(data); err == nil {
		return key, nil
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("token: parse public key: %w", err)
	}
	return key, nil
}

// LoadPrivateKey reads a PEM private key from disk.
func LoadPrivateKey(path string) (crypto.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("token: read private key: %w", err)
	}
	return ParsePrivateKeyPEM(data)
}

// LoadPublicKey reads a PEM public key from disk.
func LoadPublicKey(path string) (crypto.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("token: read public key: %w", err)
	}
	return ParsePublicKeyPEM(data)
}

// signingMethod resolves alg and checks that key fits it.
func signingMethod(alg string, key crypto.PublicKey) (jwt.SigningMethod, error) {
	method := jwt.GetSigningMethod(alg)
	switch m := method.(type) {
	case *jwt.SigningMethodRSA:
		if _, ok := key.(*rsa.PublicKey); !ok {
			return nil, fmt.Errorf("token: %s requires an RSA key: %w", m.Alg(), ErrUnsupportedKey)
		}
	case *jwt.SigningMethodECDSA:
		ec, ok := key.(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("token: %s requires an ECDSA key: %w", m.Alg(), ErrUnsupportedKey)
		}
		if ec.Curve.Params().BitSize != m.CurveBits {
			return nil, fmt.Errorf("token: %s requires a %d-bit curve: %w", m.Alg(), m.CurveBits, ErrUnsupportedKey)
		}
	default:
		return nil, fmt.Errorf("token: algorithm %q is not asymmetric RS/ES: %w", alg, ErrUnsupportedKey)
	}
	return method, nil
}

// ErrKeyMismatch is returned when a public key does not belong to the signer.
var ErrKeyMismatch = errors.New("token: public key does not match private key")

// CheckKeyPair confirms that public is the counterpart of signer.
func CheckKeyPair(signer crypto.Signer, public crypto.PublicKey) error {
	own, ok := signer.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok {
		return ErrUnsupportedKey
	}
	if !own.Equal(public) {
		return ErrKeyMismatch
	}
	return nil
}
