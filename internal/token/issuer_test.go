package token_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carecoord/authcore/internal/shared"
	"github.com/carecoord/authcore/internal/token"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newIssuer(t *testing.T, clock *fakeClock) *token.Issuer {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	issuer, err := token.NewIssuer(token.Config{
		Algorithm:  "ES256",
		Issuer:     "authcore-test",
		Audience:   "carecoord-api",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 720 * time.Hour,
	}, key, token.WithClock(clock.Now))
	require.NoError(t, err)
	return issuer
}

func TestAccessTokenRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	issuer := newIssuer(t, clock)

	minted, err := issuer.MintAccess(token.AccessInput{
		Subject:     "c7d3f6a2-0000-4000-8000-000000000001",
		SessionID:   "01HZX0SESSION",
		DeviceID:    "phone",
		Role:        "member",
		ZoneID:      "z1",
		Permissions: []string{"clients:read"},
	})
	require.NoError(t, err)
	assert.WithinDuration(t, clock.now.Add(15*time.Minute), minted.ExpiresAt, 0)

	claims, err := issuer.VerifyAccess(minted.Token)
	require.NoError(t, err)
	assert.Equal(t, "c7d3f6a2-0000-4000-8000-000000000001", claims.Subject)
	assert.Equal(t, minted.ID, claims.ID)
	assert.Equal(t, "01HZX0SESSION", claims.SessionID)
	assert.Equal(t, "phone", claims.DeviceID)
	assert.Equal(t, "member", claims.Role)
	assert.Equal(t, "z1", claims.ZoneID)
	assert.Equal(t, []string{"clients:read"}, claims.Permissions)
	assert.WithinDuration(t, minted.ExpiresAt, claims.Expiry(), 0)
}

func TestAccessTokenExpired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	issuer := newIssuer(t, clock)

	minted, err := issuer.MintAccess(token.AccessInput{Subject: "u1", SessionID: "s1", Role: "member"})
	require.NoError(t, err)

	clock.now = clock.now.Add(16 * time.Minute)
	_, err = issuer.VerifyAccess(minted.Token)
	require.ErrorIs(t, err, shared.ErrTokenExpired)
}

func TestRefreshTokenCarriesOnlyIdentityAndDevice(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	issuer := newIssuer(t, clock)

	minted, err := issuer.MintRefresh("u1", "tablet")
	require.NoError(t, err)

	claims, err := issuer.VerifyRefresh(minted.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "tablet", claims.DeviceID)

	_, err = issuer.VerifyAccess(minted.Token)
	require.ErrorIs(t, err, shared.ErrTokenMalformed)
}

func TestAccessTokenRejectedAsRefresh(t *testing.T) {
	issuer := newIssuer(t, &fakeClock{now: time.Now()})
	minted, err := issuer.MintAccess(token.AccessInput{Subject: "u1", SessionID: "s1", DeviceID: "d1", Role: "member"})
	require.NoError(t, err)

	_, err = issuer.VerifyRefresh(minted.Token)
	require.ErrorIs(t, err, shared.ErrTokenMalformed)
}

func TestTamperedAndForeignTokensAreMalformed(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	issuer := newIssuer(t, clock)
	other := newIssuer(t, clock)

	minted, err := issuer.MintAccess(token.AccessInput{Subject: "u1", SessionID: "s1", Role: "member"})
	require.NoError(t, err)

	parts := strings.Split(minted.Token, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	for name, raw := range map[string]string{
		"tampered": tampered,
		"foreign":  mustAccess(t, other),
		"garbage":  "not-a-token",
		"empty":    "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := issuer.VerifyAccess(raw)
			require.ErrorIs(t, err, shared.ErrTokenMalformed)
		})
	}
}

func TestVerifierFromPublicKeyOnly(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privDER, err := x509.MarshalPKCS8PrivateKey(rsaKey)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(&rsaKey.PublicKey)
	require.NoError(t, err)

	signer, err := token.ParsePrivateKeyPEM(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}))
	require.NoError(t, err)
	public, err := token.ParsePublicKeyPEM(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	require.NoError(t, err)

	issuer, err := token.NewIssuer(token.Config{
		Algorithm: "RS256", Issuer: "authcore-test", Audience: "carecoord-api",
		AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour,
	}, signer)
	require.NoError(t, err)
	verifier, err := token.NewVerifier("RS256", public, "authcore-test", "carecoord-api")
	require.NoError(t, err)

	minted, err := issuer.MintAccess(token.AccessInput{Subject: "u1", SessionID: "s1", Role: "administrator"})
	require.NoError(t, err)
	claims, err := verifier.VerifyAccess(minted.Token)
	require.NoError(t, err)
	assert.Equal(t, "administrator", claims.Role)

	wrongAudience, err := token.NewVerifier("RS256", public, "authcore-test", "someone-else")
	require.NoError(t, err)
	_, err = wrongAudience.VerifyAccess(minted.Token)
	require.ErrorIs(t, err, shared.ErrTokenMalformed)
}

func TestSymmetricAndMismatchedAlgorithmsRejected(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	_, err = token.NewVerifier("HS256", &key.PublicKey, "iss", "aud")
	require.ErrorIs(t, err, token.ErrUnsupportedKey)
	_, err = token.NewVerifier("RS256", &key.PublicKey, "iss", "aud")
	require.ErrorIs(t, err, token.ErrUnsupportedKey)
	_, err = token.NewVerifier("ES384", &key.PublicKey, "iss", "aud")
	require.ErrorIs(t, err, token.ErrUnsupportedKey)
}

func TestCheckKeyPair(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	other, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	require.NoError(t, token.CheckKeyPair(key, &key.PublicKey))
	require.ErrorIs(t, token.CheckKeyPair(key, &other.PublicKey), token.ErrKeyMismatch)
}

func mustAccess(t *testing.T, issuer *token.Issuer) string {
	t.Helper()
	minted, err := issuer.MintAccess(token.AccessInput{Subject: "u1", SessionID: "s1", Role: "member"})
	require.NoError(t, err)
	return minted.Token
}
