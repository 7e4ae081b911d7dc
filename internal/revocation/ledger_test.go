package revocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carecoord/authcore/internal/revocation"
	"github.com/carecoord/authcore/internal/shared"
)

func newRedisLedger(t *testing.T) (*revocation.Ledger, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return revocation.NewLedger(revocation.NewRedisStore(client), time.Second), mr
}

func TestDenylistRejectsBeforeNaturalExpiry(t *testing.T) {
	ledger, mr := newRedisLedger(t)
	ctx := context.Background()

	denied, err := ledger.IsDenied(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, denied)

	require.NoError(t, ledger.Denylist(ctx, "jti-1", time.Now().Add(60*time.Minute)))

	denied, err = ledger.IsDenied(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, denied)
	assert.True(t, mr.Exists("revoked:jti-1"))

	ttl := mr.TTL("revoked:jti-1")
	assert.InDelta(t, float64(60*time.Minute), float64(ttl), float64(5*time.Second))
}

func TestDenylistEntryExpiresWithToken(t *testing.T) {
	ledger, mr := newRedisLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Denylist(ctx, "sid-1", time.Now().Add(time.Minute)))
	mr.FastForward(2 * time.Minute)

	denied, err := ledger.IsDenied(ctx, "sid-1")
	require.NoError(t, err)
	assert.False(t, denied)
}

func TestDenylistPastExpiryIsNoop(t *testing.T) {
	ledger, mr := newRedisLedger(t)

	require.NoError(t, ledger.Denylist(context.Background(), "old", time.Now().Add(-time.Second)))
	assert.False(t, mr.Exists("revoked:old"))
}

func TestIsDeniedMatchesAnyIdentifier(t *testing.T) {
	ledger, _ := newRedisLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Denylist(ctx, "sid-2", time.Now().Add(time.Hour)))

	denied, err := ledger.IsDenied(ctx, "jti-unrelated", "sid-2")
	require.NoError(t, err)
	assert.True(t, denied)

	denied, err = ledger.IsDenied(ctx, "", "")
	require.NoError(t, err)
	assert.False(t, denied)
}

func TestCacheOutageIsUnavailableNotAllow(t *testing.T) {
	ledger, mr := newRedisLedger(t)
	mr.Close()

	denied, err := ledger.IsDenied(context.Background(), "jti-1")
	require.ErrorIs(t, err, shared.ErrUnavailable)
	assert.False(t, denied)

	err = ledger.Denylist(context.Background(), "jti-1", time.Now().Add(time.Hour))
	require.ErrorIs(t, err, shared.ErrUnavailable)
}

func TestMemoryStore(t *testing.T) {
	ledger := revocation.NewLedger(revocation.NewMemoryStore(), time.Second)
	ctx := context.Background()

	require.NoError(t, ledger.Denylist(ctx, "jti-9", time.Now().Add(time.Hour)))
	denied, err := ledger.IsDenied(ctx, "jti-9")
	require.NoError(t, err)
	assert.True(t, denied)

	denied, err = ledger.IsDenied(ctx, "jti-10")
	require.NoError(t, err)
	assert.False(t, denied)
}

func TestDenylistMeasuresTTLAgainstInjectedClock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	past := time.Now().Add(-2 * time.Hour)
	ledger := revocation.NewLedger(revocation.NewRedisStore(client), time.Second,
		revocation.WithClock(func() time.Time { return past }))

	require.NoError(t, ledger.Denylist(context.Background(), "jti-clock", past.Add(time.Hour)))
	assert.True(t, mr.Exists("revoked:jti-clock"))
	assert.InDelta(t, float64(time.Hour), float64(mr.TTL("revoked:jti-clock")), float64(time.Second))
}
