package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "fedbox/pkg/errors"
)

func TestIssueAndValidate(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", "fedbox", time.Hour)
	const actor = "https://example.com/actor/alice"

	token, err := issuer.Issue(actor)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := issuer.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, actor, got)
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", "fedbox", time.Hour)

	token, err := issuer.Issue("https://example.com/actor/alice")
	require.NoError(t, err)

	_, err = issuer.Validate(token + "x")
	assert.True(t, apperrors.IsUnauthorized(err), "got %v", err)

	_, err = issuer.Validate("not a token")
	assert.True(t, apperrors.IsUnauthorized(err), "got %v", err)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := NewTokenIssuer("secret-a", "fedbox", time.Hour).Issue("https://example.com/actor/alice")
	require.NoError(t, err)

	_, err = NewTokenIssuer("secret-b", "fedbox", time.Hour).Validate(token)
	assert.True(t, apperrors.IsUnauthorized(err), "got %v", err)
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	token, err := NewTokenIssuer("test-secret", "other-instance", time.Hour).Issue("https://example.com/actor/alice")
	require.NoError(t, err)

	_, err = NewTokenIssuer("test-secret", "fedbox", time.Hour).Validate(token)
	assert.True(t, apperrors.IsUnauthorized(err), "got %v", err)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", "fedbox", time.Millisecond)

	token, err := issuer.Issue("https://example.com/actor/alice")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	_, err = issuer.Validate(token)
	assert.True(t, apperrors.IsUnauthorized(err), "got %v", err)
}

func TestTokenBucketLimiter(t *testing.T) {
	limiter := NewTokenBucketLimiter(3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "peer")
		require.NoError(t, err)
		assert.True(t, ok, "request %d within the burst", i)
	}

	ok, err := limiter.Allow(ctx, "peer")
	require.NoError(t, err)
	assert.False(t, ok, "the bucket is drained")

	// Other keys have their own buckets.
	ok, err = limiter.Allow(ctx, "other-peer")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, limiter.Reset(ctx, "peer"))
	ok, err = limiter.Allow(ctx, "peer")
	require.NoError(t, err)
	assert.True(t, ok, "reset refills the bucket")
}

func TestRemoteHostLimiterKeysByHost(t *testing.T) {
	limiter := NewRemoteHostLimiter(1)
	ctx := context.Background()

	ok, err := limiter.Allow(ctx, "remote.example")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = limiter.Allow(ctx, "remote.example")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = limiter.Allow(ctx, "other.example")
	require.NoError(t, err)
	assert.True(t, ok, "hosts are throttled independently")
}
