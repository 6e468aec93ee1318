package httpsig

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func signedRequest(t *testing.T, key *rsa.PrivateKey, body []byte) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "https://remote.example/users/bob/inbox", bytes.NewReader(body))
	require.NoError(t, err)

	signer := NewSigner("https://local.example/users/alice#main-key", key)
	require.NoError(t, signer.Sign(req, body))
	return req
}

func TestSignVerifyRoundTrip(t *testing.T) {
	key := newTestKey(t)
	body := []byte(`{"type":"Follow"}`)
	req := signedRequest(t, key, body)

	sig, err := ParseSignature(req)
	require.NoError(t, err)
	assert.Equal(t, "https://local.example/users/alice#main-key", sig.KeyID)
	assert.Equal(t, Algorithm, sig.Algorithm)
	assert.Equal(t, []string{"(request-target)", "host", "date", "digest"}, sig.Headers)

	assert.NoError(t, Verify(req, body, sig, &key.PublicKey, DefaultHeaders))
}

func TestSignSynthesizesHeaders(t *testing.T) {
	key := newTestKey(t)
	body := []byte("hello")
	req := signedRequest(t, key, body)

	assert.NotEmpty(t, req.Header.Get("Date"))
	assert.Equal(t, Digest(body), req.Header.Get("Digest"))
}

func TestVerifyRejectsMutatedHeader(t *testing.T) {
	key := newTestKey(t)
	body := []byte(`{"type":"Like"}`)
	req := signedRequest(t, key, body)

	req.Header.Set("Date", "Thu, 01 Jan 1970 00:00:00 GMT")

	sig, err := ParseSignature(req)
	require.NoError(t, err)
	assert.Error(t, Verify(req, body, sig, &key.PublicKey, DefaultHeaders))
}

func TestVerifyRejectsMutatedBody(t *testing.T) {
	key := newTestKey(t)
	body := []byte(`{"type":"Like"}`)
	req := signedRequest(t, key, body)

	sig, err := ParseSignature(req)
	require.NoError(t, err)
	assert.Error(t, Verify(req, []byte(`{"type":"Delete"}`), sig, &key.PublicKey, DefaultHeaders))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	key := newTestKey(t)
	other := newTestKey(t)
	body := []byte("payload")
	req := signedRequest(t, key, body)

	sig, err := ParseSignature(req)
	require.NoError(t, err)
	assert.Error(t, Verify(req, body, sig, &other.PublicKey, DefaultHeaders))
}

func TestRepeatedHeaderValuesAreAllSigned(t *testing.T) {
	key := newTestKey(t)
	body := []byte("payload")
	req, err := http.NewRequest(http.MethodPost, "https://remote.example/users/bob/inbox", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Add("X-Forwarded-For", "10.0.0.1")
	req.Header.Add("X-Forwarded-For", "10.0.0.2")

	signer := NewSigner("https://local.example/users/alice#main-key", key)
	signer.Headers = []string{"(request-target)", "host", "date", "x-forwarded-for"}
	require.NoError(t, signer.Sign(req, body))

	sig, err := ParseSignature(req)
	require.NoError(t, err)
	require.NoError(t, Verify(req, body, sig, &key.PublicKey, signer.Headers))

	// Dropping one of the repeated values breaks the signature.
	req.Header.Del("X-Forwarded-For")
	req.Header.Add("X-Forwarded-For", "10.0.0.1")
	assert.Error(t, Verify(req, body, sig, &key.PublicKey, signer.Headers))
}

func TestVerifyRejectsHeaderSetMismatch(t *testing.T) {
	key := newTestKey(t)
	body := []byte("payload")
	req := signedRequest(t, key, body)

	sig, err := ParseSignature(req)
	require.NoError(t, err)
	err = Verify(req, body, sig, &key.PublicKey, []string{"(request-target)", "host", "date"})
	assert.ErrorContains(t, err, "mismatch")
}

func TestParseSignatureAuthorizationCarrier(t *testing.T) {
	key := newTestKey(t)
	body := []byte("payload")
	req := signedRequest(t, key, body)

	// Move the signature into the Authorization header.
	req.Header.Set("Authorization", "Signature "+req.Header.Get("Signature"))
	req.Header.Del("Signature")

	sig, err := ParseSignature(req)
	require.NoError(t, err)
	assert.NoError(t, Verify(req, body, sig, &key.PublicKey, DefaultHeaders))
}

func TestParseSignatureMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/inbox", nil)
	_, err := ParseSignature(req)
	assert.Error(t, err)
}

func TestParseSignatureDuplicateField(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/inbox", nil)
	req.Header.Set("Signature", `keyId="a",keyId="b",signature="Zm9v"`)
	_, err := ParseSignature(req)
	assert.ErrorContains(t, err, "duplicate")
}

func TestKeyPEMRoundTrip(t *testing.T) {
	key := newTestKey(t)

	privPEM, pubPEM, err := EncodeKeyPair(key)
	require.NoError(t, err)

	parsedPriv, err := ParsePrivateKey(privPEM)
	require.NoError(t, err)
	assert.True(t, key.Equal(parsedPriv))

	parsedPub, err := ParsePublicKey(pubPEM)
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(parsedPub))
}
