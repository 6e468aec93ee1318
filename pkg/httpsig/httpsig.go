// Package httpsig implements draft-cavage HTTP signatures with the
// rsa-sha256 algorithm: canonicalization of an ordered header list
// (including the synthetic (request-target) pseudo-header), signing
// with PKCS#1 v1.5 padding, and verification with an independent
// body-digest check.
package httpsig

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultHeaders is the header list signed on outbound requests.
var DefaultHeaders = []string{"(request-target)", "host", "date", "digest"}

// Algorithm is the only supported signature algorithm.
const Algorithm = "rsa-sha256"

// Signature carries the parsed fields of a Signature header.
type Signature struct {
	KeyID     string
	Algorithm string
	Headers   []string
	Value     []byte
}

// ParsePrivateKey decodes a PEM-encoded RSA private key (PKCS#8 or PKCS#1).
func ParsePrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("no PEM block in private key")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is not RSA")
		}
		return rsaKey, nil
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

// ParsePublicKey decodes a PEM-encoded RSA public key (PKIX or PKCS#1).
func ParsePublicKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("no PEM block in public key")
	}
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("public key is not RSA")
		}
		return rsaKey, nil
	}
	return x509.ParsePKCS1PublicKey(block.Bytes)
}

// EncodeKeyPair serializes an RSA key as PEM: the private key in
// PKCS#8 form, the public key in PKIX form.
func EncodeKeyPair(key *rsa.PrivateKey) (privPEM, pubPEM string, err error) {
	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", "", fmt.Errorf("marshaling private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("marshaling public key: %w", err)
	}
	privPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}))
	pubPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	return privPEM, pubPEM, nil
}

// Digest computes the SHA-256 body digest header value.
func Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(sum[:])
}

// Signer signs outbound requests with an actor's private key.
type Signer struct {
	KeyID      string
	PrivateKey *rsa.PrivateKey
	Headers    []string
}

// NewSigner creates a signer using the default header list.
func NewSigner(keyID string, key *rsa.PrivateKey) *Signer {
	return &Signer{KeyID: keyID, PrivateKey: key, Headers: DefaultHeaders}
}

// Sign synthesizes any missing Date/Digest/Host headers, builds the
// canonical signing string over the configured headers and attaches
// the Signature header to the request.
func (s *Signer) Sign(req *http.Request, body []byte) error {
	if s.PrivateKey == nil {
		return fmt.Errorf("no private key for %s", s.KeyID)
	}

	synthesizeHeaders(req, body, s.Headers)

	canonical, used, err := canonicalize(req, s.Headers)
	if err != nil {
		return err
	}

	digest := sha256.Sum256([]byte(canonical))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.PrivateKey, crypto.SHA256, digest[:])
	if err != nil {
		return fmt.Errorf("signing request: %w", err)
	}

	fields := []string{
		fmt.Sprintf("keyId=%q", s.KeyID),
		fmt.Sprintf("algorithm=%q", Algorithm),
		fmt.Sprintf("headers=%q", strings.Join(used, " ")),
		fmt.Sprintf("signature=%q", base64.StdEncoding.EncodeToString(sig)),
	}
	req.Header.Set("Signature", strings.Join(fields, ","))
	return nil
}

func synthesizeHeaders(req *http.Request, body []byte, headers []string) {
	for _, h := range headers {
		switch strings.ToLower(h) {
		case "date":
			if req.Header.Get("Date") == "" {
				req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
			}
		case "digest":
			if req.Header.Get("Digest") == "" && body != nil {
				req.Header.Set("Digest", Digest(body))
			}
		case "host":
			if req.Header.Get("Host") == "" && req.Host == "" {
				req.Host = req.URL.Host
			}
		}
	}
}

// canonicalize joins "name: value" lines for the given headers in
// order, substituting the (request-target) pseudo-header.
func canonicalize(req *http.Request, headers []string) (string, []string, error) {
	var lines []string
	var used []string
	for _, h := range headers {
		name := strings.ToLower(h)
		switch name {
		case "(request-target)":
			path := req.URL.RequestURI()
			lines = append(lines, fmt.Sprintf("(request-target): %s %s", strings.ToLower(req.Method), path))
		case "host":
			host := req.Host
			if host == "" {
				host = req.URL.Host
			}
			if host == "" {
				return "", nil, fmt.Errorf("header host not present")
			}
			lines = append(lines, "host: "+host)
		default:
			// Repeated header values join with ", " per draft-cavage.
			values := req.Header.Values(h)
			if len(values) == 0 || values[0] == "" {
				return "", nil, fmt.Errorf("header %s not present", h)
			}
			lines = append(lines, name+": "+strings.Join(values, ", "))
		}
		used = append(used, name)
	}
	return strings.Join(lines, "\n"), used, nil
}

// ParseSignature extracts the signature fields from a request,
// accepting both the Signature header and the
// "Authorization: Signature ..." carrier.
func ParseSignature(req *http.Request) (*Signature, error) {
	raw := req.Header.Get("Signature")
	if raw == "" {
		if auth := req.Header.Get("Authorization"); auth != "" {
			scheme, params, ok := strings.Cut(auth, " ")
			if ok && strings.EqualFold(scheme, "signature") {
				raw = params
			}
		}
	}
	if raw == "" {
		return nil, fmt.Errorf("no signature found in headers")
	}

	fields := make(map[string]string)
	for _, field := range splitFields(raw) {
		name, value, ok := strings.Cut(field, "=")
		if !ok {
			return nil, fmt.Errorf("malformed signature field %q", field)
		}
		name = strings.TrimSpace(name)
		if _, dup := fields[name]; dup {
			return nil, fmt.Errorf("duplicate field %s in signature", name)
		}
		fields[name] = strings.Trim(value, `"`)
	}

	if fields["keyId"] == "" {
		return nil, fmt.Errorf("keyId missing in signature")
	}
	if fields["signature"] == "" {
		return nil, fmt.Errorf("signature missing")
	}

	value, err := base64.StdEncoding.DecodeString(fields["signature"])
	if err != nil {
		return nil, fmt.Errorf("decoding signature: %w", err)
	}

	headers := []string{"(created)"}
	if fields["headers"] != "" {
		headers = strings.Split(fields["headers"], " ")
	}

	return &Signature{
		KeyID:     fields["keyId"],
		Algorithm: fields["algorithm"],
		Headers:   headers,
		Value:     value,
	}, nil
}

// splitFields splits on commas outside quoted values; base64
// signatures never contain commas but quoted values may.
func splitFields(raw string) []string {
	var out []string
	var buf strings.Builder
	inQuotes := false
	for _, r := range raw {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			buf.WriteRune(r)
		case r == ',' && !inQuotes:
			out = append(out, buf.String())
			buf.Reset()
		default:
			buf.WriteRune(r)
		}
	}
	if buf.Len() > 0 {
		out = append(out, buf.String())
	}
	return out
}

// Verify recomputes the canonical string of the inbound request and
// checks it against the signature with the signer's public key. The
// expected header set must match exactly what was signed. When the
// digest header was part of the signed set, the body hash is
// recomputed and compared independently.
func Verify(req *http.Request, body []byte, sig *Signature, key *rsa.PublicKey, expectedHeaders []string) error {
	if sig.Algorithm != "" && sig.Algorithm != Algorithm {
		return fmt.Errorf("unsupported signature algorithm %q", sig.Algorithm)
	}

	if len(expectedHeaders) > 0 {
		if strings.Join(sig.Headers, " ") != strings.Join(expectedHeaders, " ") {
			return fmt.Errorf("headers listed in signature mismatch with expectation")
		}
	}

	canonical, _, err := canonicalize(req, sig.Headers)
	if err != nil {
		return err
	}

	digest := sha256.Sum256([]byte(canonical))
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig.Value); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}

	for _, h := range sig.Headers {
		if strings.ToLower(h) == "digest" {
			if req.Header.Get("Digest") != Digest(body) {
				return fmt.Errorf("digest of body is invalid")
			}
		}
	}
	return nil
}
