// Package transport implements the signed HTTP client the federation
// distributor uses to talk to remote instances.
package transport

import (
	"bytes"
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"fedbox/domain/rdf"
	"fedbox/pkg/common"
	apperrors "fedbox/pkg/errors"
	"fedbox/pkg/httpsig"
)

// maxResponseBytes caps pulled documents; remote instances are not
// trusted to be reasonable.
const maxResponseBytes = 4 << 20

// KeySource resolves the signing key of a local actor.
type KeySource interface {
	SigningKey(ctx context.Context, actor rdf.Term) (string, *rsa.PrivateKey, error)
}

// Client performs signed GETs and POSTs on behalf of local actors.
type Client struct {
	httpClient *http.Client
	keys       KeySource
	userAgent  string
	logger     *zap.Logger
}

// NewClient creates the federation HTTP client.
func NewClient(keys KeySource, timeout time.Duration, userAgent string, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		keys:       keys,
		userAgent:  userAgent,
		logger:     logger,
	}
}

// Get fetches iri with a signature from onBehalfOf's key.
func (c *Client) Get(ctx context.Context, onBehalfOf, iri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iri, nil)
	if err != nil {
		return nil, apperrors.NewValidationError("malformed IRI " + iri)
	}
	req.Header.Set("Accept", common.ContentTypeLDJSON)
	req.Header.Set("User-Agent", c.userAgent)

	if err := c.sign(ctx, onBehalfOf, req, nil); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError("GET "+iri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.NewExternalError(iri, fmt.Errorf("remote returned status %d", resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.NewNetworkError("reading response from "+iri, err)
	}
	return body, nil
}

// Post delivers body to inbox, signed with onBehalfOf's key, and
// returns the response status.
func (c *Client) Post(ctx context.Context, onBehalfOf, inbox string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inbox, bytes.NewReader(body))
	if err != nil {
		return 0, apperrors.NewValidationError("malformed inbox IRI " + inbox)
	}
	req.Header.Set("Content-Type", common.ContentTypeLDJSON)
	req.Header.Set("User-Agent", c.userAgent)

	if err := c.sign(ctx, onBehalfOf, req, body); err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, apperrors.NewNetworkError("POST "+inbox, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	c.logger.Debug("delivery attempted",
		zap.String("inbox", inbox),
		zap.Int("status", resp.StatusCode))
	return resp.StatusCode, nil
}

func (c *Client) sign(ctx context.Context, onBehalfOf string, req *http.Request, body []byte) error {
	keyID, priv, err := c.keys.SigningKey(ctx, rdf.IRI(onBehalfOf))
	if err != nil {
		return err
	}
	signer := httpsig.NewSigner(keyID, priv)
	if body == nil {
		// Bodyless requests carry no digest to sign.
		signer.Headers = []string{"(request-target)", "host", "date"}
	}
	if err := signer.Sign(req, body); err != nil {
		return apperrors.Wrap(err, "request signing failed")
	}
	return nil
}
