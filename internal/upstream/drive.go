package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultDriveBaseURL = "https://www.googleapis.com/drive/v3"

// CredentialSource produces bearer credentials for the upstream store.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

// DriveClient streams file bytes from a Drive-style HTTP API using bearer
// credentials from a CredentialSource. Range headers are forwarded verbatim.
type DriveClient struct {
	credentials CredentialSource
	baseURL     string
	httpClient  *http.Client
}

// NewDriveClient constructs a client for the hosted Drive API. The header
// timeout bounds how long fetch initiation may take; it does not bound the
// body, which streams for the duration of playback.
func NewDriveClient(credentials CredentialSource, headerTimeout time.Duration) *DriveClient {
	if credentials == nil {
		panic("upstream: credential source must not be nil")
	}
	if headerTimeout <= 0 {
		headerTimeout = 30 * time.Second
	}
	return &DriveClient{
		credentials: credentials,
		baseURL:     defaultDriveBaseURL,
		httpClient: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: headerTimeout},
		},
	}
}

// WithBaseURL points the client at an alternate API host. Useful for tests.
func (c *DriveClient) WithBaseURL(baseURL string) *DriveClient {
	if baseURL != "" {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
	return c
}

// Fetch issues a ranged media download for the backing file. The returned
// body streams directly from upstream and is cancelled with ctx.
func (c *DriveClient) Fetch(ctx context.Context, fileID, byteRange string) (*Object, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, fmt.Errorf("upstream: file id is required")
	}

	token, err := c.credentials.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire upstream credential: %w", err)
	}

	endpoint := fmt.Sprintf("%s/files/%s?alt=media&supportsAllDrives=true", c.baseURL, url.PathEscape(fileID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if byteRange != "" {
		req.Header.Set("Range", byteRange)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch upstream bytes for %s: %w", fileID, err)
	}

	return &Object{
		Status: resp.StatusCode,
		Header: passthroughHeaders(resp.Header),
		Body:   resp.Body,
	}, nil
}

var _ Client = (*DriveClient)(nil)
