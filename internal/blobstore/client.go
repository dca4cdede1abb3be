package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when the document id does not exist.
	ErrNotFound = errors.New("blobstore: document not found")
	// ErrUnauthorized is returned when the credential is rejected.
	ErrUnauthorized = errors.New("blobstore: unauthorized")
)

// Store is the remote document interface used by the gateway.
// It is implemented by *Client.
type Store interface {
	Fetch(ctx context.Context) (*Document, error)
	Patch(ctx context.Context, files map[string]*string) (*Document, error)
}

var _ Store = (*Client)(nil)

// File is one named file within a document.
type File struct {
	Filename  string `json:"filename,omitempty"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated,omitempty"`
	RawURL    string `json:"raw_url,omitempty"`
}

// Document is a fetched remote document.
type Document struct {
	ID    string          `json:"id"`
	Files map[string]File `json:"files"`
	ETag  string          `json:"-"`
}

// Content returns the content of filename and whether the file exists.
func (d *Document) Content(filename string) (string, bool) {
	if d == nil {
		return "", false
	}
	f, ok := d.Files[filename]
	if !ok {
		return "", false
	}
	return f.Content, true
}

// Client talks to the document store over HTTP.
type Client struct {
	baseURL   *url.URL
	docID     string
	token     string
	http      *http.Client
	userAgent string
}

const (
	defaultBaseURL   = "https://api.github.com"
	defaultUserAgent = "knoldeck/0.1"
	defaultTimeout   = 10 * time.Second
)

// NewClient builds a Client for the document docID. An empty baseURL selects
// the public Gist API; a zero timeout selects the default.
func NewClient(baseURL, docID, token string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(docID) == "" {
		return nil, fmt.Errorf("document id required")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must include scheme and host", baseURL)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:   base,
		docID:     docID,
		token:     token,
		http:      &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
	}, nil
}

// Fetch retrieves the whole document. Truncated files are completed from
// their raw URL.
func (c *Client) Fetch(ctx context.Context) (*Document, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var doc Document
	etag, err := c.do(ctx, http.MethodGet, nil, &doc)
	if err != nil {
		return nil, err
	}
	doc.ETag = etag
	for name, f := range doc.Files {
		if !f.Truncated || f.RawURL == "" {
			continue
		}
		content, err := c.fetchRaw(ctx, f.RawURL)
		if err != nil {
			return nil, fmt.Errorf("fetch raw file %s: %w", name, err)
		}
		f.Content = content
		f.Truncated = false
		doc.Files[name] = f
	}
	return &doc, nil
}

type patchRequest struct {
	Files map[string]*File `json:"files"`
}

// Patch creates, updates or deletes files. A nil content deletes the file.
// Files absent from the map are left untouched.
func (c *Client) Patch(ctx context.Context, files map[string]*string) (*Document, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to patch")
	}
	body := patchRequest{Files: make(map[string]*File, len(files))}
	for name, content := range files {
		if content == nil {
			body.Files[name] = nil
			continue
		}
		body.Files[name] = &File{Content: *content}
	}
	var doc Document
	etag, err := c.do(ctx, http.MethodPatch, body, &doc)
	if err != nil {
		return nil, err
	}
	doc.ETag = etag
	return &doc, nil
}

func (c *Client) do(ctx context.Context, method string, payload, dest any) (string, error) {
	reqURL := c.baseURL.ResolveReference(&url.URL{Path: "gists/" + url.PathEscape(c.docID)})

	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return "", fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := statusError(method, resp.StatusCode); err != nil {
		return "", err
	}
	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.Header.Get("ETag"), nil
}

func (c *Client) fetchRaw(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := statusError(http.MethodGet, resp.StatusCode); err != nil {
		return "", err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read raw file: %w", err)
	}
	return string(data), nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
}

func statusError(method string, code int) error {
	switch {
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrUnauthorized
	case code >= 400:
		return fmt.Errorf("%s returned status %d", method, code)
	}
	return nil
}
