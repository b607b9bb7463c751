// Package api is the REST client for the document service. The sync engine
// only needs FetchDocument; the other calls back the terminal client.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/burntcarrot/docsync/commons"
	"github.com/sirupsen/logrus"
)

const (
	defaultHttpTimeout        = 30 * time.Second
	defaultHttpConnectTimeout = 5 * time.Second
	defaultHttpTlsTimeout     = 5 * time.Second
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// StatusError is returned for non-2xx responses without a dedicated error.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func defaultClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultHttpConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHttpTlsTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHttpTimeout,
	}
}

// Client calls the document REST API on behalf of one bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithLogger sets the client's logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// NewClient returns a client for the API rooted at baseURL.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    defaultClient(),
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchDocument returns the document's current content, title and version.
func (c *Client) FetchDocument(ctx context.Context, id string) (commons.Document, error) {
	var doc commons.Document
	body, err := c.do(ctx, http.MethodGet, "/documents/"+url.PathEscape(id), nil)
	if err != nil {
		return doc, fmt.Errorf("fetch document %s: %w", id, err)
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return doc, fmt.Errorf("decode document %s: %w", id, err)
	}
	return doc, nil
}

// ListDocuments returns the documents visible to the token's user.
func (c *Client) ListDocuments(ctx context.Context) ([]commons.Document, error) {
	var docs []commons.Document
	body, err := c.do(ctx, http.MethodGet, "/documents", nil)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if err := json.Unmarshal(body, &docs); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	return docs, nil
}

// CreateDocumentArgs is the body of a create call.
type CreateDocumentArgs struct {
	Title string `json:"title"`
}

// CreateDocument creates an empty document.
func (c *Client) CreateDocument(ctx context.Context, title string) (commons.Document, error) {
	var doc commons.Document
	body, err := c.do(ctx, http.MethodPost, "/documents", &CreateDocumentArgs{Title: title})
	if err != nil {
		return doc, fmt.Errorf("create document: %w", err)
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return doc, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// ShareDocumentArgs is the body of a share call.
type ShareDocumentArgs struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ShareDocument gives email editor access to the document. The server answers
// with a plain text message.
func (c *Client) ShareDocument(ctx context.Context, id, email string) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/documents/"+url.PathEscape(id)+"/share", &ShareDocumentArgs{Email: email, Role: "editor"})
	if err != nil {
		return "", fmt.Errorf("share document %s: %w", id, err)
	}
	return strings.TrimSpace(string(body)), nil
}

func (c *Client) do(ctx context.Context, method, path string, args any) ([]byte, error) {
	var reqBody io.Reader
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if args != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.log.Debugf("%s %s", method, path)

	r, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	if r.StatusCode < 200 || r.StatusCode > 299 {
		// the response body is the error message
		message := strings.TrimSpace(string(body))
		switch r.StatusCode {
		case http.StatusNotFound:
			return nil, ErrNotFound
		case http.StatusUnauthorized:
			return nil, ErrUnauthorized
		case http.StatusForbidden:
			return nil, ErrForbidden
		}
		return nil, &StatusError{StatusCode: r.StatusCode, Message: message}
	}

	return body, nil
}
