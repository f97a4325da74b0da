package client

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var httpDebug = os.Getenv("COPYTRADER_HTTP_DEBUG") != ""

// StatusError is a non-2xx reply with its body preserved, so callers can
// branch on the status class instead of parsing error strings.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, e.Body)
}

// Temporary reports whether a resend may succeed: server faults and rate
// limit pushback qualify, client errors do not.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// httpClient wraps net/http for the CLOB. The L2 HMAC covers the exact
// timestamp, method, path and body of a request, so nothing here may retry
// or rewrite a request behind the caller's back.
type httpClient struct {
	client *http.Client
	host   string
}

func newHTTPClient(host string, proxyURL *url.URL) *httpClient {
	transport := &http.Transport{
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if proxyURL != nil {
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &httpClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		host: strings.TrimSuffix(host, "/"),
	}
}

func (h *httpClient) get(ctx context.Context, endpoint string, headers map[string]string, params map[string]string) (*http.Response, error) {
	reqURL := h.host + endpoint
	if len(params) > 0 {
		u, err := url.Parse(reqURL)
		if err != nil {
			return nil, errors.Wrap(err, "parse request url")
		}
		q := u.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		reqURL = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}

	h.setDefaultHeaders(req)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return h.client.Do(req)
}

func (h *httpClient) post(ctx context.Context, endpoint string, headers map[string]string, body []byte) (*http.Response, error) {
	reqURL := h.host + endpoint

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bodyReader)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}

	h.setDefaultHeaders(req)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if httpDebug {
		os.Stderr.WriteString("[clob] POST " + reqURL + " " + string(body) + "\n")
	}

	return h.client.Do(req)
}

func (h *httpClient) setDefaultHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "copytrader-clob")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Content-Type", "application/json")

	if req.Method == http.MethodGet {
		req.Header.Set("Accept-Encoding", "gzip")
	}
}

// parseResponse decodes the body into result, unpacking gzip when the server
// compressed it. Non-2xx responses come back as errors carrying the body.
func parseResponse(resp *http.Response, result interface{}) error {
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return errors.Wrap(err, "open gzip reader")
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(reader)
		return &StatusError{Code: resp.StatusCode, Body: string(bodyBytes)}
	}

	if result != nil {
		bodyBytes, err := io.ReadAll(reader)
		if err != nil {
			return errors.Wrap(err, "read response body")
		}
		if err := json.Unmarshal(bodyBytes, result); err != nil {
			return errors.Wrapf(err, "decode response %q", string(bodyBytes))
		}
	}

	return nil
}
