// Package netx contains HTTP helpers shared by the outbound clients and the CLI.
package netx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// MaxBodySize caps how much of a response body is read into memory.
const MaxBodySize = 1 << 20

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, string(e.Body))
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// ReadBody reads at most MaxBodySize bytes of resp and closes it. A non-2xx
// status is returned as *StatusError together with the body.
func ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return b, &StatusError{Code: resp.StatusCode, Body: b}
	}
	return b, nil
}

// Download fetches url with GET, typically a presigned object URL.
func Download(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	b, err := ReadBody(resp)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	return b, nil
}
