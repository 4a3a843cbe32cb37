// Package http wraps incoming requests so their bodies can be read more
// than once. Webhook handlers validate a request and then forward it, and
// both steps consume the body.
package http

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// BufferedRequest buffers the body of an http request at construction.
// Each accessor hands back the request with a fresh body reader.
type BufferedRequest struct {
	request *http.Request
	body    []byte
}

func NewBufferedRequest(request *http.Request) (*BufferedRequest, error) {
	body, err := io.ReadAll(request.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading request body")
	}
	request.Body = io.NopCloser(bytes.NewReader(body))

	return &BufferedRequest{
		request: request,
		body:    body,
	}, nil
}

func (r *BufferedRequest) GetRequest() *http.Request {
	r.request.Body = io.NopCloser(bytes.NewReader(r.body))
	return r.request
}

func (r *BufferedRequest) GetRequestWithContext(ctx context.Context) *http.Request {
	return r.GetRequest().WithContext(ctx)
}

func (r *BufferedRequest) GetHeader(key string) string {
	return r.request.Header.Get(key)
}

func (r *BufferedRequest) GetBody() io.Reader {
	return bytes.NewReader(r.body)
}
