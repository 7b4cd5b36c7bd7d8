package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// Upload sends a multipart/form-data request with the given form
// fields and one file part. It carries the longer upload timeout by
// default and follows the same 401/refresh/retry contract as Do. The
// file is read fully up front so the body can be replayed on retry;
// the transport sets the multipart boundary via the content type.
func (c *Client) Upload(ctx context.Context, path string, fields map[string]string, fileField, fileName string, file io.Reader, opts ...Option) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := w.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("writing form field %s: %w", key, err)
		}
	}
	part, err := w.CreateFormFile(fileField, fileName)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("reading upload payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing multipart body: %w", err)
	}

	o := requestOptions{requiresAuth: true, timeout: c.uploadTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return c.send(ctx, http.MethodPost, path, buf.Bytes(), w.FormDataContentType(), o)
}
