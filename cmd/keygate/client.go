package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	mw "github.com/dropDatabas3/keygate/internal/http/middlewares"
	"github.com/dropDatabas3/keygate/internal/http/router"
)

// adminClient cliente mínimo de la superficie admin.
type adminClient struct {
	base   string // http://host:port[/prefix]/api/v1/admin
	apiKey string
	http   *http.Client
}

func newAdminClient(addr, prefix, apiKey string) *adminClient {
	base := strings.TrimRight(addr, "/")
	if p := strings.Trim(prefix, "/"); p != "" {
		base += "/" + p
	}
	return &adminClient{
		base:   base + router.AdminBasePath,
		apiKey: apiKey,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

// apiError cuerpo de error estándar del gateway.
type apiError struct {
	Status    int    `json:"-"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Detail    string `json:"detail"`
	RequestID string `json:"request_id"`
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// do ejecuta el request y decodifica la respuesta en out (si no es nil).
func (c *adminClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(mw.AdminKeyHeader, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		e := &apiError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(e)
		return e
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
