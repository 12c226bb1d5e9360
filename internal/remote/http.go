package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dghubble/sling"

	"github.com/roach88/chainsync/internal/record"
	"github.com/roach88/chainsync/internal/store"
)

// Config configures an HTTPClient.
type Config struct {
	// Address is the base URL of the server, e.g. http://127.0.0.1:8888.
	Address string
	// Token is sent as "Authorization: Token <token>" when set.
	Token          string
	Timeout        time.Duration
	ConnectTimeout time.Duration
}

// HTTPClient talks to a Server over HTTP.
type HTTPClient struct {
	base *sling.Sling
}

var _ Client = (*HTTPClient)(nil)

// apiError is the body of every non-2xx response.
type apiError struct {
	Error string `json:"error"`
}

type nextParams struct {
	Host  string `url:"host"`
	Tag   string `url:"tag"`
	Start uint64 `url:"start"`
	Count uint64 `url:"count"`
}

// NewHTTPClient returns a client for cfg.Address.
func NewHTTPClient(cfg Config) *HTTPClient {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	hc := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: cfg.ConnectTimeout,
		},
	}

	base := sling.New().Client(hc).Base(strings.TrimRight(cfg.Address, "/")+"/").
		Set("Accept", "application/json")
	if cfg.Token != "" {
		base = base.Set("Authorization", "Token "+cfg.Token)
	}
	return &HTTPClient{base: base}
}

// do sends the request built by s with ctx attached.
func (c *HTTPClient) do(ctx context.Context, op string, s *sling.Sling, success any) error {
	req, err := s.Request()
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}

	var failure apiError
	resp, err := s.Do(req.WithContext(ctx), success, &failure)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return &TransportError{Op: op, Status: status, Err: err}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg := failure.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	err = errors.New(msg)
	if resp.StatusCode == http.StatusConflict {
		err = fmt.Errorf("%w: %s", store.ErrConflict, msg)
	}
	return &TransportError{Op: op, Status: resp.StatusCode, Err: err}
}

func (c *HTTPClient) Status(ctx context.Context) (record.Status, error) {
	var status record.Status
	if err := c.do(ctx, "status", c.base.New().Get("api/v0/record"), &status); err != nil {
		return record.Status{}, err
	}
	if status.Hosts == nil {
		status = record.NewStatus()
	}
	return status, nil
}

func (c *HTTPClient) Next(ctx context.Context, host record.HostID, tag string, start record.Idx, count uint64) ([]store.Record, error) {
	params := nextParams{Host: string(host), Tag: tag, Start: start, Count: count}
	rs := []store.Record{}
	op := fmt.Sprintf("next %s/%s#%d", host, tag, start)
	if err := c.do(ctx, op, c.base.New().Get("api/v0/record/next").QueryStruct(params), &rs); err != nil {
		return nil, err
	}
	return rs, nil
}

func (c *HTTPClient) Push(ctx context.Context, rs []store.Record) error {
	if len(rs) == 0 {
		return nil
	}
	op := fmt.Sprintf("push %d records", len(rs))
	return c.do(ctx, op, c.base.New().Post("api/v0/record").BodyJSON(rs), nil)
}
