package netatmo

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jake-scott/netatmo-cli/internal/pkg/logging"
	"github.com/jake-scott/netatmo-cli/internal/pkg/netauth"
)

// DefaultBaseURL is the Netatmo API endpoint
const DefaultBaseURL = "https://api.netatmo.com"

const defaultRequestTimeout = time.Second * 15

// TokenSource supplies bearer tokens for outbound requests.  Invalidate
// drops the current token so the next Token call does a real exchange;
// Discard additionally throws away any persisted state after a fatal
// authorization failure.  netauth.Session implements it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
	Discard()
}

// Request describes one API exchange.  GET parameters are encoded into the
// query string, other methods are sent as a form body.
type Request struct {
	Method string
	Path   string
	Params url.Values
}

// Client performs authenticated Netatmo API exchanges, retrying exactly
// once on a token-related authorization failure.
type Client struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
}

func NewClient(tokens TokenSource) *Client {
	return &Client{
		baseURL: DefaultBaseURL,
		tokens:  tokens,
		client:  &http.Client{Timeout: defaultRequestTimeout},
	}
}

func (c *Client) WithBaseURL(u string) *Client {
	nc := *c
	nc.baseURL = strings.TrimSuffix(u, "/")
	return &nc
}

func (c *Client) WithTimeout(d time.Duration) *Client {
	nc := *c
	nc.client = &http.Client{Timeout: d}
	return &nc
}

// Do performs one logical API operation.  An authorization failure causes
// one token invalidation and one retry; a second authorization failure is
// fatal.  All other failures surface as typed errors without retry.
func (c *Client) Do(ctx context.Context, req Request, out interface{}) error {
	for attempt := 0; ; attempt++ {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}

		statusCode, body, err := c.send(ctx, req, token)
		if err != nil {
			return err
		}

		if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
			if attempt > 0 {
				// Even a freshly-exchanged token was rejected, so the
				// whole triple is worthless; drop it before giving up
				c.tokens.Discard()
				return &netauth.AuthError{Op: "request", Err: apiErrorFrom(statusCode, body)}
			}

			logging.Logger().Debugf("authorization rejected for %s, refreshing token and retrying", req.Path)
			c.tokens.Invalidate()
			continue
		}

		if statusCode != http.StatusOK {
			return &RequestError{Kind: KindHTTP, StatusCode: statusCode, Err: apiErrorFrom(statusCode, body)}
		}

		return decodeEnvelope(body, out)
	}
}

func (c *Client) send(ctx context.Context, r Request, token string) (int, []byte, error) {
	u := c.baseURL + r.Path

	var httpReq *http.Request
	var err error

	if r.Method == http.MethodGet {
		if len(r.Params) > 0 {
			u += "?" + r.Params.Encode()
		}
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	} else {
		httpReq, err = http.NewRequestWithContext(ctx, r.Method, u, strings.NewReader(r.Params.Encode()))
		if err == nil {
			httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return 0, nil, errors.Wrapf(err, "building %s request", r.Path)
	}

	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		kind := KindNetwork
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			kind = KindTimeout
		}
		return 0, nil, &RequestError{Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &RequestError{Kind: KindNetwork, Err: errors.Wrap(err, "reading response body")}
	}

	return resp.StatusCode, body, nil
}

func decodeEnvelope(body []byte, out interface{}) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &RequestError{Kind: KindDecode, Err: errors.Wrap(err, "decoding response envelope")}
	}

	if env.Error != nil {
		return &RequestError{Kind: KindHTTP, StatusCode: http.StatusOK,
			Err: errors.Errorf("api error %d: %s", env.Error.Code, env.Error.Message)}
	}

	if out == nil || len(env.Body) == 0 {
		return nil
	}

	if err := json.Unmarshal(env.Body, out); err != nil {
		return &RequestError{Kind: KindDecode, Err: errors.Wrap(err, "decoding response body")}
	}

	return nil
}
