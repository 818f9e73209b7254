// Package trmnl pushes merge variables to a TRMNL e-ink display webhook.
package trmnl

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/resty.v1"

	"github.com/jake-scott/netatmo-cli/internal/pkg/logging"
)

const defaultPushTimeout = time.Second * 15

// Client posts merge-variable payloads to one webhook URL
type Client struct {
	webhookURL string
	rc         *resty.Client
}

func NewClient(webhookURL string) *Client {
	return &Client{
		webhookURL: webhookURL,
		rc:         resty.New().SetTimeout(defaultPushTimeout),
	}
}

func (c *Client) WithTimeout(d time.Duration) *Client {
	nc := *c
	nc.rc = resty.New().SetTimeout(d)
	return &nc
}

type pushPayload struct {
	MergeVariables map[string]string `json:"merge_variables"`
}

// Push sends one set of merge variables to the webhook
func (c *Client) Push(vars map[string]string) error {
	logging.Logger().Debugf("pushing %d merge variables to TRMNL", len(vars))

	resp, err := c.rc.R().
		SetHeader("Content-Type", "application/json").
		SetBody(pushPayload{MergeVariables: vars}).
		Post(c.webhookURL)
	if err != nil {
		return errors.Wrap(err, "pushing merge variables")
	}

	if resp.StatusCode() != http.StatusOK {
		return errors.Errorf("non-200 code from TRMNL webhook: %d (%s)", resp.StatusCode(), resp.Status())
	}

	return nil
}
