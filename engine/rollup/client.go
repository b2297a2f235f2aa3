package rollup

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

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"github.com/wartime-penguins/notary/model/rollup"
)

// GIO domains understood by the rollup server.
const (
	// DomainKeccak256Preimage registers data as the preimage of its keccak-256 digest.
	DomainKeccak256Preimage uint16 = 0x02
)

const maxResponseBody = 16 * 1024 * 1024

// Client speaks the JSON-over-HTTP protocol of the rollup server.
type Client struct {
	log     zerolog.Logger
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the rollup server at serverURL, typically
// the value of ROLLUP_HTTP_SERVER_URL.
func NewClient(log zerolog.Logger, serverURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid rollup server url %q: %w", serverURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid rollup server url %q: unsupported scheme %q", serverURL, u.Scheme)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		log:     log.With().Str("component", "rollup_client").Logger(),
		baseURL: strings.TrimRight(serverURL, "/"),
		http:    httpClient,
	}, nil
}

type finishBody struct {
	Status rollup.Status `json:"status"`
}

type payloadBody struct {
	Payload string `json:"payload"`
}

type gioBody struct {
	Domain uint16 `json:"domain"`
	ID     string `json:"id"`
}

// Finish reports the status of the previous request and waits for the next
// one. It returns a nil request when the server has nothing pending.
func (c *Client) Finish(ctx context.Context, status rollup.Status) (*rollup.Request, error) {
	resp, err := c.post(ctx, "finish", finishBody{Status: status})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		return nil, nil
	case http.StatusOK:
	default:
		return nil, NewTransportError("finish", resp.StatusCode, readError(resp.Body))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, NewTransportError("finish", 0, fmt.Errorf("could not read response: %w", err))
	}

	return rollup.DecodeRequest(body)
}

// Notice emits a notice carrying payload.
func (c *Client) Notice(ctx context.Context, payload []byte) error {
	return c.send(ctx, "notice", payloadBody{Payload: hexutil.Encode(payload)}, isSuccess)
}

// Report emits a report carrying payload.
func (c *Client) Report(ctx context.Context, payload []byte) error {
	return c.send(ctx, "report", payloadBody{Payload: hexutil.Encode(payload)}, isSuccess)
}

// GIO hands data to the rollup server under the given domain. For
// DomainKeccak256Preimage the server keeps data retrievable by its
// keccak-256 digest.
func (c *Client) GIO(ctx context.Context, domain uint16, data []byte) error {
	return c.send(ctx, "gio", gioBody{Domain: domain, ID: hexutil.Encode(data)}, func(status int) bool {
		return status == http.StatusAccepted
	})
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func (c *Client) send(ctx context.Context, endpoint string, body interface{}, ok func(int) bool) error {
	resp, err := c.post(ctx, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !ok(resp.StatusCode) {
		return NewTransportError(endpoint, resp.StatusCode, readError(resp.Body))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
	return nil
}

// post sends body as JSON. The caller owns the response body.
func (c *Client) post(ctx context.Context, endpoint string, body interface{}) (*http.Response, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("could not encode %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("could not create %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug().Str("endpoint", endpoint).Int("size", len(encoded)).Msg("sending request")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, NewTransportError(endpoint, 0, err)
	}
	return resp, nil
}

func readError(body io.Reader) error {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(bytes.TrimSpace(raw)) == 0 {
		return errors.New("no response body")
	}
	return errors.New(strings.TrimSpace(string(raw)))
}
