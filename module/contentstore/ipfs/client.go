package ipfs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/rs/zerolog"

	"github.com/wartime-penguins/notary/module/contentstore"
)

const (
	// hashFunction is the name the IPFS API uses for keccak-256.
	hashFunction = "keccak-256"
	cidVersion   = "1"

	maxErrorBody = 64 * 1024
)

// Client talks to the HTTP RPC API of an IPFS node.
type Client struct {
	log     zerolog.Logger
	baseURL string
	http    *http.Client
}

var _ contentstore.Store = (*Client)(nil)

// NewClient returns a client for the node API at apiURL, e.g. http://127.0.0.1:5001.
func NewClient(log zerolog.Logger, apiURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ipfs api url %q: %w", apiURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid ipfs api url %q: unsupported scheme %q", apiURL, u.Scheme)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		log:     log.With().Str("component", "ipfs_client").Logger(),
		baseURL: strings.TrimRight(apiURL, "/") + "/api/v0",
		http:    httpClient,
	}, nil
}

type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

type refResponse struct {
	Ref string `json:"Ref"`
	Err string `json:"Err"`
}

func (c *Client) Publish(ctx context.Context, name string, data []byte) (cid.Cid, error) {
	added, err := c.add(ctx, []contentstore.File{{Name: name, Data: data}}, false)
	if err != nil {
		return cid.Undef, err
	}

	// a single file add yields exactly one entry
	root, err := cid.Decode(added[len(added)-1].Hash)
	if err != nil {
		return cid.Undef, fmt.Errorf("could not decode address of %q: %w", name, err)
	}

	c.log.Debug().Str("name", name).Str("cid", root.String()).Int("size", len(data)).Msg("published file")
	return root, nil
}

func (c *Client) PublishDirectory(ctx context.Context, files []contentstore.File) (cid.Cid, error) {
	if len(files) == 0 {
		return cid.Undef, errors.New("cannot publish an empty directory")
	}

	added, err := c.add(ctx, files, true)
	if err != nil {
		return cid.Undef, err
	}

	// the wrapping directory is reported last, with an empty name
	wrapper := added[len(added)-1]
	if wrapper.Name != "" {
		return cid.Undef, fmt.Errorf("ipfs add did not report a wrapping directory (last entry %q)", wrapper.Name)
	}
	root, err := cid.Decode(wrapper.Hash)
	if err != nil {
		return cid.Undef, fmt.Errorf("could not decode directory address: %w", err)
	}

	c.log.Debug().Int("files", len(files)).Str("cid", root.String()).Msg("published directory")
	return root, nil
}

func (c *Client) add(ctx context.Context, files []contentstore.File, wrap bool) ([]addResponse, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := form.CreateFormFile("file", f.Name)
		if err != nil {
			return nil, fmt.Errorf("could not create form part for %q: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("could not write form part for %q: %w", f.Name, err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("could not close multipart form: %w", err)
	}

	params := url.Values{}
	params.Set("hash", hashFunction)
	params.Set("cid-version", cidVersion)
	params.Set("pin", "true")
	if wrap {
		params.Set("wrap-with-directory", "true")
	}

	resp, err := c.post(ctx, "add", params, form.FormDataContentType(), &body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var added []addResponse
	dec := json.NewDecoder(resp.Body)
	for {
		var entry addResponse
		err := dec.Decode(&entry)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("could not decode add response: %w", err)
		}
		added = append(added, entry)
	}
	if len(added) == 0 {
		return nil, errors.New("ipfs add returned no entries")
	}

	return added, nil
}

func (c *Client) EnumerateBlocks(ctx context.Context, root cid.Cid) ([]cid.Cid, error) {
	params := url.Values{}
	params.Set("arg", root.String())
	params.Set("recursive", "true")
	params.Set("unique", "true")

	resp, err := c.post(ctx, "refs", params, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// refs does not list the root itself
	cids := []cid.Cid{root}
	seen := map[cid.Cid]struct{}{root: {}}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var ref refResponse
		if err := json.Unmarshal(line, &ref); err != nil {
			return nil, fmt.Errorf("could not decode refs entry: %w", err)
		}
		if ref.Err != "" {
			return nil, fmt.Errorf("refs of %v failed: %s", root, ref.Err)
		}

		child, err := cid.Decode(ref.Ref)
		if err != nil {
			return nil, fmt.Errorf("could not decode ref %q: %w", ref.Ref, err)
		}
		if _, ok := seen[child]; ok {
			continue
		}
		seen[child] = struct{}{}
		cids = append(cids, child)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read refs of %v: %w", root, err)
	}

	return cids, nil
}

func (c *Client) Fetch(ctx context.Context, block cid.Cid) ([]byte, error) {
	params := url.Values{}
	params.Set("arg", block.String())

	resp, err := c.post(ctx, "block/get", params, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read block %v: %w", block, err)
	}
	return data, nil
}

// post calls an API endpoint. The caller owns the response body on success.
func (c *Client) post(ctx context.Context, endpoint string, params url.Values, contentType string, body io.Reader) (*http.Response, error) {
	target := c.baseURL + "/" + endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return nil, fmt.Errorf("could not create %s request: %w", endpoint, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ipfs api %s request failed: %w", endpoint, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readAPIError(endpoint, resp)
	}
	return resp, nil
}

func readAPIError(endpoint string, resp *http.Response) error {
	apiErr := &APIError{
		Endpoint: endpoint,
		Status:   resp.StatusCode,
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return apiErr
	}

	var body struct {
		Message string `json:"Message"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		apiErr.Message = body.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
