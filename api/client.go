package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"runtime"

	"github.com/bentoml/bento/envconfig"
	"github.com/bentoml/bento/version"
)

// Client talks to a bento API server.
type Client struct {
	base *url.URL
	http *http.Client
}

func NewClient(base *url.URL, http *http.Client) *Client {
	return &Client{base: base, http: http}
}

// ClientFromEnvironment creates a client for the server named by
// BENTOML_HOST, defaulting to http://127.0.0.1:3000.
func ClientFromEnvironment() (*Client, error) {
	host, err := envconfig.GetHost()
	if err != nil {
		return nil, err
	}
	return &Client{
		base: &url.URL{Scheme: host.Scheme, Host: net.JoinHostPort(host.Host, host.Port)},
		http: http.DefaultClient,
	}, nil
}

func checkError(resp *http.Response, body []byte) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	apiError := StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	if err := json.Unmarshal(body, &apiError); err != nil {
		apiError.ErrorMessage = string(body)
	}
	return apiError
}

func (c *Client) do(ctx context.Context, method, path string, reqData, respData any) error {
	var reqBody io.Reader
	switch data := reqData.(type) {
	case io.Reader:
		reqBody = data
	case nil:
	default:
		bts, err := json.Marshal(data)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(bts)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), reqBody)
	if err != nil {
		return err
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", fmt.Sprintf("bento/%s (%s %s) Go/%s", version.Version, runtime.GOARCH, runtime.GOOS, runtime.Version()))

	respObj, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer respObj.Body.Close()

	respBody, err := io.ReadAll(respObj.Body)
	if err != nil {
		return err
	}
	if err := checkError(respObj, respBody); err != nil {
		return err
	}
	if len(respBody) > 0 && respData != nil {
		return json.Unmarshal(respBody, respData)
	}
	return nil
}

// Heartbeat checks that the server is reachable.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodHead, "/", nil, nil)
}

// Version returns the server's version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var resp VersionResponse
	if err := c.do(ctx, http.MethodGet, "/api/version", nil, &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}

// List returns every bento in the server's store, newest first.
func (c *Client) List(ctx context.Context) (*ListBentoResponse, error) {
	var resp ListBentoResponse
	if err := c.do(ctx, http.MethodGet, "/api/bentos", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListVersions returns the stored versions of one bento name, newest first.
func (c *Client) ListVersions(ctx context.Context, name string) (*ListBentoResponse, error) {
	var resp ListBentoResponse
	if err := c.do(ctx, http.MethodGet, "/api/bentos/"+name, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Show returns one bento. An empty version resolves to latest.
func (c *Client) Show(ctx context.Context, name, version string) (*BentoResponse, error) {
	if version == "" {
		version = "latest"
	}
	var resp BentoResponse
	if err := c.do(ctx, http.MethodGet, "/api/bentos/"+name+"/"+version, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Delete removes one bento from the server's store. An empty version
// resolves to latest.
func (c *Client) Delete(ctx context.Context, name, version string) error {
	if version == "" {
		version = "latest"
	}
	return c.do(ctx, http.MethodDelete, "/api/bentos/"+name+"/"+version, nil, nil)
}

// Export streams the bento as an archive in the given format to w.
func (c *Client) Export(ctx context.Context, name, version, format string, w io.Writer) error {
	if version == "" {
		version = "latest"
	}
	requestURL := c.base.JoinPath("/api/bentos/" + name + "/" + version + "/export")
	if format != "" {
		requestURL.RawQuery = url.Values{"format": {format}}.Encode()
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return checkError(resp, body)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// Import uploads an archive read from r and saves it into the server's
// store. An empty format means the default bento archive format.
func (c *Client) Import(ctx context.Context, format string, r io.Reader) (*ImportResponse, error) {
	requestURL := c.base.JoinPath("/api/bentos/import")
	if format != "" {
		requestURL.RawQuery = url.Values{"format": {format}}.Encode()
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL.String(), r)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/octet-stream")

	respObj, err := c.http.Do(request)
	if err != nil {
		return nil, err
	}
	defer respObj.Body.Close()

	body, err := io.ReadAll(respObj.Body)
	if err != nil {
		return nil, err
	}
	if err := checkError(respObj, body); err != nil {
		return nil, err
	}
	var resp ImportResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Models returns every model in the server's store, newest first.
func (c *Client) Models(ctx context.Context) (*ListModelResponse, error) {
	var resp ListModelResponse
	if err := c.do(ctx, http.MethodGet, "/api/models", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteModel removes one model from the server's store. An empty version
// resolves to latest.
func (c *Client) DeleteModel(ctx context.Context, name, version string) error {
	if version == "" {
		version = "latest"
	}
	return c.do(ctx, http.MethodDelete, "/api/models/"+name+"/"+version, nil, nil)
}
