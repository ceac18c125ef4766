// Package apiclient talks to the asset service HTTP API. The ingestion
// pipeline, the duplicate resolver, and the CLI all share this client.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"loft/internal/api"
	"loft/internal/asset"
	"loft/internal/services"
)

// HTTPDoer describes the HTTP client used for requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a thin wrapper over the service's REST surface.
type Client struct {
	baseURL string
	token   string
	client  HTTPDoer
}

// New builds a client for the given base URL. A nil doer falls back to
// http.DefaultClient.
func New(baseURL, token string, doer HTTPDoer) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   token,
		client:  doer,
	}
}

// BaseURL returns the configured service address.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// decodeError turns a non-2xx answer into a wrapped service error so
// callers can branch on the taxonomy instead of status codes.
func decodeError(resp *http.Response) error {
	var body api.ErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	message := body.Error
	if message == "" {
		message = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusRequestEntityTooLarge:
		return services.Wrap(services.ErrPayloadTooLarge, "transport", "upload",
			fmt.Sprintf("%s (size %d, limit %d)", message, body.SizeBytes, body.LimitBytes), nil)
	case http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "transport", "request", message, nil)
	case http.StatusBadRequest, http.StatusUnauthorized:
		return services.Wrap(services.ErrValidation, "transport", "request", message, nil)
	default:
		return services.Wrap(services.ErrTransport, "transport", "request",
			fmt.Sprintf("status %d: %s", resp.StatusCode, message), nil)
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) (int, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, services.Wrap(services.ErrTransport, "transport", "request", "request failed", err)
	}
	defer resp.Body.Close()

	// 409 carries a well-formed duplicate body, not an error envelope.
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusConflict {
		return resp.StatusCode, decodeError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, services.Wrap(services.ErrTransport, "transport", "decode", "invalid response body", err)
		}
	}
	return resp.StatusCode, nil
}

// Health probes the service.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var out api.HealthResponse
	if _, err := c.doJSON(ctx, http.MethodGet, "/healthz", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckDuplicate asks the index about a digest and, optionally, a
// filename. Either parameter may be empty.
func (c *Client) CheckDuplicate(ctx context.Context, hash, name string) (*api.DuplicateCheckResponse, error) {
	q := url.Values{}
	if hash != "" {
		q.Set("hash", hash)
	}
	if name != "" {
		q.Set("name", name)
	}
	var out api.DuplicateCheckResponse
	if _, err := c.doJSON(ctx, http.MethodGet, "/v1/duplicates?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadMeta carries sidecar metadata for a direct upload.
type UploadMeta struct {
	Filename    string
	ContentType string
	Width       int
	Height      int
	Duration    float64
	// Force stores the payload even when the server's dedup check would
	// have matched an existing asset.
	Force bool
}

// UploadDirect streams a small-tier payload as one multipart request.
// The body is piped, not buffered, so the payload reader is consumed as
// bytes go out on the wire. A duplicate answer comes back as a normal
// response with Duplicate set.
func (c *Client) UploadDirect(ctx context.Context, r io.Reader, meta UploadMeta) (*api.UploadResponse, error) {
	pr, pw := io.Pipe()
	w := multipart.NewWriter(pw)

	go func() {
		writeField := func(name, value string) {
			if value != "" {
				_ = w.WriteField(name, value)
			}
		}
		if meta.Width > 0 {
			writeField("width", fmt.Sprintf("%d", meta.Width))
		}
		if meta.Height > 0 {
			writeField("height", fmt.Sprintf("%d", meta.Height))
		}
		if meta.Duration > 0 {
			writeField("duration", fmt.Sprintf("%.3f", meta.Duration))
		}

		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, meta.Filename))
		header.Set("Content-Type", meta.ContentType)
		part, err := w.CreatePart(header)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(fmt.Errorf("read payload: %w", err))
			return
		}
		pw.CloseWithError(w.Close())
	}()

	path := "/v1/assets"
	if meta.Force {
		path += "?force=1"
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransport, "transport", "upload", "request failed", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusConflict:
		var out api.UploadResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, services.Wrap(services.ErrTransport, "transport", "decode", "invalid upload response", err)
		}
		return &out, nil
	default:
		return nil, decodeError(resp)
	}
}

// StartSession opens a chunked upload session.
func (c *Client) StartSession(ctx context.Context, req api.ChunkStartRequest) (*api.ChunkStartResponse, error) {
	var out api.ChunkStartResponse
	if _, err := c.doJSON(ctx, http.MethodPost, "/v1/uploads", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PutChunk uploads one chunk. The final chunk's answer carries the
// UploadResponse; earlier chunks return only an acknowledgement.
func (c *Client) PutChunk(ctx context.Context, sessionID string, index int, r io.Reader, size int64) (*api.ChunkAck, *api.UploadResponse, error) {
	path := fmt.Sprintf("/v1/uploads/%s/chunks/%d", sessionID, index)
	req, err := c.newRequest(ctx, http.MethodPut, path, r)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = size

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrTransport, "transport", "chunk", "request failed", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var ack api.ChunkAck
		if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
			return nil, nil, services.Wrap(services.ErrTransport, "transport", "decode", "invalid chunk ack", err)
		}
		return &ack, nil, nil
	case http.StatusCreated, http.StatusConflict:
		var out api.UploadResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, nil, services.Wrap(services.ErrTransport, "transport", "decode", "invalid upload response", err)
		}
		return nil, &out, nil
	default:
		return nil, nil, decodeError(resp)
	}
}

// GetAsset fetches one descriptor.
func (c *Client) GetAsset(ctx context.Context, id string) (*asset.Descriptor, error) {
	var out asset.Descriptor
	if _, err := c.doJSON(ctx, http.MethodGet, "/v1/assets/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAssets fetches up to limit descriptors, newest first.
func (c *Client) ListAssets(ctx context.Context, limit int) ([]asset.Descriptor, error) {
	var out struct {
		Assets []asset.Descriptor `json:"assets"`
	}
	path := "/v1/assets"
	if limit > 0 {
		path = fmt.Sprintf("/v1/assets?limit=%d", limit)
	}
	if _, err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Assets, nil
}

// AttachUsage records one usage location on an asset.
func (c *Client) AttachUsage(ctx context.Context, assetID string, loc asset.UsageLocation) (*api.UsageResponse, error) {
	return c.usageMutation(ctx, http.MethodPost, assetID, loc)
}

// DetachUsage removes one usage location from an asset.
func (c *Client) DetachUsage(ctx context.Context, assetID string, loc asset.UsageLocation) (*api.UsageResponse, error) {
	return c.usageMutation(ctx, http.MethodDelete, assetID, loc)
}

func (c *Client) usageMutation(ctx context.Context, method, assetID string, loc asset.UsageLocation) (*api.UsageResponse, error) {
	req := api.UsageRequest{PropertyID: loc.PropertyID, ZoneID: loc.ZoneID, StepID: loc.StepID}
	var out api.UsageResponse
	path := "/v1/assets/" + url.PathEscape(assetID) + "/usage"
	if _, err := c.doJSON(ctx, method, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeletionReport asks which of the given assets are still referenced.
func (c *Client) DeletionReport(ctx context.Context, assetIDs []string) (*api.DeletionReportResponse, error) {
	var out api.DeletionReportResponse
	req := api.DeletionReportRequest{AssetIDs: assetIDs}
	if _, err := c.doJSON(ctx, http.MethodPost, "/v1/assets/deletion-report", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
