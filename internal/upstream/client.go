package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"streamgate/internal/domain"
	"streamgate/internal/domain/ports"
)

// Client talks to the upstream media server's HTTP API. Timeouts come from
// the caller's context; streaming fetches must not be capped by a
// client-wide deadline.
type Client struct {
	http   *http.Client
	logger *slog.Logger
}

func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

var _ ports.MediaServer = (*Client)(nil)

// authHeader identifies the front end to the upstream server. The device id
// is fixed: all streaming requests share one synthetic viewer session.
const authHeader = `MediaBrowser Client="streamgate", Device="streamgate-proxy", DeviceId="streamgate-proxy", Version="1.0"`

type wireAuthRequest struct {
	Username string `json:"Username"`
	Pw       string `json:"Pw"`
}

type wireAuthResponse struct {
	AccessToken string `json:"AccessToken"`
}

type wireUser struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

type wireMediaStream struct {
	Index        int    `json:"Index"`
	Type         string `json:"Type"`
	Codec        string `json:"Codec"`
	Language     string `json:"Language"`
	DisplayTitle string `json:"DisplayTitle"`
	IsDefault    bool   `json:"IsDefault"`
	Height       int    `json:"Height"`
}

type wireMediaSource struct {
	ID           string            `json:"Id"`
	Container    string            `json:"Container"`
	MediaStreams []wireMediaStream `json:"MediaStreams"`
}

type wireItem struct {
	ID           string            `json:"Id"`
	Name         string            `json:"Name"`
	Type         string            `json:"Type"`
	SeriesName   string            `json:"SeriesName"`
	Overview     string            `json:"Overview"`
	RunTimeTicks int64             `json:"RunTimeTicks"`
	MediaSources []wireMediaSource `json:"MediaSources"`
}

type wireItemsPage struct {
	Items []wireItem `json:"Items"`
}

func (c *Client) Authenticate(ctx context.Context, serverURL, username, password string) (string, error) {
	body, err := json.Marshal(wireAuthRequest{Username: username, Pw: password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(serverURL, "/")+"/Users/AuthenticateByName", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Emby-Authorization", authHeader)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUpstreamUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: authenticate status %d", domain.ErrAuthFailed, resp.StatusCode)
	}

	var auth wireAuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	if auth.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", domain.ErrAuthFailed)
	}
	return auth.AccessToken, nil
}

func (c *Client) ResolveViewerID(ctx context.Context, serverURL, token string) (string, error) {
	var user wireUser
	if err := c.getJSON(ctx, serverURL, "/Users/Me", token, &user); err != nil {
		return "", err
	}
	if user.ID == "" {
		return "", domain.ErrNotFound
	}
	return user.ID, nil
}

func (c *Client) GetItem(ctx context.Context, serverURL, token, viewerID string, itemID domain.ItemID) (domain.MediaItem, error) {
	path := "/Users/" + url.PathEscape(viewerID) + "/Items/" + url.PathEscape(string(itemID))
	var item wireItem
	if err := c.getJSON(ctx, serverURL, path, token, &item); err != nil {
		return domain.MediaItem{}, err
	}
	return itemFromWire(item), nil
}

func (c *Client) ListItems(ctx context.Context, serverURL, token, viewID string) ([]domain.MediaItem, error) {
	path := "/Items?Recursive=true&ParentId=" + url.QueryEscape(viewID)
	var page wireItemsPage
	if err := c.getJSON(ctx, serverURL, path, token, &page); err != nil {
		return nil, err
	}
	items := make([]domain.MediaItem, 0, len(page.Items))
	for _, it := range page.Items {
		items = append(items, itemFromWire(it))
	}
	return items, nil
}

func (c *Client) Fetch(ctx context.Context, target string, asText bool) (ports.UpstreamResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return ports.UpstreamResponse{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ports.UpstreamResponse{}, err
	}

	out := ports.UpstreamResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if asText {
		defer resp.Body.Close()
		text, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return ports.UpstreamResponse{}, err
		}
		out.Text = string(text)
		return out, nil
	}
	out.Body = resp.Body
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, serverURL, path, token string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(serverURL, "/")+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Emby-Token", token)
	req.Header.Set("X-Emby-Authorization", authHeader)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.ErrAuthFailed
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("upstream status %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func itemFromWire(it wireItem) domain.MediaItem {
	item := domain.MediaItem{
		ID:           domain.ItemID(it.ID),
		Name:         it.Name,
		Type:         it.Type,
		SeriesName:   it.SeriesName,
		Overview:     it.Overview,
		RuntimeTicks: it.RunTimeTicks,
	}
	for _, src := range it.MediaSources {
		source := domain.MediaSource{ID: src.ID, Container: src.Container}
		for _, s := range src.MediaStreams {
			source.Streams = append(source.Streams, domain.MediaStream{
				Index:    s.Index,
				Type:     s.Type,
				Codec:    s.Codec,
				Language: s.Language,
				Title:    s.DisplayTitle,
				Default:  s.IsDefault,
				Height:   s.Height,
			})
		}
		item.MediaSources = append(item.MediaSources, source)
	}
	return item
}
