package clients

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tejiriaustin/resource-monitor/config"
	"github.com/tejiriaustin/resource-monitor/models"
	"github.com/tejiriaustin/resource-monitor/monitoring"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type apiError struct {
	Error string `json:"error"`
}

type pathRequest struct {
	Path string `json:"path"`
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.APIEndpoint, "/"),
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

func (c *Client) Health() error {
	return c.do(http.MethodGet, "/health", nil, nil)
}

func (c *Client) Stats() (monitoring.Stats, error) {
	var stats monitoring.Stats
	err := c.do(http.MethodGet, "/stats", nil, &stats)
	return stats, err
}

func (c *Client) GetChangeEvents(path string, limit int) ([]models.ChangeEvent, error) {
	query := url.Values{}
	if path != "" {
		query.Set("path", path)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	endpoint := "/events"
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var events []models.ChangeEvent
	if err := c.do(http.MethodGet, endpoint, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) ListResources() ([]models.TrackedResource, error) {
	var resources []models.TrackedResource
	if err := c.do(http.MethodGet, "/resources", nil, &resources); err != nil {
		return nil, err
	}
	return resources, nil
}

func (c *Client) TrackResource(path string) (models.TrackedResource, error) {
	var resource models.TrackedResource
	err := c.do(http.MethodPost, "/resources", pathRequest{Path: path}, &resource)
	return resource, err
}

func (c *Client) UntrackResource(path string) error {
	return c.do(http.MethodDelete, "/resources", pathRequest{Path: path}, nil)
}

func (c *Client) do(method, endpoint string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error marshaling request: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("error building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error calling API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("API returned %s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("API returned non-OK status: %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}
