package product

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/tidwall/gjson"
)

// DefaultEndpoint is the JSON-RPC endpoint of the product API.
const DefaultEndpoint = "https://spaces.archilogic.com/api/v2"

// Product is the result of Product.read.
type Product struct {
	ID           string  `json:"productResourceId,omitempty"`
	Name         string  `json:"name,omitempty"`
	Manufacturer string  `json:"manufacturer,omitempty"`
	Data3dURL    string  `json:"data3dUrl,omitempty"`
	Data3d       *Data3d `json:"data3d,omitempty"`
}

// Data3d is the mesh description of a product.
type Data3d struct {
	Meshes                        map[string]Mesh     `json:"meshes"`
	Materials                     map[string]any      `json:"materials,omitempty"`
	AlternativeMaterialsByMeshKey map[string][]string `json:"alternativeMaterialsByMeshKey,omitempty"`
}

// Mesh keeps every attribute of a mesh; only the material is interpreted.
type Mesh map[string]any

// Material returns the name of the mesh's material.
func (m Mesh) Material() string {
	s, _ := m["material"].(string)
	return s
}

// SetMaterial replaces the mesh's material.
func (m Mesh) SetMaterial(name string) {
	m["material"] = name
}

// RPCError is an error envelope returned by the API.
type RPCError struct {
	Code    int64
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("product API error %d: %s", e.Code, e.Message)
}

// Client talks to the product API.
type Client struct {
	endpoint string
	http     *http.Client
	nextID   atomic.Int64
}

// NewClient creates a client. A nil httpClient uses http.DefaultClient.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{endpoint: endpoint, http: httpClient}
}

// Get reads a product and makes sure its mesh data is loaded.
func (c *Client) Get(ctx context.Context, id string) (*Product, error) {
	result, err := c.call(ctx, "Product.read", map[string]any{"resourceId": id})
	if err != nil {
		return nil, fmt.Errorf("failed to read product %s: %w", id, err)
	}

	var p Product
	if err := json.Unmarshal([]byte(result.Raw), &p); err != nil {
		return nil, fmt.Errorf("failed to decode product %s: %w", id, err)
	}
	if p.ID == "" {
		p.ID = id
	}
	if p.Data3d != nil {
		return &p, nil
	}
	if p.Data3dURL == "" {
		return nil, fmt.Errorf("product %s has neither data3d nor data3dUrl", id)
	}

	data3d, err := c.fetchData3d(ctx, p.Data3dURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load data3d of product %s: %w", id, err)
	}
	p.Data3d = data3d
	return &p, nil
}

func (c *Client) call(ctx context.Context, method string, params any) (gjson.Result, error) {
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      c.nextID.Add(1),
	})
	if err != nil {
		return gjson.Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	data, err := c.do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("invalid JSON-RPC response")
	}
	envelope := gjson.ParseBytes(data)
	if e := envelope.Get("error"); e.Exists() && e.Type != gjson.Null {
		return gjson.Result{}, &RPCError{Code: e.Get("code").Int(), Message: e.Get("message").String()}
	}
	result := envelope.Get("result")
	if !result.IsObject() {
		return gjson.Result{}, fmt.Errorf("JSON-RPC response has no result object")
	}
	return result, nil
}

func (c *Client) fetchData3d(ctx context.Context, url string) (*Data3d, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	data, err := c.do(req)
	if err != nil {
		return nil, err
	}
	raw := gjson.ParseBytes(data)
	if nested := raw.Get("data3d"); nested.IsObject() {
		raw = nested
	}
	var d Data3d
	if err := json.Unmarshal([]byte(raw.Raw), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: unexpected status %s", req.Method, req.URL, resp.Status)
	}
	return data, nil
}
