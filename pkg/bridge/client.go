// Package bridge implements the JSON-over-HTTP client for the
// player-simulation bridge. The bridge drives simulated player clients on
// behalf of the orchestrator; this package only speaks its wire protocol.
package bridge

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
	"time"

	"github.com/craftlab/lodestone/pkg/fault"
)

// Client talks to one bridge instance. It owns an HTTP connection pool;
// per-player serialization is the orchestrator's job.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a bridge client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the configured bridge URL.
func (c *Client) BaseURL() string { return c.baseURL }

// apiError is the bridge's non-2xx body shape.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Position is the result of GET /position/{user}.
type Position struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	World string  `json:"world"`
}

// Health is the result of GET /health/{user}.
type Health struct {
	Health     float64 `json:"health"`
	MaxHealth  float64 `json:"maxHealth"`
	Food       float64 `json:"food"`
	Saturation float64 `json:"saturation"`
}

// Item is one inventory slot entry.
type Item struct {
	Slot   int    `json:"slot"`
	ID     string `json:"id"`
	Count  int    `json:"count"`
	Damage *int   `json:"damage,omitempty"`
}

// Inventory is the result of GET /inventory/{user}.
type Inventory struct {
	Items   []Item `json:"items"`
	Hotbar  []Item `json:"hotbar"`
	Armor   []Item `json:"armor"`
	Offhand *Item  `json:"offhand"`
	Size    int    `json:"size"`
}

// Entity is one nearby entity as seen by a simulated player.
type Entity struct {
	ID   int     `json:"id"`
	Type string  `json:"type"`
	Name string  `json:"name,omitempty"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
}

// Entities is the result of GET /entities/{user}.
type Entities struct {
	Entities []Entity       `json:"entities"`
	Count    int            `json:"count"`
	Types    map[string]int `json:"types"`
}

// Equipment is the result of the equipment query.
type Equipment struct {
	Hand    string `json:"hand"`
	Offhand string `json:"offhand"`
	Head    string `json:"head"`
	Chest   string `json:"chest"`
	Legs    string `json:"legs"`
	Feet    string `json:"feet"`
}

// ConnectResult is the result of POST /connect.
type ConnectResult struct {
	Connected bool   `json:"connected"`
	UUID      string `json:"uuid"`
}

// ChatResult is the result of POST /chat.
type ChatResult struct {
	Sent      bool   `json:"sent"`
	MessageID string `json:"messageId"`
}

// CommandResult is the result of POST /command.
type CommandResult struct {
	Executed    bool   `json:"executed"`
	ChatMessage string `json:"chatMessage"`
}

// MoveResult is the result of POST /move.
type MoveResult struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// EquipResult is the result of POST /equip.
type EquipResult struct {
	Equipped bool   `json:"equipped"`
	Slot     string `json:"slot"`
}

// UseResult is the result of POST /use.
type UseResult struct {
	Used bool `json:"used"`
}

// ServiceHealth is the result of GET /health.
type ServiceHealth struct {
	Status string `json:"status"`
}

// Connect spawns and connects a simulated player.
func (c *Client) Connect(ctx context.Context, username string) (*ConnectResult, error) {
	var out ConnectResult
	err := c.post(ctx, "/connect", map[string]any{"username": username}, &out)
	return &out, err
}

// Disconnect removes a simulated player from the server.
func (c *Client) Disconnect(ctx context.Context, username string) error {
	var out struct {
		Disconnected bool `json:"disconnected"`
	}
	return c.post(ctx, "/disconnect", map[string]any{"username": username}, &out)
}

// Chat sends a chat message as the player.
func (c *Client) Chat(ctx context.Context, username, message string) (*ChatResult, error) {
	var out ChatResult
	err := c.post(ctx, "/chat", map[string]any{"username": username, "message": message}, &out)
	return &out, err
}

// Command executes a slash command as the player.
func (c *Client) Command(ctx context.Context, username, command string) (*CommandResult, error) {
	var out CommandResult
	err := c.post(ctx, "/command", map[string]any{"username": username, "command": command}, &out)
	return &out, err
}

// Move walks the player toward the given coordinates.
func (c *Client) Move(ctx context.Context, username string, x, y, z float64) (*MoveResult, error) {
	var out MoveResult
	err := c.post(ctx, "/move", map[string]any{"username": username, "x": x, "y": y, "z": z}, &out)
	return &out, err
}

// Equip puts an item into the given slot.
func (c *Client) Equip(ctx context.Context, username, item, slot string) (*EquipResult, error) {
	var out EquipResult
	err := c.post(ctx, "/equip", map[string]any{"username": username, "item": item, "slot": slot}, &out)
	return &out, err
}

// Use activates the held item against a target.
func (c *Client) Use(ctx context.Context, username, target string) (*UseResult, error) {
	var out UseResult
	err := c.post(ctx, "/use", map[string]any{"username": username, "target": target}, &out)
	return &out, err
}

// GetPosition returns the player's position and look direction.
func (c *Client) GetPosition(ctx context.Context, username string) (*Position, error) {
	var out Position
	err := c.get(ctx, "/position/"+url.PathEscape(username), &out)
	return &out, err
}

// GetHealth returns the player's health and food state.
func (c *Client) GetHealth(ctx context.Context, username string) (*Health, error) {
	var out Health
	err := c.get(ctx, "/health/"+url.PathEscape(username), &out)
	return &out, err
}

// GetInventory returns the player's full inventory.
func (c *Client) GetInventory(ctx context.Context, username string) (*Inventory, error) {
	var out Inventory
	err := c.get(ctx, "/inventory/"+url.PathEscape(username), &out)
	return &out, err
}

// GetEntities returns entities visible to the player.
func (c *Client) GetEntities(ctx context.Context, username string) (*Entities, error) {
	var out Entities
	err := c.get(ctx, "/entities/"+url.PathEscape(username), &out)
	return &out, err
}

// GetEquipment returns what the player has equipped.
func (c *Client) GetEquipment(ctx context.Context, username string) (*Equipment, error) {
	var out Equipment
	err := c.get(ctx, "/equipment/"+url.PathEscape(username), &out)
	return &out, err
}

// ServiceHealth checks bridge liveness.
func (c *Client) ServiceHealth(ctx context.Context) (*ServiceHealth, error) {
	var out ServiceHealth
	err := c.get(ctx, "/health", &out)
	return &out, err
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fault.Wrap(fault.BackendProtocol, err, "encode %s body", path)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fault.Wrap(fault.BackendTransport, err, "build %s request", path)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fault.Wrap(fault.BackendTransport, err, "build %s request", path)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fault.Wrap(fault.Timeout, err, "bridge %s %s", req.Method, req.URL.Path)
		}
		if errors.Is(err, context.Canceled) {
			return fault.Wrap(fault.Cancelled, err, "bridge %s %s", req.Method, req.URL.Path)
		}
		return fault.Wrap(fault.BackendTransport, err, "bridge %s %s", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fault.Wrap(fault.BackendTransport, err, "read bridge response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && (ae.Error != "" || ae.Message != "") {
			msg := ae.Message
			if msg == "" {
				msg = ae.Error
			}
			return fault.New(fault.BackendProtocol, "bridge %s: %s", req.URL.Path, msg).
				WithDetail(fmt.Sprintf("status %d: %s", resp.StatusCode, string(raw)))
		}
		return fault.New(fault.BackendProtocol, "bridge %s: status %d", req.URL.Path, resp.StatusCode).
			WithDetail(string(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fault.Wrap(fault.BackendProtocol, err, "decode bridge %s response", req.URL.Path).
			WithDetail(string(raw))
	}
	return nil
}
