package backend

import (
	"context"
	"strings"
	"sync"

	"github.com/craftlab/lodestone/pkg/bridge"
	"github.com/craftlab/lodestone/pkg/fault"
)

// PlayerSim is the player-simulation backend. It composes a bridge client
// for client-plane operations with an embedded console backend for admin
// commands the bridge cannot issue.
type PlayerSim struct {
	console *Console
	bridge  *bridge.Client
	logs    LogSink

	mu      sync.Mutex
	players map[string]bool // connected simulated players
}

// NewPlayerSim creates a playersim backend.
func NewPlayerSim(console *Console, br *bridge.Client, logs LogSink) *PlayerSim {
	if logs == nil {
		logs = NopSink{}
	}
	return &PlayerSim{
		console: console,
		bridge:  br,
		logs:    logs,
		players: make(map[string]bool),
	}
}

func (p *PlayerSim) Type() string { return KindPlayerSim }

// Initialize brings up the console connection and checks bridge liveness.
func (p *PlayerSim) Initialize(ctx context.Context) error {
	if err := p.console.Initialize(ctx); err != nil {
		return err
	}
	if _, err := p.bridge.ServiceHealth(ctx); err != nil {
		return err
	}
	return nil
}

// Cleanup kicks tracked simulated players, then runs console cleanup.
func (p *PlayerSim) Cleanup(ctx context.Context) error {
	kickErr := p.RemoveAllTestPlayers(ctx)
	consoleErr := p.console.Cleanup(ctx)
	if kickErr != nil {
		return kickErr
	}
	return consoleErr
}

func (p *PlayerSim) Abandon() { p.console.Abandon() }

// --- server plane: delegated to the embedded console backend ---

func (p *PlayerSim) ExecuteConsole(ctx context.Context, cmd string, args []string) (string, error) {
	return p.console.ExecuteConsole(ctx, cmd, args)
}

func (p *PlayerSim) ExecuteConsoleRaw(ctx context.Context, text string) (string, error) {
	return p.console.ExecuteConsoleRaw(ctx, text)
}

func (p *PlayerSim) SpawnEntity(ctx context.Context, localName, entityType string, x, y, z float64, equipment map[string]string) error {
	return p.console.SpawnEntity(ctx, localName, entityType, x, y, z, equipment)
}

func (p *PlayerSim) EntityExists(ctx context.Context, localName string) (bool, error) {
	return p.console.EntityExists(ctx, localName)
}

func (p *PlayerSim) GetEntityHealth(ctx context.Context, localName string) (float64, error) {
	return p.console.GetEntityHealth(ctx, localName)
}

func (p *PlayerSim) SetEntityHealth(ctx context.Context, localName string, health float64) error {
	return p.console.SetEntityHealth(ctx, localName, health)
}

func (p *PlayerSim) GiveItem(ctx context.Context, player, item string, count int) error {
	return p.console.GiveItem(ctx, player, item, count)
}

func (p *PlayerSim) RemoveItem(ctx context.Context, player, item string, count int) error {
	return p.console.RemoveItem(ctx, player, item, count)
}

func (p *PlayerSim) ClearInventory(ctx context.Context, player string) error {
	return p.console.ClearInventory(ctx, player)
}

func (p *PlayerSim) MakeOperator(ctx context.Context, player string) error {
	return p.console.MakeOperator(ctx, player)
}

func (p *PlayerSim) Teleport(ctx context.Context, player string, x, y, z float64) error {
	return p.console.Teleport(ctx, player, x, y, z)
}

func (p *PlayerSim) Gamemode(ctx context.Context, player, mode string) error {
	return p.console.Gamemode(ctx, player, mode)
}

func (p *PlayerSim) SetWeather(ctx context.Context, kind string, seconds int) error {
	return p.console.SetWeather(ctx, kind, seconds)
}

func (p *PlayerSim) SetTime(ctx context.Context, ticks int64) error {
	return p.console.SetTime(ctx, ticks)
}

func (p *PlayerSim) GetWorldTime(ctx context.Context) (int64, error) {
	return p.console.GetWorldTime(ctx)
}

// GetWeather reads weather through the bridge: a connected simulated
// player runs a weather query and the chat feedback is parsed. Without a
// connected player it falls back to the console backend's constant.
func (p *PlayerSim) GetWeather(ctx context.Context) (string, error) {
	name := p.anyPlayer()
	if name == "" {
		return p.console.GetWeather(ctx)
	}
	res, err := p.bridge.Command(ctx, name, "weather query")
	if err != nil {
		return "", err
	}
	p.logs.Append("client", "weather query: "+res.ChatMessage)
	lower := strings.ToLower(res.ChatMessage)
	for _, w := range []string{"thunder", "rain", "clear"} {
		if strings.Contains(lower, w) {
			return w, nil
		}
	}
	return "", fault.New(fault.BackendProtocol, "weather query produced no recognizable state").WithDetail(res.ChatMessage)
}

func (p *PlayerSim) RemoveAllTestEntities(ctx context.Context) error {
	return p.console.RemoveAllTestEntities(ctx)
}

// RemoveAllTestPlayers disconnects every tracked simulated player.
func (p *PlayerSim) RemoveAllTestPlayers(ctx context.Context) error {
	p.mu.Lock()
	names := make([]string, 0, len(p.players))
	for name := range p.players {
		names = append(names, name)
	}
	p.mu.Unlock()

	var firstErr error
	for _, name := range names {
		if err := p.DisconnectPlayer(ctx, name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ServiceHealth checks both collaborators.
func (p *PlayerSim) ServiceHealth(ctx context.Context) error {
	if _, err := p.bridge.ServiceHealth(ctx); err != nil {
		return err
	}
	return p.console.ServiceHealth(ctx)
}

// --- client plane: bridge ---

func (p *PlayerSim) ConnectPlayer(ctx context.Context, name string) error {
	res, err := p.bridge.Connect(ctx, name)
	if err != nil {
		return err
	}
	if !res.Connected {
		return fault.New(fault.BackendProtocol, "bridge reported connected=false for %q", name)
	}
	p.logs.Append("client", "connected "+name+" ("+res.UUID+")")
	p.mu.Lock()
	p.players[name] = true
	p.mu.Unlock()
	return nil
}

func (p *PlayerSim) DisconnectPlayer(ctx context.Context, name string) error {
	err := p.bridge.Disconnect(ctx, name)
	if err == nil {
		p.logs.Append("client", "disconnected "+name)
	}
	p.mu.Lock()
	delete(p.players, name)
	p.mu.Unlock()
	return err
}

func (p *PlayerSim) SendChat(ctx context.Context, name, message string) (string, error) {
	res, err := p.bridge.Chat(ctx, name, message)
	if err != nil {
		return "", err
	}
	p.logs.Append("client", name+": "+message)
	return res.MessageID, nil
}

func (p *PlayerSim) ExecutePlayerCommand(ctx context.Context, name, cmd string) (string, error) {
	res, err := p.bridge.Command(ctx, name, cmd)
	if err != nil {
		return "", err
	}
	p.logs.Append("client", name+" ran "+cmd+" → "+res.ChatMessage)
	return res.ChatMessage, nil
}

func (p *PlayerSim) Move(ctx context.Context, name string, x, y, z float64) error {
	_, err := p.bridge.Move(ctx, name, x, y, z)
	return err
}

func (p *PlayerSim) Equip(ctx context.Context, name, item, slot string) error {
	_, err := p.bridge.Equip(ctx, name, item, slot)
	return err
}

func (p *PlayerSim) Use(ctx context.Context, name, target string) error {
	_, err := p.bridge.Use(ctx, name, target)
	return err
}

func (p *PlayerSim) GetPosition(ctx context.Context, name string) (*bridge.Position, error) {
	return p.bridge.GetPosition(ctx, name)
}

func (p *PlayerSim) GetHealth(ctx context.Context, name string) (*bridge.Health, error) {
	return p.bridge.GetHealth(ctx, name)
}

func (p *PlayerSim) GetInventory(ctx context.Context, name string) (*bridge.Inventory, error) {
	return p.bridge.GetInventory(ctx, name)
}

func (p *PlayerSim) GetEntities(ctx context.Context, name string) (*bridge.Entities, error) {
	return p.bridge.GetEntities(ctx, name)
}

func (p *PlayerSim) GetEquipment(ctx context.Context, name string) (*bridge.Equipment, error) {
	return p.bridge.GetEquipment(ctx, name)
}

func (p *PlayerSim) anyPlayer() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name := range p.players {
		return name
	}
	return ""
}
