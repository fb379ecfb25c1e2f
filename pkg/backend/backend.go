// Package backend defines the capability contract every backend satisfies
// and the factory that selects one from configuration. Two built-in
// backends exist: console (wraps the rcon client) and playersim (composes
// the bridge client with an embedded console backend for admin commands
// the bridge cannot issue).
package backend

import (
	"context"
	"fmt"

	"github.com/craftlab/lodestone/pkg/bridge"
)

// Kind names for the built-in backends.
const (
	KindConsole   = "console"
	KindPlayerSim = "playersim"
)

// TestEntityTag marks every entity a backend spawns so that
// RemoveAllTestEntities can sweep them.
const TestEntityTag = "lodestone_test"

// TestEntityPrefix prefixes the world-unique names derived from local
// entity names.
const TestEntityPrefix = "lt_"

// LogSink receives backend traffic for the report. Server-plane traffic
// goes to channel "server"/"rcon", client-plane traffic to "client".
type LogSink interface {
	Append(channel, text string)
}

// NopSink discards log lines.
type NopSink struct{}

func (NopSink) Append(channel, text string) {}

// Backend is the capability contract. Server-plane operations succeed on
// both backend kinds; client-plane operations fail with
// fault.CapabilityUnavailable on the console backend.
type Backend interface {
	Initialize(ctx context.Context) error
	Cleanup(ctx context.Context) error
	Type() string

	// Server plane.
	ExecuteConsole(ctx context.Context, cmd string, args []string) (string, error)
	ExecuteConsoleRaw(ctx context.Context, text string) (string, error)
	SpawnEntity(ctx context.Context, localName, entityType string, x, y, z float64, equipment map[string]string) error
	EntityExists(ctx context.Context, localName string) (bool, error)
	GetEntityHealth(ctx context.Context, localName string) (float64, error)
	SetEntityHealth(ctx context.Context, localName string, health float64) error
	GiveItem(ctx context.Context, player, item string, count int) error
	RemoveItem(ctx context.Context, player, item string, count int) error
	ClearInventory(ctx context.Context, player string) error
	MakeOperator(ctx context.Context, player string) error
	Teleport(ctx context.Context, player string, x, y, z float64) error
	Gamemode(ctx context.Context, player, mode string) error
	SetWeather(ctx context.Context, kind string, seconds int) error
	SetTime(ctx context.Context, ticks int64) error
	GetWorldTime(ctx context.Context) (int64, error)
	GetWeather(ctx context.Context) (string, error)
	RemoveAllTestEntities(ctx context.Context) error
	RemoveAllTestPlayers(ctx context.Context) error

	// Client plane (player simulation).
	ConnectPlayer(ctx context.Context, name string) error
	DisconnectPlayer(ctx context.Context, name string) error
	SendChat(ctx context.Context, name, message string) (string, error)
	ExecutePlayerCommand(ctx context.Context, name, cmd string) (string, error)
	Move(ctx context.Context, name string, x, y, z float64) error
	Equip(ctx context.Context, name, item, slot string) error
	Use(ctx context.Context, name, target string) error
	GetPosition(ctx context.Context, name string) (*bridge.Position, error)
	GetHealth(ctx context.Context, name string) (*bridge.Health, error)
	GetInventory(ctx context.Context, name string) (*bridge.Inventory, error)
	GetEntities(ctx context.Context, name string) (*bridge.Entities, error)
	GetEquipment(ctx context.Context, name string) (*bridge.Equipment, error)

	// ServiceHealth probes the backend's external collaborators.
	ServiceHealth(ctx context.Context) error

	// Abandon unblocks the in-flight call after a deadline expires, by
	// closing the relevant socket. Called from the orchestrator's
	// watchdog, never from the executing goroutine.
	Abandon()
}

// WorldEntityName derives the deterministic world-unique name for a local
// entity name.
func WorldEntityName(localName string) string {
	return TestEntityPrefix + localName
}

// EntitySelector is the console target selector for one tracked test
// entity. Distance predicate form only; modern servers reject the legacy
// radius form.
func EntitySelector(localName string) string {
	return fmt.Sprintf("@e[name=%s,limit=1,distance=..10000]", WorldEntityName(localName))
}
