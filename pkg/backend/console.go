package backend

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/craftlab/lodestone/pkg/bridge"
	"github.com/craftlab/lodestone/pkg/fault"
	"github.com/craftlab/lodestone/pkg/rcon"
)

// maxReconnectTries bounds the lazy reconnect loop after a transport
// error. Backoff is exponential, capped at reconnectBackoffCap.
const (
	maxReconnectTries   = 3
	reconnectBackoff    = 250 * time.Millisecond
	reconnectBackoffCap = 2 * time.Second
)

// selectorRange is the distance predicate used on every entity selector.
// The legacy radius form (r=) is rejected by modern servers.
const selectorRange = "distance=..10000"

// Console is the console-only backend: every operation is an admin
// command over the rcon client. Client-plane operations are unavailable.
type Console struct {
	client *rcon.Client
	logs   LogSink

	mu       sync.Mutex
	entities map[string]string // local name → world name
}

// NewConsole creates a console backend around the given client.
func NewConsole(client *rcon.Client, logs LogSink) *Console {
	if logs == nil {
		logs = NopSink{}
	}
	return &Console{
		client:   client,
		logs:     logs,
		entities: make(map[string]string),
	}
}

func (c *Console) Type() string { return KindConsole }

// Initialize connects and authenticates the console client.
func (c *Console) Initialize(ctx context.Context) error {
	return c.ensureReady(ctx)
}

// Cleanup removes tracked test entities and releases the connection.
func (c *Console) Cleanup(ctx context.Context) error {
	err := c.RemoveAllTestEntities(ctx)
	c.client.Close()
	return err
}

// Abandon closes the console socket under an in-flight command.
func (c *Console) Abandon() { c.client.Abandon() }

// ensureReady lazily (re)connects with capped exponential backoff.
func (c *Console) ensureReady(ctx context.Context) error {
	if c.client.State() == rcon.Ready {
		return nil
	}
	var lastErr error
	backoff := reconnectBackoff
	for try := 0; try < maxReconnectTries; try++ {
		if try > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return fault.Wrap(fault.Cancelled, ctx.Err(), "reconnect interrupted")
			}
			backoff *= 2
			if backoff > reconnectBackoffCap {
				backoff = reconnectBackoffCap
			}
		}
		if lastErr = c.client.Connect(ctx); lastErr == nil {
			return nil
		}
		// Auth rejection will not improve with retries.
		if fault.Is(lastErr, fault.BackendProtocol) {
			return lastErr
		}
	}
	return fault.Wrap(fault.BackendTransport, lastErr, "console unreachable after %d tries", maxReconnectTries)
}

// run sends one composed command and logs the exchange.
func (c *Console) run(ctx context.Context, command string) (string, error) {
	if err := c.ensureReady(ctx); err != nil {
		return "", err
	}
	c.logs.Append("rcon", "> "+command)
	out, err := c.client.Command(ctx, command)
	if err != nil {
		c.logs.Append("rcon", "! "+err.Error())
		return "", err
	}
	c.logs.Append("server", out)
	return out, nil
}

// ExecuteConsole composes cmd and args with single spaces. The composed
// string never carries trailing whitespace; some server versions reject
// commands that do.
func (c *Console) ExecuteConsole(ctx context.Context, cmd string, args []string) (string, error) {
	composed := cmd
	if len(args) > 0 {
		composed = cmd + " " + strings.Join(args, " ")
	}
	composed = strings.TrimRight(composed, " \t")
	return c.run(ctx, composed)
}

// ExecuteConsoleRaw sends text without composition.
func (c *Console) ExecuteConsoleRaw(ctx context.Context, text string) (string, error) {
	return c.run(ctx, text)
}

func (c *Console) SpawnEntity(ctx context.Context, localName, entityType string, x, y, z float64, equipment map[string]string) error {
	world := WorldEntityName(localName)
	nbt := fmt.Sprintf(`{Tags:["%s"],CustomName:'{"text":"%s"}',CustomNameVisible:1b}`, TestEntityTag, world)
	cmd := fmt.Sprintf("summon %s %s %s %s %s", entityType, num(x), num(y), num(z), nbt)
	if _, err := c.run(ctx, cmd); err != nil {
		return err
	}
	c.mu.Lock()
	c.entities[localName] = world
	c.mu.Unlock()

	for slot, item := range equipment {
		eq := fmt.Sprintf("item replace entity %s %s with %s", EntitySelector(localName), slot, item)
		if _, err := c.run(ctx, eq); err != nil {
			return err
		}
	}
	return nil
}

func (c *Console) EntityExists(ctx context.Context, localName string) (bool, error) {
	world := WorldEntityName(localName)
	out, err := c.run(ctx, fmt.Sprintf("execute if entity @e[name=%s,%s]", world, selectorRange))
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToLower(out), "passed"), nil
}

func (c *Console) GetEntityHealth(ctx context.Context, localName string) (float64, error) {
	out, err := c.run(ctx, fmt.Sprintf("data get entity %s Health", EntitySelector(localName)))
	if err != nil {
		return 0, err
	}
	v, ok := firstFloat(out)
	if !ok {
		return 0, fault.New(fault.BackendProtocol, "no health value in response").WithDetail(out)
	}
	return v, nil
}

func (c *Console) SetEntityHealth(ctx context.Context, localName string, health float64) error {
	_, err := c.run(ctx, fmt.Sprintf("data modify entity %s Health set value %sf", EntitySelector(localName), num(health)))
	return err
}

func (c *Console) GiveItem(ctx context.Context, player, item string, count int) error {
	if count <= 0 {
		count = 1
	}
	_, err := c.run(ctx, fmt.Sprintf("give %s %s %d", player, item, count))
	return err
}

func (c *Console) RemoveItem(ctx context.Context, player, item string, count int) error {
	cmd := fmt.Sprintf("clear %s %s", player, item)
	if count > 0 {
		cmd = fmt.Sprintf("%s %d", cmd, count)
	}
	_, err := c.run(ctx, cmd)
	return err
}

func (c *Console) ClearInventory(ctx context.Context, player string) error {
	_, err := c.run(ctx, "clear "+player)
	return err
}

func (c *Console) MakeOperator(ctx context.Context, player string) error {
	_, err := c.run(ctx, "op "+player)
	return err
}

func (c *Console) Teleport(ctx context.Context, player string, x, y, z float64) error {
	_, err := c.run(ctx, fmt.Sprintf("tp %s %s %s %s", player, num(x), num(y), num(z)))
	return err
}

func (c *Console) Gamemode(ctx context.Context, player, mode string) error {
	_, err := c.run(ctx, fmt.Sprintf("gamemode %s %s", mode, player))
	return err
}

func (c *Console) SetWeather(ctx context.Context, kind string, seconds int) error {
	cmd := "weather " + kind
	if seconds > 0 {
		cmd = fmt.Sprintf("%s %d", cmd, seconds)
	}
	_, err := c.run(ctx, cmd)
	return err
}

func (c *Console) SetTime(ctx context.Context, ticks int64) error {
	_, err := c.run(ctx, fmt.Sprintf("time set %d", ticks))
	return err
}

// GetWorldTime extracts the first integer from the time query response,
// which is either a bare number or a sentence containing one.
func (c *Console) GetWorldTime(ctx context.Context) (int64, error) {
	out, err := c.run(ctx, "time query daytime")
	if err != nil {
		return 0, err
	}
	v, ok := firstInt(out)
	if !ok {
		return 0, fault.New(fault.BackendProtocol, "no integer in world-time response").WithDetail(out)
	}
	return v, nil
}

// GetWeather has no console read operation on some server versions. The
// console backend returns the constant "clear" and records a limitation
// annotation so the report makes the gap visible.
func (c *Console) GetWeather(ctx context.Context) (string, error) {
	c.logs.Append("server", "[limitation] console protocol has no weather query; reporting \"clear\"")
	return "clear", nil
}

func (c *Console) RemoveAllTestEntities(ctx context.Context) error {
	_, err := c.run(ctx, fmt.Sprintf("kill @e[tag=%s,%s]", TestEntityTag, selectorRange))
	c.mu.Lock()
	c.entities = make(map[string]string)
	c.mu.Unlock()
	return err
}

// RemoveAllTestPlayers is a no-op on the console backend: it never
// connects simulated players.
func (c *Console) RemoveAllTestPlayers(ctx context.Context) error { return nil }

// ServiceHealth probes the server with a harmless list command.
func (c *Console) ServiceHealth(ctx context.Context) error {
	_, err := c.run(ctx, "list")
	return err
}

// --- client plane: unavailable ---

func (c *Console) capabilityErr(op string) error {
	return fault.New(fault.CapabilityUnavailable, "%s requires the playersim backend (running on console)", op)
}

func (c *Console) ConnectPlayer(ctx context.Context, name string) error {
	return c.capabilityErr("connect_player")
}

func (c *Console) DisconnectPlayer(ctx context.Context, name string) error {
	return c.capabilityErr("disconnect_player")
}

func (c *Console) SendChat(ctx context.Context, name, message string) (string, error) {
	return "", c.capabilityErr("send_chat_message")
}

func (c *Console) ExecutePlayerCommand(ctx context.Context, name, cmd string) (string, error) {
	return "", c.capabilityErr("execute_player_command")
}

func (c *Console) Move(ctx context.Context, name string, x, y, z float64) error {
	return c.capabilityErr("move_player")
}

func (c *Console) Equip(ctx context.Context, name, item, slot string) error {
	return c.capabilityErr("equip_item")
}

func (c *Console) Use(ctx context.Context, name, target string) error {
	return c.capabilityErr("use")
}

func (c *Console) GetPosition(ctx context.Context, name string) (*bridge.Position, error) {
	return nil, c.capabilityErr("get_player_position")
}

func (c *Console) GetHealth(ctx context.Context, name string) (*bridge.Health, error) {
	return nil, c.capabilityErr("get_player_health")
}

func (c *Console) GetInventory(ctx context.Context, name string) (*bridge.Inventory, error) {
	return nil, c.capabilityErr("get_player_inventory")
}

func (c *Console) GetEntities(ctx context.Context, name string) (*bridge.Entities, error) {
	return nil, c.capabilityErr("get_entities")
}

func (c *Console) GetEquipment(ctx context.Context, name string) (*bridge.Equipment, error) {
	return nil, c.capabilityErr("get_player_equipment")
}

// --- parsing helpers ---

var (
	intRe   = regexp.MustCompile(`-?\d+`)
	floatRe = regexp.MustCompile(`-?\d+(\.\d+)?`)
)

// firstInt extracts the first integer from a console sentence.
func firstInt(s string) (int64, bool) {
	m := intRe.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// firstFloat extracts the first number from a console sentence, tolerating
// the NBT float suffix ("20.0f").
func firstFloat(s string) (float64, bool) {
	m := floatRe.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// num formats a coordinate without trailing zeros.
func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
