package backend

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/craftlab/lodestone/pkg/bridge"
	"github.com/craftlab/lodestone/pkg/fault"
	"github.com/craftlab/lodestone/pkg/rcon"
)

// fakeServer is an in-process console endpoint speaking the framed
// protocol. It records every command it receives and answers through the
// configurable reply function.
type fakeServer struct {
	ln       net.Listener
	password string
	reply    func(cmd string) string

	mu       sync.Mutex
	commands []string
}

func newFakeServer(t *testing.T, password string, reply func(string) string) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if reply == nil {
		reply = func(string) string { return "" }
	}
	s := &fakeServer{ln: ln, password: password, reply: reply}
	go s.accept()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeServer) addr() string { return s.ln.Addr().String() }

func (s *fakeServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

func (s *fakeServer) accept() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.serve(conn)
	}
}

func (s *fakeServer) serve(conn net.Conn) {
	defer conn.Close()
	for {
		id, typ, payload, err := readFrame(conn)
		if err != nil {
			return
		}
		switch typ {
		case 3: // login
			if payload != s.password {
				writeFrame(conn, -1, 0, "")
				return
			}
			writeFrame(conn, id, 0, "")
		case 2: // command
			s.mu.Lock()
			s.commands = append(s.commands, payload)
			s.mu.Unlock()
			writeFrame(conn, id, 0, s.reply(payload))
		}
	}
}

func readFrame(r io.Reader) (id, typ int32, payload string, err error) {
	var length int32
	if err = binary.Read(r, binary.LittleEndian, &length); err != nil {
		return
	}
	body := make([]byte, length)
	if _, err = io.ReadFull(r, body); err != nil {
		return
	}
	id = int32(binary.LittleEndian.Uint32(body[0:4]))
	typ = int32(binary.LittleEndian.Uint32(body[4:8]))
	payload = strings.TrimRight(string(body[8:]), "\x00")
	return
}

func writeFrame(w io.Writer, id, typ int32, payload string) {
	length := int32(4 + 4 + len(payload) + 2)
	buf := make([]byte, 0, 4+length)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(length))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(id))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(typ))
	buf = append(buf, payload...)
	buf = append(buf, 0, 0)
	w.Write(buf)
}

func newTestConsole(t *testing.T, srv *fakeServer) *Console {
	t.Helper()
	c := NewConsole(rcon.New(srv.addr(), srv.password), nil)
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { c.client.Close() })
	return c
}

func TestExecuteConsoleComposition(t *testing.T) {
	srv := newFakeServer(t, "pw", nil)
	c := newTestConsole(t, srv)
	ctx := context.Background()

	cases := []struct {
		cmd  string
		args []string
		want string
	}{
		{"say", []string{"hello", "world"}, "say hello world"},
		{"list", nil, "list"},
		{"say", []string{"hello", ""}, "say hello"},
		{"say hi ", nil, "say hi"},
	}
	for _, tc := range cases {
		if _, err := c.ExecuteConsole(ctx, tc.cmd, tc.args); err != nil {
			t.Fatalf("ExecuteConsole(%q, %v): %v", tc.cmd, tc.args, err)
		}
	}
	got := srv.received()
	if len(got) != len(cases) {
		t.Fatalf("received %d commands, want %d", len(got), len(cases))
	}
	for i, tc := range cases {
		if got[i] != tc.want {
			t.Errorf("command %d = %q, want %q", i, got[i], tc.want)
		}
		if strings.HasSuffix(got[i], " ") {
			t.Errorf("command %d carries trailing whitespace: %q", i, got[i])
		}
	}
}

func TestConsoleClientPlaneUnavailable(t *testing.T) {
	c := NewConsole(rcon.New("127.0.0.1:1", ""), nil)
	ctx := context.Background()

	checks := map[string]error{
		"connect":    c.ConnectPlayer(ctx, "p"),
		"disconnect": c.DisconnectPlayer(ctx, "p"),
		"move":       c.Move(ctx, "p", 0, 0, 0),
		"equip":      c.Equip(ctx, "p", "stone", "hand"),
		"use":        c.Use(ctx, "p", ""),
	}
	if _, err := c.SendChat(ctx, "p", "hi"); err != nil {
		checks["chat"] = err
	}
	if _, err := c.ExecutePlayerCommand(ctx, "p", "/help"); err != nil {
		checks["command"] = err
	}
	if _, err := c.GetPosition(ctx, "p"); err != nil {
		checks["position"] = err
	}
	if _, err := c.GetHealth(ctx, "p"); err != nil {
		checks["health"] = err
	}
	if _, err := c.GetInventory(ctx, "p"); err != nil {
		checks["inventory"] = err
	}
	if _, err := c.GetEntities(ctx, "p"); err != nil {
		checks["entities"] = err
	}
	for op, err := range checks {
		if !fault.Is(err, fault.CapabilityUnavailable) {
			t.Errorf("%s: got %v, want CapabilityUnavailable", op, err)
		}
	}
}

func TestSpawnEntityTagsAndEquips(t *testing.T) {
	srv := newFakeServer(t, "pw", nil)
	c := newTestConsole(t, srv)

	err := c.SpawnEntity(context.Background(), "guard", "minecraft:zombie", 10, 64, -5,
		map[string]string{"weapon.mainhand": "minecraft:iron_sword"})
	if err != nil {
		t.Fatalf("SpawnEntity: %v", err)
	}
	got := srv.received()
	if len(got) != 2 {
		t.Fatalf("received %d commands, want 2: %v", len(got), got)
	}
	summon := got[0]
	for _, want := range []string{"summon minecraft:zombie 10 64 -5", TestEntityTag, "lt_guard"} {
		if !strings.Contains(summon, want) {
			t.Errorf("summon %q missing %q", summon, want)
		}
	}
	equip := got[1]
	if !strings.Contains(equip, "item replace entity") || !strings.Contains(equip, "weapon.mainhand with minecraft:iron_sword") {
		t.Errorf("unexpected equip command %q", equip)
	}
	if strings.Contains(equip, "r=") {
		t.Errorf("equip selector uses legacy radius form: %q", equip)
	}
}

func TestEntityExists(t *testing.T) {
	srv := newFakeServer(t, "pw", func(cmd string) string {
		if strings.Contains(cmd, "lt_alive") {
			return "Test passed"
		}
		return "Test failed"
	})
	c := newTestConsole(t, srv)
	ctx := context.Background()

	ok, err := c.EntityExists(ctx, "alive")
	if err != nil || !ok {
		t.Errorf("EntityExists(alive) = %v, %v; want true", ok, err)
	}
	ok, err = c.EntityExists(ctx, "gone")
	if err != nil || ok {
		t.Errorf("EntityExists(gone) = %v, %v; want false", ok, err)
	}
}

func TestGetEntityHealthParsing(t *testing.T) {
	srv := newFakeServer(t, "pw", func(cmd string) string {
		return "lt_guard has the following entity data: 17.5f"
	})
	c := newTestConsole(t, srv)

	h, err := c.GetEntityHealth(context.Background(), "guard")
	if err != nil {
		t.Fatalf("GetEntityHealth: %v", err)
	}
	if h != 17.5 {
		t.Errorf("health = %v, want 17.5", h)
	}
}

func TestGetWorldTimeParsing(t *testing.T) {
	srv := newFakeServer(t, "pw", func(cmd string) string {
		return "The time is 6000"
	})
	c := newTestConsole(t, srv)

	ticks, err := c.GetWorldTime(context.Background())
	if err != nil {
		t.Fatalf("GetWorldTime: %v", err)
	}
	if ticks != 6000 {
		t.Errorf("ticks = %d, want 6000", ticks)
	}
}

func TestGetWorldTimeNoInteger(t *testing.T) {
	srv := newFakeServer(t, "pw", func(cmd string) string { return "no numbers here" })
	c := newTestConsole(t, srv)

	_, err := c.GetWorldTime(context.Background())
	if !fault.Is(err, fault.BackendProtocol) {
		t.Errorf("got %v, want BackendProtocol", err)
	}
}

func TestConsoleGetWeatherConstant(t *testing.T) {
	c := NewConsole(rcon.New("127.0.0.1:1", ""), nil)
	w, err := c.GetWeather(context.Background())
	if err != nil || w != "clear" {
		t.Errorf("GetWeather = %q, %v; want clear", w, err)
	}
}

func TestConsoleAuthRejectedNoRetry(t *testing.T) {
	srv := newFakeServer(t, "right", nil)
	c := NewConsole(rcon.New(srv.addr(), "wrong"), nil)

	start := time.Now()
	err := c.Initialize(context.Background())
	if !fault.Is(err, fault.BackendProtocol) {
		t.Fatalf("got %v, want BackendProtocol", err)
	}
	// Transport retries would wait through at least one backoff interval.
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("auth rejection took %v, suggesting retries", elapsed)
	}
}

func TestConsoleReconnectAfterDrop(t *testing.T) {
	srv := newFakeServer(t, "pw", func(cmd string) string { return "ok" })
	c := newTestConsole(t, srv)
	ctx := context.Background()

	c.client.Close()
	out, err := c.ExecuteConsoleRaw(ctx, "list")
	if err != nil {
		t.Fatalf("command after drop: %v", err)
	}
	if out != "ok" {
		t.Errorf("out = %q, want ok", out)
	}
}

func TestRemoveAllTestEntities(t *testing.T) {
	srv := newFakeServer(t, "pw", nil)
	c := newTestConsole(t, srv)

	if err := c.RemoveAllTestEntities(context.Background()); err != nil {
		t.Fatalf("RemoveAllTestEntities: %v", err)
	}
	got := srv.received()
	if len(got) != 1 || !strings.Contains(got[0], "kill @e[tag="+TestEntityTag) {
		t.Errorf("unexpected commands %v", got)
	}
}

func TestFactory(t *testing.T) {
	if _, err := New(Config{Kind: KindConsole}); !fault.Is(err, fault.Config) {
		t.Errorf("missing console address: got %v, want Config fault", err)
	}
	if _, err := New(Config{Kind: "telnet", RconAddr: "h:1"}); !fault.Is(err, fault.Config) {
		t.Errorf("unknown kind: got %v, want Config fault", err)
	}
	if _, err := New(Config{Kind: KindPlayerSim, RconAddr: "h:1"}); !fault.Is(err, fault.Config) {
		t.Errorf("playersim without bridge URL: got %v, want Config fault", err)
	}

	b, err := New(Config{Kind: KindConsole, RconAddr: "h:1"})
	if err != nil || b.Type() != KindConsole {
		t.Errorf("console factory: %v %v", b, err)
	}
	b, err = New(Config{Kind: KindPlayerSim, RconAddr: "h:1", BridgeURL: "http://h:3000"})
	if err != nil || b.Type() != KindPlayerSim {
		t.Errorf("playersim factory: %v %v", b, err)
	}
}

// --- playersim ---

func newTestBridge(t *testing.T, mux *http.ServeMux) *bridge.Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return bridge.New(srv.URL)
}

func jsonHandler(v any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
}

func TestPlayerSimConnectTracksPlayers(t *testing.T) {
	console := newFakeServer(t, "pw", nil)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /connect", jsonHandler(map[string]any{"connected": true, "uuid": "u-1"}))
	mux.HandleFunc("POST /disconnect", jsonHandler(map[string]any{"disconnected": true}))
	p := NewPlayerSim(newTestConsole(t, console), newTestBridge(t, mux), nil)
	ctx := context.Background()

	if err := p.ConnectPlayer(ctx, "alice"); err != nil {
		t.Fatalf("ConnectPlayer: %v", err)
	}
	if err := p.ConnectPlayer(ctx, "bob"); err != nil {
		t.Fatalf("ConnectPlayer: %v", err)
	}
	if err := p.RemoveAllTestPlayers(ctx); err != nil {
		t.Fatalf("RemoveAllTestPlayers: %v", err)
	}
	p.mu.Lock()
	n := len(p.players)
	p.mu.Unlock()
	if n != 0 {
		t.Errorf("%d players still tracked after removal", n)
	}
}

func TestPlayerSimConnectRefused(t *testing.T) {
	console := newFakeServer(t, "pw", nil)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /connect", jsonHandler(map[string]any{"connected": false}))
	p := NewPlayerSim(newTestConsole(t, console), newTestBridge(t, mux), nil)

	err := p.ConnectPlayer(context.Background(), "alice")
	if !fault.Is(err, fault.BackendProtocol) {
		t.Errorf("got %v, want BackendProtocol", err)
	}
}

func TestPlayerSimGetWeatherViaBridge(t *testing.T) {
	console := newFakeServer(t, "pw", nil)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /connect", jsonHandler(map[string]any{"connected": true, "uuid": "u"}))
	mux.HandleFunc("POST /command", jsonHandler(map[string]any{
		"executed": true, "chatMessage": "The weather is Rain",
	}))
	p := NewPlayerSim(newTestConsole(t, console), newTestBridge(t, mux), nil)
	ctx := context.Background()

	if err := p.ConnectPlayer(ctx, "alice"); err != nil {
		t.Fatalf("ConnectPlayer: %v", err)
	}
	w, err := p.GetWeather(ctx)
	if err != nil {
		t.Fatalf("GetWeather: %v", err)
	}
	if w != "rain" {
		t.Errorf("weather = %q, want rain", w)
	}
}

func TestPlayerSimGetWeatherFallback(t *testing.T) {
	console := newFakeServer(t, "pw", nil)
	p := NewPlayerSim(newTestConsole(t, console), newTestBridge(t, http.NewServeMux()), nil)

	w, err := p.GetWeather(context.Background())
	if err != nil || w != "clear" {
		t.Errorf("GetWeather with no players = %q, %v; want console fallback", w, err)
	}
}

func TestPlayerSimServerPlaneDelegates(t *testing.T) {
	console := newFakeServer(t, "pw", nil)
	p := NewPlayerSim(newTestConsole(t, console), newTestBridge(t, http.NewServeMux()), nil)

	if _, err := p.ExecuteConsole(context.Background(), "say", []string{"hi"}); err != nil {
		t.Fatalf("ExecuteConsole: %v", err)
	}
	got := console.received()
	if len(got) != 1 || got[0] != "say hi" {
		t.Errorf("console received %v", got)
	}
}
