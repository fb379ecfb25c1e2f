package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftlab/lodestone/pkg/fault"
)

func newTestBridge(t *testing.T) (*Client, *http.ServeMux) {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(srv.URL), mux
}

func TestConnect(t *testing.T) {
	c, mux := newTestBridge(t)
	mux.HandleFunc("POST /connect", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tester", body["username"])
		json.NewEncoder(w).Encode(map[string]any{"connected": true, "uuid": "abc-123"})
	})

	res, err := c.Connect(context.Background(), "tester")
	require.NoError(t, err)
	assert.True(t, res.Connected)
	assert.Equal(t, "abc-123", res.UUID)
}

func TestGetPosition(t *testing.T) {
	c, mux := newTestBridge(t)
	mux.HandleFunc("GET /position/tester", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Position{X: 100.5, Y: 64, Z: -20, Yaw: 90, Pitch: 0, World: "world"})
	})

	pos, err := c.GetPosition(context.Background(), "tester")
	require.NoError(t, err)
	assert.Equal(t, 100.5, pos.X)
	assert.Equal(t, "world", pos.World)
}

func TestGetInventory(t *testing.T) {
	c, mux := newTestBridge(t)
	mux.HandleFunc("GET /inventory/tester", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Inventory{
			Items: []Item{{Slot: 0, ID: "minecraft:diamond_sword", Count: 1}},
			Size:  36,
		})
	})

	inv, err := c.GetInventory(context.Background(), "tester")
	require.NoError(t, err)
	require.Len(t, inv.Items, 1)
	assert.Equal(t, "minecraft:diamond_sword", inv.Items[0].ID)
	assert.Equal(t, 36, inv.Size)
}

func TestGetEntities(t *testing.T) {
	c, mux := newTestBridge(t)
	mux.HandleFunc("GET /entities/tester", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Entities{
			Entities: []Entity{{ID: 11, Type: "zombie", Name: "test_z1", X: 100, Y: 64, Z: 100}},
			Count:    1,
			Types:    map[string]int{"zombie": 1},
		})
	})

	ents, err := c.GetEntities(context.Background(), "tester")
	require.NoError(t, err)
	assert.Equal(t, 1, ents.Count)
	assert.Equal(t, 1, ents.Types["zombie"])
}

func TestErrorBodyBecomesProtocolFault(t *testing.T) {
	c, mux := newTestBridge(t)
	mux.HandleFunc("POST /chat", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "not_found", "message": "player ghost is not connected"})
	})

	_, err := c.Chat(context.Background(), "ghost", "hello")
	require.Error(t, err)
	assert.Equal(t, fault.BackendProtocol, fault.KindOf(err))
	assert.Contains(t, err.Error(), "player ghost is not connected")
}

func TestTransportFault(t *testing.T) {
	// Nothing listens on this port.
	c := New("http://127.0.0.1:1")
	_, err := c.ServiceHealth(context.Background())
	require.Error(t, err)
	assert.Equal(t, fault.BackendTransport, fault.KindOf(err))
}

func TestCancelledContext(t *testing.T) {
	c, mux := newTestBridge(t)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ServiceHealth(ctx)
	require.Error(t, err)
	assert.Equal(t, fault.Cancelled, fault.KindOf(err))
}

func TestMalformedJSONIsProtocolFault(t *testing.T) {
	c, mux := newTestBridge(t)
	mux.HandleFunc("GET /health/tester", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	_, err := c.GetHealth(context.Background(), "tester")
	require.Error(t, err)
	assert.Equal(t, fault.BackendProtocol, fault.KindOf(err))
}
