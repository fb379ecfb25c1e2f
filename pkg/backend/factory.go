package backend

import (
	"time"

	"github.com/craftlab/lodestone/pkg/bridge"
	"github.com/craftlab/lodestone/pkg/fault"
	"github.com/craftlab/lodestone/pkg/rcon"
)

// Config selects and parameterizes a backend.
type Config struct {
	Kind         string // console or playersim
	RconAddr     string // host:port of the server console
	RconPassword string
	ReadTimeout  time.Duration // console socket read timeout (0 = default)
	BridgeURL    string        // playersim only
	Logs         LogSink       // nil = discard
}

// New constructs the backend named by cfg.Kind. The returned backend is
// not yet initialized; callers run Initialize before a story's setup
// phase and Cleanup after the last cleanup action.
func New(cfg Config) (Backend, error) {
	if cfg.RconAddr == "" {
		return nil, fault.New(fault.Config, "backend config missing console address")
	}
	var opts []rcon.Option
	if cfg.ReadTimeout > 0 {
		opts = append(opts, rcon.WithReadTimeout(cfg.ReadTimeout))
	}
	client := rcon.New(cfg.RconAddr, cfg.RconPassword, opts...)
	console := NewConsole(client, cfg.Logs)

	switch cfg.Kind {
	case KindConsole, "":
		return console, nil
	case KindPlayerSim:
		if cfg.BridgeURL == "" {
			return nil, fault.New(fault.Config, "playersim backend requires a bridge URL")
		}
		return NewPlayerSim(console, bridge.New(cfg.BridgeURL), cfg.Logs), nil
	default:
		return nil, fault.New(fault.Config, "unknown backend kind %q", cfg.Kind)
	}
}
