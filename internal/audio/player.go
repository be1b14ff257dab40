package audio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/playsight/internal/events"
)

// ErrNoSound is returned by Play when the pack maps no sound to the event.
var ErrNoSound = errors.New("no sound for event")

// PlayerConfig configures a Player.
type PlayerConfig struct {
	// Pack names the sound pack to use. Empty selects the first pack.
	Pack string

	// Timeout bounds each player execution.
	Timeout time.Duration

	Logger *zap.SugaredLogger
}

// Player turns hub events into sound-pack executions.
type Player struct {
	manager  *Manager
	executor *Executor
	pack     string
	logger   *zap.SugaredLogger
}

// NewPlayer creates a Player drawing packs from manager.
func NewPlayer(manager *Manager, config PlayerConfig) *Player {
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	return &Player{
		manager:  manager,
		executor: NewExecutor(config.Timeout),
		pack:     config.Pack,
		logger:   config.Logger.Named("player"),
	}
}

// Pack returns the selected sound pack.
func (p *Player) Pack() (*Pack, error) {
	if p.pack != "" {
		return p.manager.Get(p.pack)
	}
	packs := p.manager.List()
	if len(packs) == 0 {
		return nil, ErrPackNotFound
	}
	return packs[0], nil
}

// Kinds returns the event kinds the selected pack can play.
func (p *Player) Kinds() []events.Kind {
	pack, err := p.Pack()
	if err != nil {
		return nil
	}
	var kinds []events.Kind
	for _, k := range pack.Kinds() {
		if kind := events.Kind(k); kind.Valid() {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// Play plays the sound mapped to ev.
func (p *Player) Play(ctx context.Context, ev events.CVEvent) error {
	pack, err := p.Pack()
	if err != nil {
		return err
	}
	sound, ok := pack.SoundFor(string(ev.Kind))
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSound, ev.Kind)
	}

	resp, err := p.executor.Execute(ctx, pack, &Request{
		Event:    string(ev.Kind),
		EntityID: ev.EntityID,
		Sound:    sound,
		Volume:   pack.volume(),
		Metadata: ev.Metadata(),
	})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("player %s: %s", pack.Manifest.Name, resp.Error)
	}
	return nil
}

// Run plays every event of sub until the subscription closes or ctx is
// done. Failures are logged and do not stop the loop.
func (p *Player) Run(ctx context.Context, sub *events.Subscription) {
	stop := context.AfterFunc(ctx, sub.Close)
	defer stop()

	for ev := range sub.All() {
		if err := p.Play(ctx, ev); err != nil && !errors.Is(err, ErrNoSound) {
			p.logger.Warnw("sound playback failed", "kind", ev.Kind, "error", err)
		}
	}
}
