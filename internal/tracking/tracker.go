// Package tracking assigns stable identities to observations across frames.
//
// A Tracker keeps its entities in an arena addressed by Handle. It is not
// safe for concurrent use: the pipeline owns it and mutates it from a single
// goroutine.
package tracking

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayusman/playsight/internal/geometry"
)

// Handle addresses an entity slot in the tracker arena.
type Handle int

// Entity is one tracked object.
type Entity struct {
	ID        string
	Center    geometry.Point
	Misses    int
	Hits      int
	FirstSeen time.Time
	LastSeen  time.Time
}

// Config holds tracker configuration.
type Config struct {
	// Kind names the tracked object type in logs.
	Kind string

	// MatchThreshold is the largest center distance, in normalized units,
	// at which an observation may continue an existing entity.
	MatchThreshold float64

	// MaxMisses is the number of consecutive unmatched frames after which an
	// entity is lost.
	MaxMisses int

	// Strict makes internal invariant violations panic instead of dropping
	// the offending entity.
	Strict bool

	Logger *zap.SugaredLogger

	// NewID mints entity identifiers. Defaults to random UUIDs.
	NewID func() string
}

// HandConfig returns the default configuration for hand tracking.
func HandConfig() Config {
	return Config{
		Kind:           "hand",
		MatchThreshold: 0.2,
		MaxMisses:      5,
	}
}

// RectangleConfig returns the default configuration for board tracking.
// Rectangles outlive short occlusions much longer than hands; the board
// state machine applies its own hysteresis before the tracker gives up.
func RectangleConfig() Config {
	return Config{
		Kind:           "rectangle",
		MatchThreshold: 0.1,
		MaxMisses:      30,
	}
}

// Result reports what one Update did.
type Result struct {
	// Assignments holds the entity id for each observation, by index.
	Assignments []string

	// Detected lists entities created this frame.
	Detected []string

	// Missed lists surviving entities that had no observation this frame.
	Missed []string

	// Lost lists entities purged this frame.
	Lost []string
}

type slot struct {
	entity Entity
	live   bool
}

// Tracker matches observations to entities by nearest center.
type Tracker struct {
	config Config
	logger *zap.SugaredLogger
	slots  []slot
	free   []Handle
	byID   map[string]Handle
}

// New creates a Tracker.
func New(config Config) *Tracker {
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	if config.NewID == nil {
		config.NewID = uuid.NewString
	}
	if config.MaxMisses < 1 {
		config.MaxMisses = 1
	}
	if config.Kind == "" {
		config.Kind = "entity"
	}
	return &Tracker{
		config: config,
		logger: config.Logger.Named("tracker").With("kind", config.Kind),
		byID:   make(map[string]Handle),
	}
}

type candidate struct {
	handle Handle
	obs    int
	dist   float64
}

// Update matches the observation centers of one frame against the tracked
// entities. Matching is greedy by ascending distance and one-to-one; pairs
// at or beyond the match threshold are never matched.
func (t *Tracker) Update(centers []geometry.Point, now time.Time) Result {
	res := Result{Assignments: make([]string, len(centers))}

	var pairs []candidate
	for h := range t.slots {
		if !t.slots[h].live {
			continue
		}
		c := t.slots[h].entity.Center
		for i, p := range centers {
			d := geometry.Distance(c, p)
			if d < t.config.MatchThreshold {
				pairs = append(pairs, candidate{handle: Handle(h), obs: i, dist: d})
			}
		}
	}
	slices.SortFunc(pairs, func(a, b candidate) int {
		return cmp.Or(
			cmp.Compare(a.dist, b.dist),
			cmp.Compare(a.handle, b.handle),
			cmp.Compare(a.obs, b.obs),
		)
	})

	matched := make(map[Handle]bool)
	for _, p := range pairs {
		if matched[p.handle] || res.Assignments[p.obs] != "" {
			continue
		}
		matched[p.handle] = true
		e := &t.slots[p.handle].entity
		e.Center = centers[p.obs]
		e.Misses = 0
		e.Hits++
		e.LastSeen = now
		res.Assignments[p.obs] = e.ID
	}

	// Age unmatched entities before spawning so new slots are not aged.
	for h := range t.slots {
		s := &t.slots[h]
		if !s.live || matched[Handle(h)] {
			continue
		}
		s.entity.Misses++
		if s.entity.Misses >= t.config.MaxMisses {
			res.Lost = append(res.Lost, s.entity.ID)
			t.logger.Debugw("entity lost", "id", s.entity.ID, "misses", s.entity.Misses)
			t.release(Handle(h))
			continue
		}
		res.Missed = append(res.Missed, s.entity.ID)
	}

	for i, p := range centers {
		if res.Assignments[i] != "" {
			continue
		}
		id := t.spawn(p, now)
		res.Assignments[i] = id
		res.Detected = append(res.Detected, id)
		t.logger.Debugw("entity detected", "id", id, "x", p.X, "y", p.Y)
	}

	res.Lost = append(res.Lost, t.check()...)
	return res
}

func (t *Tracker) spawn(center geometry.Point, now time.Time) string {
	e := Entity{
		ID:        t.config.NewID(),
		Center:    center,
		Hits:      1,
		FirstSeen: now,
		LastSeen:  now,
	}

	var h Handle
	if n := len(t.free); n > 0 {
		h = t.free[n-1]
		t.free = t.free[:n-1]
		t.slots[h] = slot{entity: e, live: true}
	} else {
		h = Handle(len(t.slots))
		t.slots = append(t.slots, slot{entity: e, live: true})
	}
	t.byID[e.ID] = h
	return e.ID
}

func (t *Tracker) release(h Handle) {
	s := &t.slots[h]
	if cur, ok := t.byID[s.entity.ID]; ok && cur == h {
		delete(t.byID, s.entity.ID)
	}
	*s = slot{}
	t.free = append(t.free, h)
}

// check verifies the arena and id index agree. Offending entities are
// dropped and returned, or the tracker panics in strict mode.
func (t *Tracker) check() []string {
	var dropped []string
	live := 0
	for h := range t.slots {
		s := &t.slots[h]
		if !s.live {
			continue
		}
		live++
		if cur, ok := t.byID[s.entity.ID]; !ok || cur != Handle(h) {
			t.violation(fmt.Errorf("entity %q at handle %d not indexed (index has %d, %v)", s.entity.ID, h, cur, ok))
			dropped = append(dropped, s.entity.ID)
			t.release(Handle(h))
			live--
		}
	}
	if len(t.byID) != live {
		t.violation(fmt.Errorf("index has %d ids for %d live entities", len(t.byID), live))
		for id, h := range t.byID {
			if int(h) >= len(t.slots) || !t.slots[h].live || t.slots[h].entity.ID != id {
				delete(t.byID, id)
			}
		}
	}
	return dropped
}

func (t *Tracker) violation(err error) {
	if t.config.Strict {
		panic("tracking: " + err.Error())
	}
	t.logger.Errorw("tracker invariant violated, dropping entity", "error", err)
}

// Get returns the entity with the given id.
func (t *Tracker) Get(id string) (Entity, bool) {
	h, ok := t.byID[id]
	if !ok {
		return Entity{}, false
	}
	return t.slots[h].entity, true
}

// Len returns the number of live entities.
func (t *Tracker) Len() int {
	return len(t.byID)
}

// Entities returns the live entities ordered by first sighting.
func (t *Tracker) Entities() []Entity {
	out := make([]Entity, 0, len(t.byID))
	for _, s := range t.slots {
		if s.live {
			out = append(out, s.entity)
		}
	}
	slices.SortStableFunc(out, func(a, b Entity) int {
		return a.FirstSeen.Compare(b.FirstSeen)
	})
	return out
}

// Reset discards all entities without reporting them as lost.
func (t *Tracker) Reset() {
	t.slots = nil
	t.free = nil
	clear(t.byID)
}
