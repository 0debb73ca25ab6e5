// Package app dispatches inbound connection commands against the set
// registry: one entry point per command, authorization first, state
// mutation second, room-scoped broadcast last. Rejected commands are
// silently ignored; clients are expected to disable controls rather
// than handle error replies.
package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/slidesync/slidesync/internal/deck"
	"github.com/slidesync/slidesync/internal/gateway"
	"github.com/slidesync/slidesync/internal/registry"
	"github.com/slidesync/slidesync/internal/session"
	"github.com/slidesync/slidesync/internal/snapshot"
)

const saveTimeout = 5 * time.Second

// Rooms is what the app needs from the connection manager.
type Rooms interface {
	Join(conn *gateway.Connection, setID string)
	Room(conn *gateway.Connection) string
	Publish(setID string, msg gateway.Message)
	Unicast(conn *gateway.Connection, msg gateway.Message)
}

// Mirror receives a copy of every room event, already encoded for the
// wire.
type Mirror interface {
	Publish(setID string, data []byte)
}

// App wires the registry, authenticator, rooms and persistence gateway
// together behind the connection manager's command interface.
type App struct {
	registry *registry.Registry
	auth     *session.Authenticator
	rooms    Rooms
	clock    clockwork.Clock
	store    snapshot.Store // nil disables persistence
	mirror   Mirror         // nil disables the event relay

	// cmdMu guards setCmd. Each set's mutex makes a mutation and the
	// broadcasts it queues one exclusive section, so concurrent hosts
	// cannot interleave a stale slideChanged after a newer one.
	cmdMu  sync.Mutex
	setCmd map[string]*sync.Mutex
}

// New creates the command dispatcher. store and mirror may be nil.
func New(reg *registry.Registry, auth *session.Authenticator, rooms Rooms, clock clockwork.Clock, store snapshot.Store, mirror Mirror) *App {
	return &App{
		registry: reg,
		auth:     auth,
		rooms:    rooms,
		clock:    clock,
		store:    store,
		mirror:   mirror,
		setCmd:   make(map[string]*sync.Mutex),
	}
}

var _ gateway.CommandHandler = (*App)(nil)

// HandleCommand routes one inbound message. Unknown commands and
// malformed payloads are ignored.
func (a *App) HandleCommand(conn *gateway.Connection, msg gateway.Message) {
	switch msg.Event {
	case gateway.CmdJoin:
		var setID string
		if err := json.Unmarshal(msg.Data, &setID); err != nil || setID == "" {
			return
		}
		a.join(conn, setID)

	case gateway.CmdLogin:
		var req gateway.LoginRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return
		}
		ok := a.auth.Login(conn.ID, req.Username, req.Password)
		a.unicast(conn, gateway.EventLoginResult, gateway.LoginResult{OK: ok})

	case gateway.CmdSelectSet:
		if !a.authorize(conn) {
			return
		}
		var setID string
		if err := json.Unmarshal(msg.Data, &setID); err != nil || setID == "" {
			return
		}
		a.join(conn, setID)

	case gateway.CmdChangeSlide:
		var index int
		if err := json.Unmarshal(msg.Data, &index); err != nil {
			return
		}
		a.navigate(conn, func(s *registry.Set) (bool, int, registry.TimerState) {
			return s.ChangeSlide(index)
		})

	case gateway.CmdNextSlide:
		a.navigate(conn, (*registry.Set).NextSlide)

	case gateway.CmdPrevSlide:
		a.navigate(conn, (*registry.Set).PrevSlide)

	case gateway.CmdStartTimer:
		var seconds int
		if err := json.Unmarshal(msg.Data, &seconds); err != nil {
			return
		}
		a.mutateTimer(conn, func(s *registry.Set) (bool, registry.TimerState) {
			return s.StartTimer(seconds, a.clock.Now())
		})

	case gateway.CmdStopTimer:
		a.mutateTimer(conn, (*registry.Set).StopTimer)

	case gateway.CmdResetTimer:
		a.mutateTimer(conn, (*registry.Set).ResetTimer)

	default:
		log.Debug().
			Str("connection_id", conn.ID).
			Str("event", msg.Event).
			Msg("ignoring unknown command")
	}
}

// HandleDisconnect discards any host session attached to the
// connection.
func (a *App) HandleDisconnect(conn *gateway.Connection) {
	a.auth.Drop(conn.ID)
}

// Tick sweeps all sets, recomputing running countdowns from wall-clock
// elapsed time, and broadcasts a timer update for each set whose
// countdown changed. Called once per second by the server's tick loop.
func (a *App) Tick(now time.Time) {
	for _, set := range a.registry.Sets() {
		mu := a.setLock(set.ID)
		mu.Lock()
		if changed, timer := set.Tick(now); changed {
			a.publish(set.ID, gateway.EventTimerUpdate, timer)
		}
		mu.Unlock()
	}
}

// ReloadDeck re-runs the deck loader for a live set and broadcasts the
// replacement snapshot to its room.
func (a *App) ReloadDeck(setID string) error {
	mu := a.setLock(setID)
	mu.Lock()
	defer mu.Unlock()

	snap, err := a.registry.Reload(setID)
	if err != nil {
		return err
	}
	a.publish(setID, gateway.EventSlidesUpdated, snap)
	return nil
}

// ListAvailable enumerates the sets the deck loader can materialize.
func (a *App) ListAvailable() ([]deck.Metadata, error) {
	return a.registry.ListAvailable()
}

// join moves the connection into the set's room and unicasts the full
// state snapshot to it. The set is materialized on first join.
func (a *App) join(conn *gateway.Connection, setID string) {
	set := a.registry.GetOrCreate(setID)
	a.rooms.Join(conn, setID)
	a.unicast(conn, gateway.EventInit, set.Snapshot())
}

// authorize gates a privileged command. An expired session is cleared
// and notified exactly once, on the first rejected command after
// expiry.
func (a *App) authorize(conn *gateway.Connection) bool {
	ok, expired := a.auth.Authorize(conn.ID)
	if expired {
		a.unicast(conn, gateway.EventSessionExpired, nil)
	}
	return ok
}

// navigate applies a slide-change operation to the host's current set.
// If the index actually changed, slideChanged and timerUpdate are
// broadcast in that order and the new position is persisted.
func (a *App) navigate(conn *gateway.Connection, op func(*registry.Set) (bool, int, registry.TimerState)) {
	if !a.authorize(conn) {
		return
	}

	set, ok := a.currentSet(conn)
	if !ok {
		return
	}

	mu := a.setLock(set.ID)
	mu.Lock()
	defer mu.Unlock()

	changed, index, timer := op(set)
	if !changed {
		return
	}

	a.publish(set.ID, gateway.EventSlideChanged, index)
	a.publish(set.ID, gateway.EventTimerUpdate, timer)
	a.persist()
}

// mutateTimer applies a timer operation to the host's current set and
// broadcasts the new timer state if it changed.
func (a *App) mutateTimer(conn *gateway.Connection, op func(*registry.Set) (bool, registry.TimerState)) {
	if !a.authorize(conn) {
		return
	}

	set, ok := a.currentSet(conn)
	if !ok {
		return
	}

	mu := a.setLock(set.ID)
	mu.Lock()
	defer mu.Unlock()

	changed, timer := op(set)
	if !changed {
		return
	}
	a.publish(set.ID, gateway.EventTimerUpdate, timer)
}

// setLock returns the command mutex for a set, creating it on first
// use. Sets are never evicted, so neither are their mutexes.
func (a *App) setLock(setID string) *sync.Mutex {
	a.cmdMu.Lock()
	defer a.cmdMu.Unlock()
	mu, ok := a.setCmd[setID]
	if !ok {
		mu = &sync.Mutex{}
		a.setCmd[setID] = mu
	}
	return mu
}

// currentSet resolves the set a host command acts on: the one the
// connection's room membership selects.
func (a *App) currentSet(conn *gateway.Connection) (*registry.Set, bool) {
	setID := a.rooms.Room(conn)
	if setID == "" {
		return nil, false
	}
	return a.registry.Get(setID)
}

func (a *App) publish(setID, event string, payload any) {
	msg, err := gateway.NewMessage(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to build event")
		return
	}
	a.rooms.Publish(setID, msg)

	if a.mirror != nil {
		if data, err := json.Marshal(msg); err == nil {
			a.mirror.Publish(setID, data)
		}
	}
}

func (a *App) unicast(conn *gateway.Connection, event string, payload any) {
	msg, err := gateway.NewMessage(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to build event")
		return
	}
	a.rooms.Unicast(conn, msg)
}

// persist writes the current slide positions in the background. A
// failed write is logged and never interrupts state mutation.
func (a *App) persist() {
	if a.store == nil {
		return
	}

	positions := a.registry.Indices()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := a.store.Save(ctx, positions); err != nil {
			log.Error().Err(err).Msg("failed to persist slide positions")
		}
	}()
}
