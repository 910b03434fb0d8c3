// Package light turns stored controller entries into light entities and
// drives them.
package light

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"iluminize-go-home/internal/iluminize"
	"iluminize-go-home/internal/metrics"
	"iluminize-go-home/internal/store"
)

var (
	// ErrEntityNotFound is returned for commands to an unknown entity id.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrEntryNotFound is returned for an unknown config entry id.
	ErrEntryNotFound = errors.New("entry not found")
)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout sets the per-send transport timeout of every controller.
func WithTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.timeout = d }
}

// WithMetrics records commands, entity counts and send outcomes.
func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mt }
}

// WithDialer replaces the TCP dialer of every controller.
func WithDialer(d iluminize.Dialer) ManagerOption {
	return func(m *Manager) { m.dial = d }
}

// loaded is a config entry that has been set up.
type loaded struct {
	entry    *store.Entry
	ctrl     *iluminize.Controller
	entities []*Entity
}

// Manager owns config entries and the entities set up from them.
type Manager struct {
	store   store.Store
	bus     *EventBus
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	dial    iluminize.Dialer

	// flowMu serializes create, update and remove so the uniqueness check
	// and the write happen together.
	flowMu sync.Mutex

	mu       sync.RWMutex
	entries  map[string]*loaded
	entities map[string]*Entity
}

// NewManager creates a manager. Call Start to set up stored entries.
func NewManager(st store.Store, bus *EventBus, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:    st,
		bus:      bus,
		logger:   logger.With("component", "light"),
		timeout:  iluminize.DefaultTimeout,
		entries:  make(map[string]*loaded),
		entities: make(map[string]*Entity),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Bus returns the event bus the manager publishes on.
func (m *Manager) Bus() *EventBus { return m.bus }

// Start sets up every stored entry. An entry that fails to set up is logged
// and skipped.
func (m *Manager) Start(ctx context.Context) error {
	entries, err := m.store.ListEntries()
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.setup(e); err != nil {
			m.logger.Error("entry setup failed", "entry", e.ID, "title", e.Title, "err", err)
		}
	}
	m.logger.Info("lights started", "entries", len(entries), "entities", m.entityCount())
	return nil
}

// Stop unloads every entry without touching the store.
func (m *Manager) Stop() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.unload(id)
	}
}

// Import creates an entry for each config whose host:port is not yet
// configured. Invalid configs are reported in the joined error; the rest are
// still imported.
func (m *Manager) Import(cfgs []Config) error {
	var errs []error
	for _, cfg := range cfgs {
		_, err := m.CreateEntry(cfg)
		switch {
		case err == nil:
		case errors.Is(err, ErrAlreadyConfigured):
			m.logger.Debug("device already configured", "unique_id", cfg.WithDefaults().UniqueID())
		default:
			errs = append(errs, fmt.Errorf("import %s: %w", cfg.WithDefaults().UniqueID(), err))
		}
	}
	return errors.Join(errs...)
}

// CreateEntry validates cfg, persists it as a new entry and sets it up. It
// returns a *ConfigError for invalid fields and ErrAlreadyConfigured when
// the host:port, or one of its entity ids, already has an entry.
func (m *Manager) CreateEntry(cfg Config) (*store.Entry, error) {
	res, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}

	m.flowMu.Lock()
	defer m.flowMu.Unlock()

	existing, err := m.store.ListEntries()
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	ids := entityIDs(res.Config)
	for _, e := range existing {
		if e.UniqueID == res.UniqueID() {
			return nil, ErrAlreadyConfigured
		}
		// Distinct hosts such as "lamp-a" and "lamp.a" share entity ids.
		for _, eid := range entityIDs(ConfigFromEntry(e).WithDefaults()) {
			if slices.Contains(ids, eid) {
				return nil, fmt.Errorf("%w: entity %s belongs to %s", ErrAlreadyConfigured, eid, e.Title)
			}
		}
	}

	now := time.Now().UTC()
	entry := &store.Entry{
		ID:        uuid.New().String(),
		Title:     res.Title(),
		UniqueID:  res.UniqueID(),
		Data:      res.entryData(),
		Options:   res.entryOptions(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.SaveEntry(entry); err != nil {
		return nil, fmt.Errorf("save entry: %w", err)
	}
	m.logger.Info("entry created", "entry", entry.ID, "title", entry.Title, "type", res.Type)
	m.bus.Emit(Event{Type: EventEntryAdded, Data: entry})

	if err := m.setup(entry); err != nil {
		return entry, err
	}
	return entry, nil
}

// UpdateOptions validates and stores new options for an entry, then reloads
// it so the new channel limits take effect.
func (m *Manager) UpdateOptions(id string, opts Options) (*store.Entry, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	m.flowMu.Lock()
	defer m.flowMu.Unlock()

	err := m.store.UpdateEntry(id, func(e *store.Entry) error {
		e.Options = store.EntryOptions{MaxRGB: opts.MaxRGB, MaxW: opts.MaxW}
		e.UpdatedAt = time.Now().UTC()
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update entry: %w", err)
	}
	entry, err := m.store.GetEntry(id)
	if err != nil {
		return nil, fmt.Errorf("reload entry: %w", err)
	}

	m.unload(id)
	if err := m.setup(entry); err != nil {
		return entry, err
	}
	m.logger.Info("entry options updated", "entry", id, "max_rgb", opts.MaxRGB, "max_w", opts.MaxW)
	m.bus.Emit(Event{Type: EventEntryUpdated, Data: entry})
	return entry, nil
}

// RemoveEntry unloads an entry and deletes it with the restore state of its
// entities.
func (m *Manager) RemoveEntry(id string) error {
	m.flowMu.Lock()
	defer m.flowMu.Unlock()

	entry, err := m.store.GetEntry(id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrEntryNotFound
	}
	if err != nil {
		return err
	}

	m.unload(id)

	cfg := ConfigFromEntry(entry).WithDefaults()
	ids := entityIDs(cfg)
	for _, eid := range ids {
		if err := m.store.DeleteState(eid); err != nil {
			m.logger.Warn("delete state failed", "entity", eid, "err", err)
		}
	}
	if err := m.store.DeleteEntry(id); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	m.logger.Info("entry removed", "entry", id, "title", entry.Title)
	m.bus.Emit(Event{Type: EventEntryRemoved, Data: EntryRemoval{EntryID: id, EntityIDs: ids}})
	return nil
}

// Entries returns all stored entries ordered by title.
func (m *Manager) Entries() ([]*store.Entry, error) {
	entries, err := m.store.ListEntries()
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Title != entries[j].Title {
			return entries[i].Title < entries[j].Title
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

// Entry returns one stored entry.
func (m *Manager) Entry(id string) (*store.Entry, error) {
	e, err := m.store.GetEntry(id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrEntryNotFound
	}
	return e, err
}

// Entities returns snapshots of all set-up entities ordered by id.
func (m *Manager) Entities() []EntityInfo {
	m.mu.RLock()
	list := make([]*Entity, 0, len(m.entities))
	for _, e := range m.entities {
		list = append(list, e)
	}
	m.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].id < list[j].id })
	out := make([]EntityInfo, len(list))
	for i, e := range list {
		out[i] = e.Info()
	}
	return out
}

// Entity returns a snapshot of one entity.
func (m *Manager) Entity(id string) (EntityInfo, error) {
	e, ok := m.lookup(id)
	if !ok {
		return EntityInfo{}, ErrEntityNotFound
	}
	return e.Info(), nil
}

// TurnOn turns an entity on. A transport failure is logged by the controller
// and does not fail the command.
func (m *Manager) TurnOn(ctx context.Context, id string, p TurnOnParams) (State, error) {
	e, ok := m.lookup(id)
	if !ok {
		return State{}, ErrEntityNotFound
	}
	st := e.turnOn(ctx, p)
	m.metrics.ObserveCommand("turn_on")
	m.stateChanged(e, st)
	return st, nil
}

// TurnOff turns an entity off.
func (m *Manager) TurnOff(ctx context.Context, id string) (State, error) {
	e, ok := m.lookup(id)
	if !ok {
		return State{}, ErrEntityNotFound
	}
	st := e.turnOff(ctx)
	m.metrics.ObserveCommand("turn_off")
	m.stateChanged(e, st)
	return st, nil
}

// Toggle turns an entity off when it is on and on otherwise.
func (m *Manager) Toggle(ctx context.Context, id string) (State, error) {
	e, ok := m.lookup(id)
	if !ok {
		return State{}, ErrEntityNotFound
	}
	st := e.toggle(ctx)
	m.metrics.ObserveCommand("toggle")
	m.stateChanged(e, st)
	return st, nil
}

func (m *Manager) lookup(id string) (*Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[id]
	return e, ok
}

func (m *Manager) entityCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities)
}

func (m *Manager) stateChanged(e *Entity, st State) {
	if err := m.store.SaveState(e.persisted()); err != nil {
		m.logger.Warn("save state failed", "entity", e.id, "err", err)
	}
	m.bus.Emit(Event{Type: EventStateChanged, Data: StateChange{EntityID: e.id, State: st}})
}

// setup builds the controller and entities of an entry and registers them.
func (m *Manager) setup(entry *store.Entry) error {
	res, err := ConfigFromEntry(entry).Resolve()
	if err != nil {
		return err
	}

	opts := []iluminize.Option{iluminize.WithMetrics(m.metrics)}
	if m.dial != nil {
		opts = append(opts, iluminize.WithDialer(m.dial))
	}
	ctrl := iluminize.NewController(iluminize.ControllerConfig{
		Host:    res.Host,
		Port:    res.Port,
		Address: res.Address,
		Timeout: m.timeout,
	}, m.logger, opts...)

	l := &loaded{entry: entry, ctrl: ctrl}
	if res.HasRGB() {
		m.logger.Debug("creating RGB entity", "host", res.Host, "port", res.Port, "sender", res.Sender, "max_rgb", res.MaxRGB.String())
		l.entities = append(l.entities, newEntity(entry.ID, KindRGB, res, ctrl))
	}
	if res.HasWhite() {
		m.logger.Debug("creating white entity", "host", res.Host, "port", res.Port, "sender", res.Sender, "max_w", res.MaxW.String())
		l.entities = append(l.entities, newEntity(entry.ID, KindWhite, res, ctrl))
	}

	for _, e := range l.entities {
		st, err := m.store.GetState(e.id)
		switch {
		case err == nil:
			e.restore(st)
		case errors.Is(err, store.ErrNotFound):
		default:
			m.logger.Warn("load state failed", "entity", e.id, "err", err)
		}
	}

	m.mu.Lock()
	m.entries[entry.ID] = l
	for _, e := range l.entities {
		m.entities[e.id] = e
	}
	count := len(m.entities)
	m.mu.Unlock()
	m.metrics.SetEntities(count)

	for _, e := range l.entities {
		m.bus.Emit(Event{Type: EventEntityAdded, Data: e.Info()})
	}
	return nil
}

// unload removes the entities of an entry. The store is not modified.
func (m *Manager) unload(id string) {
	m.mu.Lock()
	l, ok := m.entries[id]
	if ok {
		delete(m.entries, id)
		for _, e := range l.entities {
			delete(m.entities, e.id)
		}
	}
	count := len(m.entities)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.metrics.SetEntities(count)

	for _, e := range l.entities {
		m.bus.Emit(Event{Type: EventEntityRemoved, Data: e.Info()})
	}
}

func entityIDs(cfg Config) []string {
	var ids []string
	if cfg.HasRGB() {
		ids = append(ids, EntityID(cfg.Host, cfg.Port, KindRGB))
	}
	if cfg.HasWhite() {
		ids = append(ids, EntityID(cfg.Host, cfg.Port, KindWhite))
	}
	return ids
}
