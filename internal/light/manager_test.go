package light

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"sync"
	"testing"

	"iluminize-go-home/internal/iluminize"
	"iluminize-go-home/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// wire records every payload written through the dialer it hands out, in
// dial order.
type wire struct {
	mu    sync.Mutex
	sent  map[string][][]byte
	wg    sync.WaitGroup
	dials int
}

func newWire() *wire {
	return &wire{sent: make(map[string][][]byte)}
}

func (w *wire) dial(_ context.Context, _, address string) (net.Conn, error) {
	client, server := net.Pipe()
	w.mu.Lock()
	w.dials++
	slot := len(w.sent[address])
	w.sent[address] = append(w.sent[address], nil)
	w.mu.Unlock()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		b, _ := io.ReadAll(server)
		server.Close()
		w.mu.Lock()
		w.sent[address][slot] = b
		w.mu.Unlock()
	}()
	return client, nil
}

func (w *wire) payloads(address string) [][]byte {
	w.wg.Wait()
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sent[address]
}

func newTestManager(t *testing.T, path string) (*Manager, *wire, *store.BoltStore) {
	t.Helper()
	if path == "" {
		path = filepath.Join(t.TempDir(), "lights.db")
	}
	st, err := store.NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	w := newWire()
	m := NewManager(st, NewEventBus(testLogger()), testLogger(), WithDialer(w.dial))
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	return m, w, st
}

func TestCreateEntryRGBW(t *testing.T) {
	m, _, _ := newTestManager(t, "")

	var added []string
	m.Bus().On(EventEntityAdded, func(ev Event) {
		added = append(added, ev.Data.(EntityInfo).EntityID)
	})

	entry, err := m.CreateEntry(Config{Host: "192.168.1.50", Sender: "AABBCC", Name: "Kitchen"})
	if err != nil {
		t.Fatal(err)
	}
	if entry.Title != "Iluminize LED Controller (Kitchen)" {
		t.Errorf("title = %q", entry.Title)
	}
	if entry.UniqueID != "192.168.1.50:8899" {
		t.Errorf("unique id = %q", entry.UniqueID)
	}
	if len(entry.ID) != 36 {
		t.Errorf("id = %q, want uuid", entry.ID)
	}

	ents := m.Entities()
	if len(ents) != 2 {
		t.Fatalf("entities = %d, want 2", len(ents))
	}
	if ents[0].EntityID != "iluminize_192_168_1_50_8899_rgb" || ents[1].EntityID != "iluminize_192_168_1_50_8899_white" {
		t.Errorf("entities = %s, %s", ents[0].EntityID, ents[1].EntityID)
	}
	if len(added) != 2 {
		t.Errorf("entity_added events = %d, want 2", len(added))
	}
}

func TestCreateEntryPerType(t *testing.T) {
	m, _, _ := newTestManager(t, "")

	if _, err := m.CreateEntry(Config{Host: "10.0.0.1", Sender: "000001", Type: TypeRGB}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateEntry(Config{Host: "10.0.0.2", Sender: "000002", Type: TypeW}); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Entity("iluminize_10_0_0_1_8899_rgb"); err != nil {
		t.Errorf("RGB entity: %v", err)
	}
	if _, err := m.Entity("iluminize_10_0_0_1_8899_white"); !errors.Is(err, ErrEntityNotFound) {
		t.Errorf("RGB entry created a white entity")
	}
	if _, err := m.Entity("iluminize_10_0_0_2_8899_white"); err != nil {
		t.Errorf("white entity: %v", err)
	}
	if n := len(m.Entities()); n != 2 {
		t.Errorf("entities = %d, want 2", n)
	}
}

func TestCreateEntryInvalidSenderBuildsNothing(t *testing.T) {
	m, w, _ := newTestManager(t, "")

	_, err := m.CreateEntry(Config{Host: "10.0.0.1", Sender: "ZZZZZZ"})
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Fields["sender"] != CodeInvalidSender {
		t.Fatalf("err = %v, want invalid_sender_format", err)
	}
	if n := len(m.Entities()); n != 0 {
		t.Errorf("entities = %d, want 0", n)
	}
	entries, _ := m.Entries()
	if len(entries) != 0 {
		t.Errorf("entries = %d, want 0", len(entries))
	}
	if w.dials != 0 {
		t.Errorf("dials = %d, want 0", w.dials)
	}
}

func TestCreateEntryDuplicate(t *testing.T) {
	m, _, _ := newTestManager(t, "")

	if _, err := m.CreateEntry(Config{Host: "10.0.0.1", Sender: "AABBCC"}); err != nil {
		t.Fatal(err)
	}
	_, err := m.CreateEntry(Config{Host: "10.0.0.1", Port: 8899, Sender: "010203", Type: TypeW})
	if !errors.Is(err, ErrAlreadyConfigured) {
		t.Fatalf("err = %v, want ErrAlreadyConfigured", err)
	}
	if _, err := m.CreateEntry(Config{Host: "10.0.0.1", Port: 8900, Sender: "010203"}); err != nil {
		t.Errorf("other port: %v", err)
	}
}

func TestCreateEntryEntityIDCollision(t *testing.T) {
	m, _, _ := newTestManager(t, "")

	a, err := m.CreateEntry(Config{Host: "lamp-a", Sender: "010203", Type: TypeW})
	if err != nil {
		t.Fatal(err)
	}
	_, err = m.CreateEntry(Config{Host: "lamp.a", Sender: "040506", Type: TypeW})
	if !errors.Is(err, ErrAlreadyConfigured) {
		t.Fatalf("err = %v, want ErrAlreadyConfigured", err)
	}
	// A type without the clashing channel still fits.
	if _, err := m.CreateEntry(Config{Host: "lamp.a", Sender: "040506", Type: TypeRGB}); err != nil {
		t.Fatalf("rgb entry: %v", err)
	}

	entries, _ := m.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	info, err := m.Entity("iluminize_lamp_a_8899_white")
	if err != nil {
		t.Fatal(err)
	}
	if info.EntryID != a.ID {
		t.Errorf("white entity owned by %s, want %s", info.EntryID, a.ID)
	}
}

func TestTurnOnSendsScaledFrame(t *testing.T) {
	m, w, st := newTestManager(t, "")
	if _, err := m.CreateEntry(Config{Host: "10.0.0.1", Sender: "010203", Type: TypeW, MaxW: "80"}); err != nil {
		t.Fatal(err)
	}

	var changes []StateChange
	m.Bus().On(EventStateChanged, func(ev Event) {
		changes = append(changes, ev.Data.(StateChange))
	})

	id := "iluminize_10_0_0_1_8899_white"
	state, err := m.TurnOn(context.Background(), id, TurnOnParams{Brightness: u8(255)})
	if err != nil {
		t.Fatal(err)
	}
	if !state.On || state.Brightness != 255 {
		t.Errorf("state = %+v", state)
	}

	sent := w.payloads("10.0.0.1:8899")
	if len(sent) != 1 {
		t.Fatalf("payloads = %d, want 1", len(sent))
	}
	want := iluminize.WhiteFrame(iluminize.Address{1, 2, 3}, 0x80)
	if string(sent[0]) != string(want.Doubled()) {
		t.Errorf("payload = % X, want % X", sent[0], want.Doubled())
	}

	if len(changes) != 1 || changes[0].EntityID != id {
		t.Errorf("state_changed = %+v", changes)
	}
	saved, err := st.GetState(id)
	if err != nil {
		t.Fatal(err)
	}
	if !saved.On || saved.SavedBrightness != 255 {
		t.Errorf("saved = %+v", saved)
	}
}

func TestTurnOnUnknownEntity(t *testing.T) {
	m, _, _ := newTestManager(t, "")
	if _, err := m.TurnOn(context.Background(), "nope", TurnOnParams{}); !errors.Is(err, ErrEntityNotFound) {
		t.Errorf("TurnOn err = %v", err)
	}
	if _, err := m.TurnOff(context.Background(), "nope"); !errors.Is(err, ErrEntityNotFound) {
		t.Errorf("TurnOff err = %v", err)
	}
	if _, err := m.Toggle(context.Background(), "nope"); !errors.Is(err, ErrEntityNotFound) {
		t.Errorf("Toggle err = %v", err)
	}
}

func TestTransportFailureKeepsOptimisticState(t *testing.T) {
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "lights.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	refuse := func(context.Context, string, string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}
	m := NewManager(st, NewEventBus(testLogger()), testLogger(), WithDialer(refuse))
	if _, err := m.CreateEntry(Config{Host: "10.0.0.1", Sender: "AABBCC", Type: TypeRGB}); err != nil {
		t.Fatal(err)
	}

	id := "iluminize_10_0_0_1_8899_rgb"
	state, err := m.TurnOn(context.Background(), id, TurnOnParams{Brightness: u8(10)})
	if err != nil {
		t.Fatalf("TurnOn err = %v, want nil", err)
	}
	if !state.On || state.Brightness != 10 {
		t.Errorf("state = %+v", state)
	}
}

func TestToggle(t *testing.T) {
	m, _, _ := newTestManager(t, "")
	if _, err := m.CreateEntry(Config{Host: "10.0.0.1", Sender: "AABBCC", Type: TypeW}); err != nil {
		t.Fatal(err)
	}
	id := "iluminize_10_0_0_1_8899_white"

	st, _ := m.Toggle(context.Background(), id)
	if !st.On {
		t.Error("first toggle did not turn on")
	}
	st, _ = m.Toggle(context.Background(), id)
	if st.On {
		t.Error("second toggle did not turn off")
	}
}

func TestConcurrentTogglesPair(t *testing.T) {
	m, w, _ := newTestManager(t, "")
	if _, err := m.CreateEntry(Config{Host: "10.0.0.1", Sender: "AABBCC", Type: TypeW}); err != nil {
		t.Fatal(err)
	}
	id := "iluminize_10_0_0_1_8899_white"

	const n = 20
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Toggle(context.Background(), id)
		}()
	}
	wg.Wait()

	info, _ := m.Entity(id)
	if info.State.On {
		t.Error("an even number of toggles left the light on")
	}
	on := 0
	for _, p := range w.payloads("10.0.0.1:8899") {
		if p[8] != 0 {
			on++
		}
	}
	if on != n/2 {
		t.Errorf("turn-on frames = %d, want %d", on, n/2)
	}
}

func TestRestartRestoresState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lights.db")

	st, err := store.NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(st, NewEventBus(testLogger()), testLogger(), WithDialer(newWire().dial))
	if _, err := m.CreateEntry(Config{Host: "10.0.0.1", Sender: "AABBCC", Type: TypeRGB}); err != nil {
		t.Fatal(err)
	}
	id := "iluminize_10_0_0_1_8899_rgb"
	blue := [3]uint8{0, 0, 255}
	if _, err := m.TurnOn(context.Background(), id, TurnOnParams{Brightness: u8(50), RGB: &blue}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.TurnOff(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	m.Stop()
	st.Close()

	m2, _, _ := newTestManager(t, path)
	info, err := m2.Entity(id)
	if err != nil {
		t.Fatal(err)
	}
	if info.State.On || info.State.Brightness != 50 || *info.State.RGB != blue {
		t.Errorf("restored = %+v rgb=%v", info.State, *info.State.RGB)
	}
}

func TestUpdateOptionsReloads(t *testing.T) {
	m, w, _ := newTestManager(t, "")
	entry, err := m.CreateEntry(Config{Host: "10.0.0.1", Sender: "010203", Type: TypeW})
	if err != nil {
		t.Fatal(err)
	}
	id := "iluminize_10_0_0_1_8899_white"
	if _, err := m.TurnOn(context.Background(), id, TurnOnParams{Brightness: u8(255)}); err != nil {
		t.Fatal(err)
	}

	var events []string
	m.Bus().OnAll(func(ev Event) { events = append(events, ev.Type) })

	updated, err := m.UpdateOptions(entry.ID, Options{MaxW: "40"})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Options.MaxW != "40" {
		t.Errorf("max_w = %q", updated.Options.MaxW)
	}
	wantEvents := []string{EventEntityRemoved, EventEntityAdded, EventEntryUpdated}
	if len(events) != len(wantEvents) {
		t.Fatalf("events = %v, want %v", events, wantEvents)
	}
	for i := range wantEvents {
		if events[i] != wantEvents[i] {
			t.Errorf("events = %v, want %v", events, wantEvents)
		}
	}

	info, _ := m.Entity(id)
	if !info.State.On || info.State.Brightness != 255 {
		t.Errorf("state lost on reload: %+v", info.State)
	}

	if _, err := m.TurnOn(context.Background(), id, TurnOnParams{}); err != nil {
		t.Fatal(err)
	}
	sent := w.payloads("10.0.0.1:8899")
	if len(sent) != 2 {
		t.Fatalf("sends = %d, want 2", len(sent))
	}
	if sent[0][8] != 0xFF {
		t.Errorf("white level before reload = 0x%02X, want 0xFF", sent[0][8])
	}
	if sent[1][8] != 0x40 {
		t.Errorf("white level after reload = 0x%02X, want 0x40", sent[1][8])
	}
}

func TestUpdateOptionsValidation(t *testing.T) {
	m, _, _ := newTestManager(t, "")
	entry, err := m.CreateEntry(Config{Host: "10.0.0.1", Sender: "010203"})
	if err != nil {
		t.Fatal(err)
	}

	var ce *ConfigError
	if _, err := m.UpdateOptions(entry.ID, Options{MaxRGB: "nope"}); !errors.As(err, &ce) {
		t.Errorf("err = %v, want *ConfigError", err)
	}
	if _, err := m.UpdateOptions("missing", Options{}); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("err = %v, want ErrEntryNotFound", err)
	}
}

func TestRemoveEntry(t *testing.T) {
	m, _, st := newTestManager(t, "")
	entry, err := m.CreateEntry(Config{Host: "10.0.0.1", Sender: "AABBCC"})
	if err != nil {
		t.Fatal(err)
	}
	rgbID := "iluminize_10_0_0_1_8899_rgb"
	if _, err := m.TurnOn(context.Background(), rgbID, TurnOnParams{}); err != nil {
		t.Fatal(err)
	}

	var removal EntryRemoval
	m.Bus().On(EventEntryRemoved, func(ev Event) { removal = ev.Data.(EntryRemoval) })

	if err := m.RemoveEntry(entry.ID); err != nil {
		t.Fatal(err)
	}
	if len(m.Entities()) != 0 {
		t.Error("entities left after remove")
	}
	if _, err := m.Entry(entry.ID); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("entry err = %v", err)
	}
	if _, err := st.GetState(rgbID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("state not deleted: %v", err)
	}
	if removal.EntryID != entry.ID || len(removal.EntityIDs) != 2 {
		t.Errorf("removal = %+v", removal)
	}

	if err := m.RemoveEntry(entry.ID); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("second remove err = %v", err)
	}
}

func TestImport(t *testing.T) {
	m, _, _ := newTestManager(t, "")
	if _, err := m.CreateEntry(Config{Host: "10.0.0.1", Sender: "AABBCC"}); err != nil {
		t.Fatal(err)
	}

	err := m.Import([]Config{
		{Host: "10.0.0.1", Sender: "AABBCC"},
		{Host: "10.0.0.2", Sender: "010203", Type: TypeW},
		{Host: "10.0.0.3", Sender: "ZZZZZZ"},
	})
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Errorf("err = %v, want joined ConfigError", err)
	}

	entries, _ := m.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
}
