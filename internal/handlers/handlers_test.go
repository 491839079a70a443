package handlers

import (
	"errors"
	"sync"
	"testing"
	"time"

	"goki.dev/mat32/v2"

	"github.com/viewmark/extension/internal/dispatcher"
	"github.com/viewmark/extension/internal/logging"
	"github.com/viewmark/extension/internal/parser"
	"github.com/viewmark/extension/internal/runloop"
	"github.com/viewmark/extension/internal/session"
	"github.com/viewmark/extension/internal/store"
	"github.com/viewmark/extension/internal/transition"
	"github.com/viewmark/extension/internal/worker"
	"github.com/viewmark/extension/pkg/core"
	"github.com/viewmark/extension/pkg/streaming"
	"github.com/viewmark/extension/pkg/viewport"
)

// mockLogger implements dispatcher.Logger for testing
type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *mockLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *mockLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *mockLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

// mockMirrorBackend implements storage.Backend plus the Mirror extension
type mockMirrorBackend struct {
	mu          sync.Mutex
	savedLayout *core.Layout
	loadLayout  *core.Layout
	loadErr     error
	mirrored    []string
	contexts    []core.ContextKey
}

func (b *mockMirrorBackend) Init() error  { return nil }
func (b *mockMirrorBackend) Close() error { return nil }

func (b *mockMirrorBackend) SaveLayout(layout *core.Layout) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.savedLayout = layout
	return nil
}

func (b *mockMirrorBackend) LoadLayout() (*core.Layout, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	if b.loadLayout != nil {
		return b.loadLayout, nil
	}
	return &core.Layout{}, nil
}

func (b *mockMirrorBackend) RecordUsage(e *core.UsageEvent) error { return nil }

func (b *mockMirrorBackend) MirrorChange(msgType string, payload streaming.BookmarkChangePayload) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mirrored = append(b.mirrored, msgType)
	return nil
}

func (b *mockMirrorBackend) MirrorContextChanged(key core.ContextKey, contextPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contexts = append(b.contexts, key)
	return nil
}

type testHarness struct {
	service    *Service
	dispatcher *dispatcher.Dispatcher
	store      *store.Store
	transition *transition.Transition
	sim        *viewport.Sim
	backend    *mockMirrorBackend
	queues     *worker.Queues
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	loop := runloop.New()
	s := store.New(loop)
	s.SetActiveContext("scene-a", "/scenes/a.scene")

	logMgr := logging.NewSlogManager()
	sess := session.NewContext()
	sess.SetProjectName("citybuilder")

	queues := worker.NewQueues()
	workerMgr := worker.NewManager(worker.Dependencies{
		Store:      s,
		Session:    sess,
		LogManager: logMgr,
	}, queues)

	tr := transition.New()
	svc := NewService(Dependencies{
		Store:              s,
		Loop:               loop,
		Transition:         tr,
		Parser:             parser.New(logMgr.Logger()),
		Session:            sess,
		LogManager:         logMgr,
		Worker:             workerMgr,
		TransitionDuration: 400 * time.Millisecond,
	})

	sim := viewport.NewSim(core.Pose{
		Pivot:    mat32.Vec3{X: 0, Y: 0, Z: 0},
		Rotation: mat32.Quat{W: 1},
		Size:     10,
		Distance: 5,
	})
	svc.SetViewport(sim)

	backend := &mockMirrorBackend{}
	svc.SetBackend(backend)
	workerMgr.SetBackend(backend)

	d, err := dispatcher.New(&mockLogger{})
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}
	svc.RegisterHandlers(d)

	return &testHarness{
		service:    svc,
		dispatcher: d,
		store:      s,
		transition: tr,
		sim:        sim,
		backend:    backend,
		queues:     queues,
	}
}

func dispatch(t *testing.T, h *testHarness, command string, args ...string) any {
	t.Helper()
	result, err := h.dispatcher.Dispatch(dispatcher.Event{Command: command, Args: args, Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("dispatch %s failed: %v", command, err)
	}
	return result
}

func TestRegisterHandlers_RegistersAllCommands(t *testing.T) {
	h := newTestHarness(t)

	expectedCommands := []string{
		"ctx:set",
		"bm:add",
		"bm:remove",
		"bm:rename",
		"bm:replace",
		"bm:setpos",
		"bm:reorder",
		"bm:recall",
		"bm:look",
		"key:1",
		"key:9",
		"key:0",
		"layout:save",
		"layout:load",
		"metric:write",
		"frame:tick",
	}

	for _, cmd := range expectedCommands {
		if !h.dispatcher.HasHandler(cmd) {
			t.Errorf("expected handler for %s to be registered", cmd)
		}
	}
}

func TestHandleContextSet(t *testing.T) {
	h := newTestHarness(t)

	dispatch(t, h, "ctx:set", `"scene-b"`, `"/scenes/b.scene"`)

	if h.store.ActiveContext() != "scene-b" {
		t.Errorf("expected active context scene-b, got %s", h.store.ActiveContext())
	}
	if len(h.backend.contexts) != 1 || h.backend.contexts[0] != "scene-b" {
		t.Errorf("expected context change mirrored, got %v", h.backend.contexts)
	}
}

func TestHandleAdd_FullBookmark(t *testing.T) {
	h := newTestHarness(t)

	result := dispatch(t, h, "bm:add",
		`"front gate"`, "[10,2,30]", "[0,0,0,1]", "12.5", "false", "[1,0,0,1]", "8", "[10,2,38]")

	index, ok := result.(int)
	if !ok {
		t.Fatalf("expected int index result, got %T", result)
	}
	if index != 0 {
		t.Errorf("expected index 0, got %d", index)
	}

	b, found := h.store.Get(0)
	if !found {
		t.Fatal("expected bookmark in store")
	}
	if b.Name != "front gate" {
		t.Errorf("expected name 'front gate', got %q", b.Name)
	}
	if len(h.backend.mirrored) != 1 || h.backend.mirrored[0] != streaming.TypeBookmarkAdded {
		t.Errorf("expected bookmark_added mirrored, got %v", h.backend.mirrored)
	}
	if h.queues.Usage.Len() != 1 {
		t.Errorf("expected usage event queued, got %d", h.queues.Usage.Len())
	}
	if h.queues.Saves.Len() != 1 {
		t.Errorf("expected save queued, got %d", h.queues.Saves.Len())
	}
}

func TestHandleAdd_CapturesViewportPose(t *testing.T) {
	h := newTestHarness(t)

	dispatch(t, h, "bm:add", `"captured"`)

	b, found := h.store.Get(0)
	if !found {
		t.Fatal("expected bookmark in store")
	}
	if b.Name != "captured" {
		t.Errorf("expected name 'captured', got %q", b.Name)
	}
	if b.Distance != 5 {
		t.Errorf("expected viewport distance 5, got %v", b.Distance)
	}
}

func TestHandleAdd_NoViewport(t *testing.T) {
	h := newTestHarness(t)
	h.service.SetViewport(nil)

	_, err := h.dispatcher.Dispatch(dispatcher.Event{Command: "bm:add", Args: []string{`"x"`}})
	if !errors.Is(err, core.ErrNoActiveViewport) {
		t.Errorf("expected ErrNoActiveViewport, got %v", err)
	}
}

func TestHandleRemove(t *testing.T) {
	h := newTestHarness(t)
	h.store.Add(core.Bookmark{Name: "doomed"})

	dispatch(t, h, "bm:remove", "0")

	if h.store.Count() != 0 {
		t.Errorf("expected empty store, got %d records", h.store.Count())
	}
}

func TestHandleRemove_OutOfRange(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.dispatcher.Dispatch(dispatcher.Event{Command: "bm:remove", Args: []string{"3"}})
	if !errors.Is(err, core.ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestHandleRename(t *testing.T) {
	h := newTestHarness(t)
	h.store.Add(core.Bookmark{Name: "old"})

	dispatch(t, h, "bm:rename", "0", `"new name"`)

	b, _ := h.store.Get(0)
	if b.Name != "new name" {
		t.Errorf("expected renamed bookmark, got %q", b.Name)
	}
}

func TestHandleSetPosition_ReconcilesPivot(t *testing.T) {
	h := newTestHarness(t)
	h.store.Add(core.Bookmark{
		Name:     "spot",
		Rotation: mat32.Quat{W: 1}, // identity, forward is -Z
		Distance: 10,
	})

	dispatch(t, h, "bm:setpos", "0", "[5,5,5]")

	b, _ := h.store.Get(0)
	if b.CameraPosition.X != 5 || b.CameraPosition.Y != 5 || b.CameraPosition.Z != 5 {
		t.Errorf("expected camera at (5,5,5), got %v", b.CameraPosition)
	}
	// pivot = camera + forward*distance = (5,5,5) + (0,0,-1)*10
	if b.Pivot.Z != -5 {
		t.Errorf("expected pivot z -5, got %v", b.Pivot.Z)
	}
}

func TestHandleReorder(t *testing.T) {
	h := newTestHarness(t)
	h.store.Add(core.Bookmark{Name: "a"})
	h.store.Add(core.Bookmark{Name: "b"})
	h.store.Add(core.Bookmark{Name: "c"})

	dispatch(t, h, "bm:reorder", "0", "2")

	names := make([]string, 0, 3)
	for _, b := range h.store.List() {
		names = append(names, b.Name)
	}
	if names[0] != "b" || names[1] != "c" || names[2] != "a" {
		t.Errorf("expected order [b c a], got %v", names)
	}
}

func TestHandleRecall_StartsTransition(t *testing.T) {
	h := newTestHarness(t)
	h.store.Add(core.Bookmark{
		Name:     "target",
		Pivot:    mat32.Vec3{X: 100},
		Rotation: mat32.Quat{W: 1},
		Distance: 5,
	})

	dispatch(t, h, "bm:recall", "0")

	if h.transition.State() != transition.Animating {
		t.Error("expected transition animating after recall")
	}
}

func TestHandleHotkey(t *testing.T) {
	h := newTestHarness(t)
	h.store.Add(core.Bookmark{Name: "first", Rotation: mat32.Quat{W: 1}})
	h.store.Add(core.Bookmark{Name: "second", Rotation: mat32.Quat{W: 1}})

	// key:2 recalls index 1
	dispatch(t, h, "key:2")

	if h.transition.State() != transition.Animating {
		t.Error("expected transition animating after hotkey recall")
	}
}

func TestHandleHotkey_UnboundDigit(t *testing.T) {
	h := newTestHarness(t)
	h.store.Add(core.Bookmark{Name: "only"})

	// key:5 points at index 4, which is unbound; must be a quiet no-op
	dispatch(t, h, "key:5")

	if h.transition.State() != transition.Idle {
		t.Error("expected no transition for unbound hotkey")
	}
}

func TestHandleLook_PicksNearestTarget(t *testing.T) {
	h := newTestHarness(t)
	// Sim camera sits at origin pivot, distance 5, looking down -Z from (0,0,5).
	// Bookmark "far" is well off the view ray, "aligned" is on it.
	h.store.Add(core.Bookmark{Name: "far", Pivot: mat32.Vec3{X: 50, Y: 0, Z: 0}, Rotation: mat32.Quat{W: 1}})
	h.store.Add(core.Bookmark{Name: "aligned", Pivot: mat32.Vec3{X: 0, Y: 0, Z: -20}, Rotation: mat32.Quat{W: 1}})

	result := dispatch(t, h, "bm:look")

	index, ok := result.(int)
	if !ok {
		t.Fatalf("expected int result, got %T", result)
	}
	if index != 1 {
		t.Errorf("expected nearest target index 1, got %d", index)
	}
	if h.transition.State() != transition.Animating {
		t.Error("expected transition animating after look recall")
	}
}

func TestHandleLayoutSaveLoad_RoundTrip(t *testing.T) {
	h := newTestHarness(t)
	h.store.Add(core.Bookmark{Name: "persisted"})

	dispatch(t, h, "layout:save")

	if h.backend.savedLayout == nil {
		t.Fatal("expected layout saved to backend")
	}

	h.store.RemoveAt(0)
	h.backend.loadLayout = h.backend.savedLayout

	dispatch(t, h, "layout:load")

	b, found := h.store.Get(0)
	if !found || b.Name != "persisted" {
		t.Errorf("expected restored bookmark, got %+v found=%v", b, found)
	}
}

func TestHandleLayoutLoad_MalformedFallsBackToEmpty(t *testing.T) {
	h := newTestHarness(t)
	h.store.Add(core.Bookmark{Name: "stale"})
	h.backend.loadErr = core.ErrMalformedSnapshot

	_, err := h.dispatcher.Dispatch(dispatcher.Event{Command: "layout:load"})
	if !errors.Is(err, core.ErrMalformedSnapshot) {
		t.Errorf("expected ErrMalformedSnapshot, got %v", err)
	}
	if h.store.Count() != 0 {
		t.Errorf("expected store reset to empty, got %d records", h.store.Count())
	}
}

func TestAdvance_AppliesPosesAndCompletes(t *testing.T) {
	h := newTestHarness(t)
	h.store.Add(core.Bookmark{
		Name:     "target",
		Pivot:    mat32.Vec3{X: 100},
		Rotation: mat32.Quat{W: 1},
		Distance: 5,
	})

	dispatch(t, h, "bm:recall", "0")

	// Drive past the 400ms duration in 100ms steps
	for i := 0; i < 6; i++ {
		h.service.Advance(100 * time.Millisecond)
	}

	if h.transition.State() != transition.Idle {
		t.Error("expected transition complete")
	}

	applied := h.sim.Applied()
	if len(applied) == 0 {
		t.Fatal("expected poses applied to viewport")
	}
	final := applied[len(applied)-1]
	if final.Pivot.X != 100 {
		t.Errorf("expected exact snap to destination pivot x=100, got %v", final.Pivot.X)
	}
}

func TestHandleFrameTick_DeliversNotificationsAndAdvances(t *testing.T) {
	h := newTestHarness(t)

	notified := 0
	h.store.Subscribe(func() { notified++ })

	dispatch(t, h, "bm:add",
		`"target"`, "[100,0,0]", "[0,0,0,1]", "10", "false", "[1,1,1,1]", "5", "[100,0,5]")
	if notified != 0 {
		t.Fatalf("change notification delivered before a frame tick, count %d", notified)
	}

	dispatch(t, h, "frame:tick")
	if notified != 1 {
		t.Errorf("expected 1 coalesced notification after tick, got %d", notified)
	}

	// Recall through the bridge surface, then drive the 400ms transition
	// with 100ms frames
	dispatch(t, h, "bm:recall", "0")
	for i := 0; i < 6; i++ {
		dispatch(t, h, "frame:tick", "0.1")
	}

	if h.transition.State() != transition.Idle {
		t.Error("expected transition complete from frame ticks alone")
	}
	applied := h.sim.Applied()
	if len(applied) == 0 {
		t.Fatal("expected poses applied to viewport")
	}
	if final := applied[len(applied)-1]; final.Pivot.X != 100 {
		t.Errorf("expected exact snap to destination pivot x=100, got %v", final.Pivot.X)
	}
}

func TestHandleFrameTick_RejectsBadDelta(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.dispatcher.Dispatch(dispatcher.Event{
		Command: "frame:tick", Args: []string{"fast"}, Timestamp: time.Now(),
	})
	if err == nil {
		t.Fatal("expected error for non-numeric frame delta")
	}
}

func TestAdvance_IdleIsNoop(t *testing.T) {
	h := newTestHarness(t)

	h.service.Advance(16 * time.Millisecond)

	if len(h.sim.Applied()) != 0 {
		t.Error("expected no poses applied while idle")
	}
}
