package handlers

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/viewmark/extension/internal/dispatcher"
	"github.com/viewmark/extension/internal/influx"
	"github.com/viewmark/extension/internal/logging"
	"github.com/viewmark/extension/internal/parser"
	"github.com/viewmark/extension/internal/picking"
	"github.com/viewmark/extension/internal/runloop"
	"github.com/viewmark/extension/internal/session"
	"github.com/viewmark/extension/internal/storage"
	"github.com/viewmark/extension/internal/store"
	"github.com/viewmark/extension/internal/transition"
	"github.com/viewmark/extension/internal/util"
	"github.com/viewmark/extension/internal/worker"
	"github.com/viewmark/extension/pkg/core"
	"github.com/viewmark/extension/pkg/streaming"
	"github.com/viewmark/extension/pkg/viewport"
)

// hotkeyDigits are the digit commands bound to bookmark recall:
// key:1 through key:9 recall indices 0..8, key:0 recalls index 9.
var hotkeyDigits = []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "0"}

// defaultFrameDelta is assumed when the host ticks without a delta,
// matching a 60fps frame.
const defaultFrameDelta = 16 * time.Millisecond

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Store              *store.Store
	Loop               *runloop.Loop
	Transition         *transition.Transition
	Parser             *parser.Parser
	Session            *session.Context
	LogManager         *logging.SlogManager
	Worker             *worker.Manager
	Influx             *influx.Manager // optional, may be nil
	TransitionDuration time.Duration
	EngineVersion      string
}

// Service provides handler methods for processing host commands
type Service struct {
	deps         Dependencies
	writeLogFunc func(functionName, data, level string)

	mu       sync.RWMutex
	backend  storage.Backend
	viewport viewport.Viewport
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	s := &Service{
		deps: deps,
	}
	// Default writeLog function uses the logging manager
	s.writeLogFunc = func(functionName, data, level string) {
		if deps.LogManager != nil {
			deps.LogManager.WriteLog(functionName, data, level)
		}
	}
	return s
}

// SetBackend sets the storage backend for layout save/load handling
func (s *Service) SetBackend(b storage.Backend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend = b
}

func (s *Service) getBackend() storage.Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend
}

// SetViewport registers the host's focused 3D view. Passing nil detaches
// the current one.
func (s *Service) SetViewport(v viewport.Viewport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = v
}

func (s *Service) getViewport() viewport.Viewport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewport
}

func (s *Service) writeLog(functionName, data, level string) {
	s.writeLogFunc(functionName, data, level)
}

// RegisterHandlers registers all host commands with the dispatcher.
func (s *Service) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register("ctx:set", s.HandleContextSet, dispatcher.Logged())

	d.Register("bm:add", s.HandleAdd, dispatcher.Logged())
	d.Register("bm:remove", s.HandleRemove, dispatcher.Logged())
	d.Register("bm:rename", s.HandleRename, dispatcher.Logged())
	d.Register("bm:replace", s.HandleReplace, dispatcher.Logged())
	d.Register("bm:setpos", s.HandleSetPosition, dispatcher.Logged())
	d.Register("bm:reorder", s.HandleReorder, dispatcher.Logged())
	d.Register("bm:recall", s.HandleRecall, dispatcher.Logged())
	d.Register("bm:look", s.HandleLook, dispatcher.Logged())

	for _, digit := range hotkeyDigits {
		d.Register("key:"+digit, s.HandleHotkey, dispatcher.Logged())
	}

	d.Register("layout:save", s.HandleLayoutSave, dispatcher.Logged())
	d.Register("layout:load", s.HandleLayoutLoad, dispatcher.Logged())

	// Host-emitted timing metrics, high volume
	d.Register("metric:write", s.HandleMetricWrite, dispatcher.Buffered(1000), dispatcher.Logged())

	// Per-frame pump, too frequent for Logged
	d.Register("frame:tick", s.HandleFrameTick)
}

// HandleContextSet switches the active scene context: args are the
// context key and the human-readable scene path.
func (s *Service) HandleContextSet(e dispatcher.Event) (any, error) {
	if len(e.Args) < 2 {
		return nil, fmt.Errorf("ctx:set expects key and path, got %d args", len(e.Args))
	}
	key := core.ContextKey(util.FixEscapeQuotes(util.TrimQuotes(e.Args[0])))
	path := util.FixEscapeQuotes(util.TrimQuotes(e.Args[1]))

	s.deps.Session.SetContext(key, path)
	s.deps.Store.SetActiveContext(key, path)

	if m, ok := s.getBackend().(storage.Mirror); ok {
		if err := m.MirrorContextChanged(key, path); err != nil {
			s.deps.LogManager.Logger().Warn("Failed to mirror context change", "error", err)
		}
	}

	s.writeLog("ctx:set", fmt.Sprintf(`Active context set to %s`, key), "INFO")
	return nil, nil
}

// HandleAdd appends a bookmark to the active bucket. With a full
// 8-field argument array the bookmark comes from the host; with only a
// name the current viewport pose is captured instead.
func (s *Service) HandleAdd(e dispatcher.Event) (any, error) {
	var b core.Bookmark

	if len(e.Args) >= 8 {
		parsed, err := s.deps.Parser.ParseBookmark(e.Args)
		if err != nil {
			return nil, fmt.Errorf("failed to add bookmark: %w", err)
		}
		b = parsed
	} else {
		name := ""
		if len(e.Args) > 0 {
			name = util.FixEscapeQuotes(util.TrimQuotes(e.Args[0]))
		}
		pose, err := s.readViewportPose()
		if err != nil {
			return nil, err
		}
		b = core.FromPose(name, core.Color{R: 1, G: 1, B: 1, A: 1}, pose)
	}

	index := s.deps.Store.Add(b)
	s.recordMutation("add", index, streaming.TypeBookmarkAdded, &b)

	return index, nil
}

// HandleRemove deletes the bookmark at the given index.
func (s *Service) HandleRemove(e dispatcher.Event) (any, error) {
	index, err := s.parseIndexArg(e.Args, "bm:remove")
	if err != nil {
		return nil, err
	}

	if err := s.deps.Store.RemoveAt(index); err != nil {
		return nil, fmt.Errorf("failed to remove bookmark: %w", err)
	}
	s.recordMutation("remove", index, streaming.TypeBookmarkRemoved, nil)

	return nil, nil
}

// HandleRename sets a new display name on the bookmark at the given index.
func (s *Service) HandleRename(e dispatcher.Event) (any, error) {
	if len(e.Args) < 2 {
		return nil, fmt.Errorf("bm:rename expects index and name, got %d args", len(e.Args))
	}
	index, err := parser.ParseIndex(e.Args[0])
	if err != nil {
		return nil, err
	}
	name := util.FixEscapeQuotes(util.TrimQuotes(e.Args[1]))

	if err := s.deps.Store.Rename(index, name); err != nil {
		return nil, fmt.Errorf("failed to rename bookmark: %w", err)
	}

	b, _ := s.deps.Store.Get(index)
	s.recordMutation("rename", index, streaming.TypeBookmarkRenamed, &b)

	return nil, nil
}

// HandleReplace overwrites the bookmark at the given index. With a full
// bookmark argument array the replacement comes from the host; with only
// an index the bookmark keeps its name and color and takes the current
// viewport pose.
func (s *Service) HandleReplace(e dispatcher.Event) (any, error) {
	if len(e.Args) < 1 {
		return nil, fmt.Errorf("bm:replace expects at least an index")
	}
	index, err := parser.ParseIndex(e.Args[0])
	if err != nil {
		return nil, err
	}

	var b core.Bookmark
	if len(e.Args) >= 9 {
		parsed, err := s.deps.Parser.ParseBookmark(e.Args[1:])
		if err != nil {
			return nil, fmt.Errorf("failed to replace bookmark: %w", err)
		}
		b = parsed
	} else {
		existing, ok := s.deps.Store.Get(index)
		if !ok {
			return nil, core.ErrIndexOutOfRange
		}
		pose, err := s.readViewportPose()
		if err != nil {
			return nil, err
		}
		existing.ApplyPose(pose)
		b = existing
	}

	if err := s.deps.Store.Replace(index, b); err != nil {
		return nil, fmt.Errorf("failed to replace bookmark: %w", err)
	}
	s.recordMutation("replace", index, streaming.TypeBookmarkReplaced, &b)

	return nil, nil
}

// HandleSetPosition moves the camera position of the bookmark at the
// given index; its pivot is recomputed from the stored rotation and
// distance.
func (s *Service) HandleSetPosition(e dispatcher.Event) (any, error) {
	if len(e.Args) < 2 {
		return nil, fmt.Errorf("bm:setpos expects index and position, got %d args", len(e.Args))
	}
	index, err := parser.ParseIndex(e.Args[0])
	if err != nil {
		return nil, err
	}
	pos, err := parser.ParseVec3(util.FixEscapeQuotes(util.TrimQuotes(e.Args[1])))
	if err != nil {
		return nil, fmt.Errorf("failed to set bookmark position: %w", err)
	}

	if err := s.deps.Store.SetPosition(index, pos); err != nil {
		return nil, fmt.Errorf("failed to set bookmark position: %w", err)
	}

	b, _ := s.deps.Store.Get(index)
	s.recordMutation("setpos", index, streaming.TypeBookmarkReplaced, &b)

	return nil, nil
}

// HandleReorder moves a bookmark from one index to another. The second
// argument is the final index the record lands on.
func (s *Service) HandleReorder(e dispatcher.Event) (any, error) {
	if len(e.Args) < 2 {
		return nil, fmt.Errorf("bm:reorder expects old and new index, got %d args", len(e.Args))
	}
	oldIndex, err := parser.ParseIndex(e.Args[0])
	if err != nil {
		return nil, err
	}
	newIndex, err := parser.ParseIndex(e.Args[1])
	if err != nil {
		return nil, err
	}

	if err := s.deps.Store.Reorder(oldIndex, newIndex); err != nil {
		return nil, fmt.Errorf("failed to reorder bookmark: %w", err)
	}

	b, _ := s.deps.Store.Get(newIndex)
	s.recordMutation("reorder", newIndex, streaming.TypeBookmarkMoved, &b)

	return nil, nil
}

// HandleRecall starts a camera transition from the current viewport pose
// to the bookmark at the given index.
func (s *Service) HandleRecall(e dispatcher.Event) (any, error) {
	index, err := s.parseIndexArg(e.Args, "bm:recall")
	if err != nil {
		return nil, err
	}
	return nil, s.recallIndex(index)
}

// HandleHotkey recalls the bookmark bound to a digit key.
func (s *Service) HandleHotkey(e dispatcher.Event) (any, error) {
	digit := e.Command[len("key:"):]
	index, ok := parser.DigitToIndex(digit)
	if !ok {
		return nil, fmt.Errorf("unknown hotkey digit %q", digit)
	}
	if index >= s.deps.Store.Count() {
		// Unbound digit, not an error worth surfacing to the host
		return nil, nil
	}
	return nil, s.recallIndex(index)
}

// HandleLook recalls the bookmark the camera is currently looking at:
// the record whose pivot lies nearest the view ray, with targets behind
// the camera penalized. Returns the winning index.
func (s *Service) HandleLook(e dispatcher.Event) (any, error) {
	pose, err := s.readViewportPose()
	if err != nil {
		return nil, err
	}

	origin := pose.Pivot.Sub(core.Forward(pose.Rotation).MulScalar(pose.Distance))
	dir := core.Forward(pose.Rotation)

	records := s.deps.Store.List()
	index, _, found := picking.NearestLookTarget(records, origin, dir)
	if !found {
		return nil, nil
	}

	if err := s.recallIndex(index); err != nil {
		return nil, err
	}
	return index, nil
}

// HandleLayoutSave persists the current layout through the backend
// immediately, bypassing the worker's flush interval.
func (s *Service) HandleLayoutSave(e dispatcher.Event) (any, error) {
	backend := s.getBackend()
	if backend == nil {
		return nil, fmt.Errorf("no storage backend configured")
	}

	if err := backend.SaveLayout(s.deps.Store.Snapshot()); err != nil {
		return nil, fmt.Errorf("failed to save layout: %w", err)
	}

	s.writeLog("layout:save", `Layout saved`, "INFO")
	return nil, nil
}

// HandleLayoutLoad restores the layout from the backend. A malformed
// snapshot resets the store to empty and reports the error.
func (s *Service) HandleLayoutLoad(e dispatcher.Event) (any, error) {
	backend := s.getBackend()
	if backend == nil {
		return nil, fmt.Errorf("no storage backend configured")
	}

	layout, err := backend.LoadLayout()
	if err != nil {
		// Restore(nil) leaves the store in a defined empty state
		s.deps.Store.Restore(nil)
		return nil, fmt.Errorf("failed to load layout: %w", err)
	}

	if err := s.deps.Store.Restore(layout); err != nil {
		return nil, fmt.Errorf("failed to restore layout: %w", err)
	}

	s.writeLog("layout:load", `Layout loaded`, "INFO")
	return nil, nil
}

// HandleMetricWrite forwards a host-emitted metric to InfluxDB.
func (s *Service) HandleMetricWrite(e dispatcher.Event) (any, error) {
	if s.deps.Influx == nil {
		return nil, nil
	}

	bucket, point, err := influx.ProcessMetricData(e.Args, util.FixEscapeQuotes, util.TrimQuotes)
	if err != nil {
		return nil, fmt.Errorf("failed to process metric data: %w", err)
	}
	return nil, s.deps.Influx.WritePoint(context.Background(), bucket, point)
}

// HandleFrameTick pumps one host frame through the engine: deferred
// change notifications are delivered and any in-flight camera
// transition advances. The optional argument is the frame delta in
// seconds; without it the default 60fps delta applies.
func (s *Service) HandleFrameTick(e dispatcher.Event) (any, error) {
	dt := defaultFrameDelta
	if len(e.Args) > 0 {
		secs, err := strconv.ParseFloat(util.TrimQuotes(e.Args[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid frame delta %q: %w", e.Args[0], err)
		}
		dt = time.Duration(secs * float64(time.Second))
	}

	if s.deps.Loop != nil {
		s.deps.Loop.Tick()
	}
	s.Advance(dt)
	return nil, nil
}

// Advance drives an in-flight camera transition by dt, pushing each
// interpolated pose to the viewport. Call once per host frame.
func (s *Service) Advance(dt time.Duration) {
	if s.deps.Transition.State() != transition.Animating {
		return
	}

	pose, done := s.deps.Transition.Update(dt)

	v := s.getViewport()
	if v == nil {
		s.deps.Transition.Cancel()
		return
	}
	if err := v.ApplyPose(pose, true); err != nil {
		s.deps.LogManager.Logger().Warn("Failed to apply transition pose", "error", err)
		s.deps.Transition.Cancel()
		return
	}
	if done {
		s.deps.LogManager.Logger().Debug("Camera transition complete")
	}
}

func (s *Service) recallIndex(index int) error {
	b, ok := s.deps.Store.Get(index)
	if !ok {
		return core.ErrIndexOutOfRange
	}

	current, err := s.readViewportPose()
	if err != nil {
		return err
	}

	s.deps.Transition.Begin(current, b.Pose(), s.deps.TransitionDuration)
	s.enqueueUsage("recall", index)
	return nil
}

func (s *Service) readViewportPose() (core.Pose, error) {
	v := s.getViewport()
	if v == nil {
		return core.Pose{}, core.ErrNoActiveViewport
	}
	return v.ReadCurrentPose()
}

// recordMutation schedules persistence and mirrors the change to a
// streaming backend when one is attached.
func (s *Service) recordMutation(action string, index int, msgType string, b *core.Bookmark) {
	s.enqueueUsage(action, index)
	if s.deps.Worker != nil {
		s.deps.Worker.EnqueueSave()
	}

	if m, ok := s.getBackend().(storage.Mirror); ok {
		payload := streaming.BookmarkChangePayload{
			Context:  s.deps.Store.ActiveContext(),
			Index:    index,
			Bookmark: b,
		}
		if err := m.MirrorChange(msgType, payload); err != nil {
			s.deps.LogManager.Logger().Warn("Failed to mirror bookmark change",
				"type", msgType, "error", err)
		}
	}
}

func (s *Service) enqueueUsage(action string, index int) {
	if s.deps.Worker == nil {
		return
	}
	s.deps.Worker.EnqueueUsage(core.UsageEvent{
		Action:  action,
		Context: s.deps.Store.ActiveContext(),
		Index:   index,
	})
}

func (s *Service) parseIndexArg(args []string, command string) (int, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("%s expects an index", command)
	}
	return parser.ParseIndex(args[0])
}
