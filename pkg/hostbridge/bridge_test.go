package hostbridge

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viewmark/extension/internal/dispatcher"
)

type noopLogger struct{}

func (noopLogger) Debug(msg string, keysAndValues ...any) {}
func (noopLogger) Info(msg string, keysAndValues ...any)  {}
func (noopLogger) Error(msg string, keysAndValues ...any) {}

func newBridgeDispatcher(t *testing.T) *dispatcher.Dispatcher {
	t.Helper()
	d, err := dispatcher.New(noopLogger{})
	require.NoError(t, err)
	return d
}

func TestFormatDispatchResponse(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		result   any
		err      error
		expected string
	}{
		{
			name:     "success with nil result",
			command:  "bm:remove",
			result:   nil,
			err:      nil,
			expected: `["ok", "bm:remove"]`,
		},
		{
			name:     "success with index result",
			command:  "bm:add",
			result:   3,
			err:      nil,
			expected: `["ok", "bm:add", "3"]`,
		},
		{
			name:     "error response",
			command:  "bm:recall",
			result:   nil,
			err:      errors.New("index out of range"),
			expected: `["error", "bm:recall", "index out of range"]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatDispatchResponse(tt.command, tt.result, tt.err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestCall_Timestamp(t *testing.T) {
	got := Call(":TIMESTAMP:")

	ns, err := strconv.ParseInt(got, 10, 64)
	require.NoError(t, err)
	assert.Greater(t, ns, int64(0))
}

func TestCall_NoHandler(t *testing.T) {
	SetDispatcher(newBridgeDispatcher(t))

	got := Call("nope")
	assert.Equal(t, `["error", "nope", "no handler registered"]`, got)
}

func TestCall_PipedPayloadRoutesToPrefix(t *testing.T) {
	d := newBridgeDispatcher(t)
	var received dispatcher.Event
	d.Register("key:3", func(e dispatcher.Event) (any, error) {
		received = e
		return nil, nil
	})
	SetDispatcher(d)

	got := Call("key:3|extra")

	assert.Equal(t, `["ok", "key:3"]`, got)
	assert.Equal(t, "key:3", received.Command)
	require.Len(t, received.Args, 1)
	assert.Equal(t, "key:3|extra", received.Args[0])
}

func TestCallArgs_RoutesToHandler(t *testing.T) {
	d := newBridgeDispatcher(t)
	d.Register("bm:add", func(e dispatcher.Event) (any, error) {
		return len(e.Args), nil
	})
	SetDispatcher(d)

	got := CallArgs("bm:add", []string{"a", "b", "c"})
	assert.Equal(t, `["ok", "bm:add", "3"]`, got)
}

func TestCallArgs_HandlerError(t *testing.T) {
	d := newBridgeDispatcher(t)
	d.Register("bm:remove", func(e dispatcher.Event) (any, error) {
		return nil, errors.New("boom")
	})
	SetDispatcher(d)

	got := CallArgs("bm:remove", []string{"0"})
	assert.True(t, strings.HasPrefix(got, `["error", "bm:remove"`))
}

func TestVersion(t *testing.T) {
	SetVersion("1.2.3")
	assert.Equal(t, "1.2.3", Version())
}
