// Package hostbridge is the string-command surface the host editor
// calls into. Every entry point takes and returns plain strings so the
// host's plugin loader needs no knowledge of engine types; commands are
// routed through the dispatcher the engine registered at startup.
package hostbridge

import (
	"fmt"
	"strings"
	"time"

	"github.com/viewmark/extension/internal/dispatcher"
)

// Config is the central configuration used by this library
var Config configStruct = configStruct{}

func init() {
	Config.Init()
}

type configStruct struct {
	// version is returned from Version when the host probes the engine
	version string

	// dispatcher handles command routing
	dispatcher *dispatcher.Dispatcher
}

// Init method initializes the config struct
func (c *configStruct) Init() {
	c.version = "No version set"
}

// SetVersion sets the version string returned when the host probes the engine
func SetVersion(version string) {
	Config.version = version
}

// SetDispatcher sets the command dispatcher
func SetDispatcher(d *dispatcher.Dispatcher) {
	Config.dispatcher = d
}

// GetDispatcher returns the configured dispatcher, or nil if not set
func GetDispatcher() *dispatcher.Dispatcher {
	return Config.dispatcher
}

// Version is called by the host to get the engine version.
func Version() string {
	return Config.version
}

// Call handles a bare command string from the host, in the format
// "command" or "command|payload".
func Call(command string) string {
	commandSubstr := strings.Split(command, "|")[0]

	// Handle built-in timestamp command
	if command == ":TIMESTAMP:" {
		return getTimestamp()
	}

	if Config.dispatcher != nil {
		dispatchCommand := command
		if !Config.dispatcher.HasHandler(command) && Config.dispatcher.HasHandler(commandSubstr) {
			dispatchCommand = commandSubstr
		}

		if Config.dispatcher.HasHandler(dispatchCommand) {
			event := dispatcher.Event{
				Command:   dispatchCommand,
				Args:      []string{command}, // pass full command for piped payloads
				Timestamp: time.Now(),
			}

			result, err := Config.dispatcher.Dispatch(event)
			return formatDispatchResponse(dispatchCommand, result, err)
		}
	}

	return fmt.Sprintf(`["error", "%s", "no handler registered"]`, command)
}

// CallArgs handles a command with a separate argument array, in the
// format ["command", ["arg0", "arg1", ...]].
func CallArgs(command string, args []string) string {
	if Config.dispatcher != nil && Config.dispatcher.HasHandler(command) {
		event := dispatcher.Event{
			Command:   command,
			Args:      args,
			Timestamp: time.Now(),
		}

		result, err := Config.dispatcher.Dispatch(event)
		return formatDispatchResponse(command, result, err)
	}

	return fmt.Sprintf(`["error", "%s", "no handler registered"]`, command)
}

// formatDispatchResponse formats the dispatcher result for the host
func formatDispatchResponse(command string, result any, err error) string {
	if err != nil {
		return fmt.Sprintf(`["error", "%s", "%s"]`, command, err.Error())
	}
	if result == nil {
		return fmt.Sprintf(`["ok", "%s"]`, command)
	}
	return fmt.Sprintf(`["ok", "%s", "%v"]`, command, result)
}

func getTimestamp() string {
	return fmt.Sprintf("%d", time.Now().UTC().UnixNano())
}
