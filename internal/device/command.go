package device

import (
	"context"
	"sort"
)

// CommandHandler executes one command.
type CommandHandler func(ctx context.Context, args Args) (Result, error)

type commandEntry struct {
	handler  CommandHandler
	anyState bool
}

// CommandTable is the closed set of commands a device type understands.
// Tables are built once at construction and only read afterwards.
type CommandTable struct {
	entries map[string]commandEntry
}

// NewCommandTable creates an empty table.
func NewCommandTable() *CommandTable {
	return &CommandTable{entries: make(map[string]commandEntry)}
}

// Handle registers a command that requires the device to be Started.
func (t *CommandTable) Handle(name string, h CommandHandler) *CommandTable {
	t.entries[name] = commandEntry{handler: h}
	return t
}

// HandleAnyState registers a command that may run in any lifecycle state.
func (t *CommandTable) HandleAnyState(name string, h CommandHandler) *CommandTable {
	t.entries[name] = commandEntry{handler: h, anyState: true}
	return t
}

// Names returns the registered command names, sorted.
func (t *CommandTable) Names() []string {
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Supports reports whether name is in the table.
func (t *CommandTable) Supports(name string) bool {
	_, ok := t.entries[name]
	return ok
}

// Dispatch looks up cmd.Name and runs its handler.
//
// Returns a *CommandError for unknown names and a *StateError when the
// command needs a Started device and b is not Started.
func (t *CommandTable) Dispatch(ctx context.Context, b *Base, cmd Command) (Result, error) {
	entry, ok := t.entries[cmd.Name]
	if !ok {
		return nil, &CommandError{DeviceID: b.ID(), Command: cmd.Name, Supported: t.Names()}
	}
	if !entry.anyState {
		if err := b.RequireStarted(cmd.Name); err != nil {
			return nil, err
		}
	}

	args := cmd.Args
	if args == nil {
		args = Args{}
	}
	result, err := entry.handler(ctx, args)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = Result{}
	}
	return result, nil
}
