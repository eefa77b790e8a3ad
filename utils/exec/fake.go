package exec

import (
	"fmt"
	"strings"
	"time"
)

// FakeExecutor records every invocation and answers from caller supplied
// hooks. It keeps allocator and reconciler logic unit-testable without a
// real block device.
type FakeExecutor struct {
	Commands []string

	CommandFunc            func(command string, arg ...string) error
	CommandWithOutputFunc  func(command string, arg ...string) (string, error)
	CombinedOutputFunc     func(command string, arg ...string) (string, error)
	CommandWithTimeoutFunc func(timeout time.Duration, command string, arg ...string) (string, error)
}

func (f *FakeExecutor) record(command string, arg ...string) {
	f.Commands = append(f.Commands, strings.TrimSpace(fmt.Sprintf("%s %s", command, strings.Join(arg, " "))))
}

func (f *FakeExecutor) ExecuteCommand(command string, arg ...string) error {
	f.record(command, arg...)
	if f.CommandFunc != nil {
		return f.CommandFunc(command, arg...)
	}
	return nil
}

func (f *FakeExecutor) ExecuteCommandWithOutput(command string, arg ...string) (string, error) {
	f.record(command, arg...)
	if f.CommandWithOutputFunc != nil {
		return f.CommandWithOutputFunc(command, arg...)
	}
	return "", nil
}

func (f *FakeExecutor) ExecuteCommandWithCombinedOutput(command string, arg ...string) (string, error) {
	f.record(command, arg...)
	if f.CombinedOutputFunc != nil {
		return f.CombinedOutputFunc(command, arg...)
	}
	return "", nil
}

func (f *FakeExecutor) ExecuteCommandWithTimeout(timeout time.Duration, command string, arg ...string) (string, error) {
	f.record(command, arg...)
	if f.CommandWithTimeoutFunc != nil {
		return f.CommandWithTimeoutFunc(timeout, command, arg...)
	}
	return "", nil
}

// Ran reports whether any recorded invocation starts with prefix.
func (f *FakeExecutor) Ran(prefix string) bool {
	for _, c := range f.Commands {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}
