package pty

import (
	"github.com/remote-agent-terminal/claude-terminal/internal/model"
)

const (
	// DefaultAgentCommand is the CLI agent launched inside every shell.
	DefaultAgentCommand = "claude"

	// BypassFlag is appended to the agent invocation in bypass mode.
	BypassFlag = "--dangerously-skip-permissions"

	// DefaultPosixShell is started as a login shell so profile managed
	// PATH entries (nvm, asdf, ...) resolve.
	DefaultPosixShell = "bash"

	// DefaultWindowsShell hosts the agent on Windows.
	DefaultWindowsShell = "powershell.exe"
)

// Command is a fully constructed shell invocation.
type Command struct {
	Shell string
	Args  []string

	// Invocation is the agent command line carried by the shell.
	Invocation string
}

// AgentInvocation returns the agent command line for mode.
func AgentInvocation(agent string, mode model.Mode) string {
	if agent == "" {
		agent = DefaultAgentCommand
	}
	if mode == model.ModeBypass {
		return agent + " " + BypassFlag
	}
	return agent
}

// DefaultShell returns the shell used on goos when none is configured.
func DefaultShell(goos string) string {
	if goos == "windows" {
		return DefaultWindowsShell
	}
	return DefaultPosixShell
}

// BuildCommand constructs the platform specific shell invocation:
// "powershell.exe -Command <agent>" on Windows and "bash -l -c <agent>"
// elsewhere. An empty shell selects the platform default.
func BuildCommand(goos, shell, agent string, mode model.Mode) Command {
	if shell == "" {
		shell = DefaultShell(goos)
	}
	invocation := AgentInvocation(agent, mode)

	var args []string
	if goos == "windows" {
		args = []string{"-Command", invocation}
	} else {
		args = []string{"-l", "-c", invocation}
	}

	return Command{Shell: shell, Args: args, Invocation: invocation}
}
