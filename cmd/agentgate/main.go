// agentgate is the local policy gate for AI coding agents.
// Agents invoke "agentgate pre" before and "agentgate post" after each
// tool use; the gate decides, the agent obeys the exit code.
package main

import "github.com/oversight-dev/agentgate/internal/cli"

func main() {
	cli.Execute()
}
