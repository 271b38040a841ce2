// Package agentgate provides in-process admission control for Go agent
// frameworks. It wraps tool functions with the same pre/post pipeline
// the agentgate CLI runs: rate limit, budget reservation, and
// sensitive-operation classification before the tool executes; audit
// entry, rate tick, and budget settlement after.
//
// Usage:
//
//	ag, err := agentgate.New(agentgate.WithAgent("builder"))
//	wrapped := ag.Wrap(myTool)
//	result, err := wrapped(ctx, agentgate.Action{
//	    Operation: "sh -c 'make test'",
//	    Tool:      "shell",
//	})
//
// The SDK links directly against internal packages for zero-subprocess
// overhead. External users import
// github.com/oversight-dev/agentgate/sdk/go/agentgate.
package agentgate
