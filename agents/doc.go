// Package agents provides the built-in agent roles. Each role registers a
// setup function with the factory from init(), so importing this package
// (usually for side effects from a main) makes the roles available:
//
//	import _ "github.com/agentapi-dev/agentapi/agents"
//
// The built-in roles are:
//
//   - strategist: project planning and requirements analysis
//   - codegen: Go source generation (handlers, models, services)
//   - testgen: Go test generation (unit and integration)
//   - build: build artifact generation (Dockerfile, compose, go.mod)
//
// Every capability handler is a pure function from payload to result; all
// coordination (mailboxes, responses, leases) stays in the agent loop.
package agents
