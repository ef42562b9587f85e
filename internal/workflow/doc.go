// Package workflow runs one tick of an agent thread.
//
// A tick takes the checkpointed WorkflowState and the inbound messages and
// walks a fixed node sequence:
//
//	router -> hire | fire | sync -> onboarding -> cycle -> accounting -> summarize
//
// The router parses the command envelope and consults the replay guard;
// duplicate deliveries stop at the router and leave the state untouched.
// Onboarding resolves the next missing input and, when operator input is
// required, returns an interrupt.Request instead of blocking. The onboarding
// contract is rebuilt once at the end of every tick.
//
// Tick never mutates the state it is handed. External collaborators (the
// trading cycle, the pool catalog, the suspension runtime, the clock) are
// injected through Deps.
package workflow
