// Package harness runs YAML tick scenarios against the workflow engine.
//
// A scenario configures one agent, feeds a thread a sequence of operator
// instructions and interrupt answers, and checks the resulting trace and
// final projection. Every tick goes through engine.Apply against a fresh
// in-memory SQLite store, so checkpoints and ledger history are exercised
// exactly as in production.
//
// # Scenario Format
//
//	name: onboarding_lifecycle
//	description: "Hire, onboard, cycle and fire one task"
//	start: "2025-01-01T00:00:00Z"
//	operator_key: 4c0883a6...
//	agent:
//	  name: clmm
//	  chain_id: 42161
//	  drift_pct: 0.1
//	  variant:
//	    requires_pool_catalog: true
//	    requires_funding_token: true
//	pools:
//	  - { address: "0xC31E...", symbol: "WETH/USDC" }
//	steps:
//	  - instruction: { command: hire, clientMutationId: m-1 }
//	    expect: { interrupt: setup }
//	  - resume: { wallet_address: $operator, funding_amount_usd: 100 }
//	  - delegations:
//	      - { delegate: "0x1111...", authority: root }
//	  - advance: 24h
//	    instruction: { command: cycle, clientMutationId: m-2 }
//	assertions:
//	  - type: route_contains
//	    route: cycle
//	  - type: final_state
//	    path: accounting.aum_usd
//	    expect: 110
//
// The string "$operator" anywhere in a payload is replaced by the address of
// operator_key. A delegations step answers the delegation interrupt with a
// bundle signed by that key.
//
// # Assertion Types
//
//   - route_contains: a node was visited, optionally at a given step
//   - route_order: nodes were visited in the given order
//   - route_count: a node was visited exactly N times
//   - final_state: a field of the final projection has the expected value
//   - ledger_consistent: recomputing the thread's accounting finds no drift
//
// # Deterministic Testing
//
// Scenarios run with a fixed wall clock (advanced only by steps), sequential
// task ids and a single thread id, so the same scenario always yields a
// byte-identical trace for golden comparison.
package harness
