// Package harness runs scripted reconciliation scenarios against a real
// engine.
//
// # Scenario Format
//
// Scenarios are YAML files. Each step does exactly one thing:
//
//	name: optimistic_confirm
//	description: "Operator moves #42 to preparation and the service confirms"
//	delete_policy: never          # optional, "never" or "soft"
//	tokens: [tok-1]               # optional pending change tokens
//	steps:
//	  - snapshot:                 # full read of the order service
//	      - { id: 42, status: PENDIENTE, revision: 1 }
//	  - event: { id: 42, status: EN_PREPARACION, revision: 2 }
//	    expect: { outcome: applied }
//	  - message: '{"id":43,"estado":"PENDIENTE","total":12}'
//	  - request: { order: 42, to: EN_CAMINO }
//	    expect: { error: CONFLICT }
//	  - respond: { order: 42, revision: 3 }
//	  - respond: { order: 42, error: "timeout", reason: STALE }
//	  - close: true
//	assertions:
//	  - { type: status, order: 42, status: EN_CAMINO }
//	  - { type: revision, order: 42, revision: 3 }
//	  - { type: pending, order: 42, pending: false }
//	  - { type: journal_count, order: 42, count: 2 }
//	  - { type: trace_contains, text: "CHANGE #42" }
//
// # Determinism
//
// Every run uses a fresh engine, fixed pending change tokens, a frozen wall
// clock at testutil.BaseTime and an in-memory journal. Status updates are
// answered only by respond steps, and the harness waits for each answer to
// be reconciled before the next step, so traces are identical across runs
// and can be compared against golden files.
package harness
