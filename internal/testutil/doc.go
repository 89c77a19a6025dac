// Package testutil provides deterministic fakes shared by the engine,
// console, harness and CLI tests.
package testutil
