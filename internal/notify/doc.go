// Package notify is the console's notification sink.
//
// The reconciliation engine, the connection manager and the snapshot loader
// publish signals onto a Bus without blocking. A single Run loop delivers
// them, in publication order, to every subscriber: the terminal printer, the
// transition journal and any test recorder.
//
// The Bus queue is unbounded so a slow subscriber never stalls a merge.
package notify
