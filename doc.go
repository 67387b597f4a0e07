// Package escalate provides an escalation rule engine and notification
// delivery pipeline for work items (tasks, projects). It watches items for
// conditions that require notifying humans — an overdue deadline, an
// approaching deadline, stalled progress — and delivers at most one
// notification per (rule, item) occurrence across one or more channels,
// even under overlapping scan passes, transient delivery failures, and
// multi-instance deployment.
//
// Escalate is designed as a library, not a service. Import it, configure a
// store, register channel senders, and feed it item snapshots.
//
// # Quick Start
//
//	eng, err := engine.New(
//	    engine.WithStore(memory.New()),
//	    engine.WithChannel(emailSender, queue.Config{Channel: channel.Email, Concurrency: 8}),
//	    engine.WithSource(src),
//	    engine.WithSchedule("@every 5m"),
//	)
//
// # Architecture
//
// Escalate follows a composable store pattern where each subsystem (rule,
// job, ledger, dlq) defines its own store interface. A single backend
// implements all of them.
//
// Correctness under concurrent scans rests on a single operation: the
// delivery ledger's atomic conditional insert. Every other component is
// stateless or only locally stateful.
package escalate
