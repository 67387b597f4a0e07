package redis

// Redis key naming conventions for escalate data.
// All keys are prefixed with "escalate:" to avoid collisions.

const keyPrefix = "escalate:"

// ── Job keys ──

// jobKey returns the key for a job entity: escalate:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// queueKey returns the Sorted Set key for a channel queue,
// scored by RunAt: escalate:queue:{channel}
func queueKey(channel string) string { return keyPrefix + "queue:" + channel }

// jobIDsKey is the Set tracking all job IDs for enumeration.
const jobIDsKey = keyPrefix + "job_ids"

// ── Rule keys ──

// ruleKey returns the key for a rule entity: escalate:rule:{id}
func ruleKey(id string) string { return keyPrefix + "rule:" + id }

// ruleIDsKey is the Set tracking all rule IDs for enumeration.
const ruleIDsKey = keyPrefix + "rule_ids"

// ── Ledger keys ──

// firingKey returns the SET NX guard key for one (rule, item) pair:
// escalate:firing:{ruleID}:{itemID}
func firingKey(ruleID, itemID string) string {
	return keyPrefix + "firing:" + ruleID + ":" + itemID
}

// firingIndexKey is the Sorted Set of firing guard keys scored by
// FiredAt, for chronological listing.
const firingIndexKey = keyPrefix + "firing_idx"

// ── DLQ keys ──

// dlqKey returns the key for a DLQ entry entity: escalate:dlq:{id}
func dlqKey(id string) string { return keyPrefix + "dlq:" + id }

// dlqIndexKey is the Sorted Set of DLQ entry IDs scored by FailedAt.
const dlqIndexKey = keyPrefix + "dlq_idx"
