package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/escalate"
	"github.com/xraph/escalate/channel"
	"github.com/xraph/escalate/id"
	"github.com/xraph/escalate/job"
)

// EnqueueJob stores the job as a Hash and adds it to its channel's
// Sorted Set scored by RunAt.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	// Check for duplicate.
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("escalate/redis: enqueue check exists: %w", err)
	}
	if exists > 0 {
		return escalate.ErrJobAlreadyExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, jobToMap(j))
	pipe.SAdd(ctx, jobIDsKey, jID)
	pipe.ZAdd(ctx, queueKey(string(j.Channel)), goredis.Z{
		Score:  float64(j.RunAt.UnixMilli()),
		Member: jID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("escalate/redis: enqueue job: %w", err)
	}
	return nil
}

// DequeueJobs claims up to limit due pending jobs from the given
// channels. Due members are read by score, ordered by priority then
// RunAt, and claimed with ZREM — the single remover wins, so a job is
// never handed to two workers.
func (s *Store) DequeueJobs(ctx context.Context, channels []channel.Channel, limit int) ([]*job.Job, error) {
	now := time.Now().UTC()
	maxScore := strconv.FormatInt(now.UnixMilli(), 10)

	var candidates []*job.Job
	for _, ch := range channels {
		ids, err := s.client.ZRangeByScore(ctx, queueKey(string(ch)), &goredis.ZRangeBy{
			Min: "-inf",
			Max: maxScore,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("escalate/redis: dequeue range: %w", err)
		}
		for _, jID := range ids {
			j, getErr := s.getJobByKey(ctx, jobKey(jID))
			if getErr != nil {
				continue // claimed and deleted concurrently
			}
			if j.State != job.StatePending {
				continue
			}
			candidates = append(candidates, j)
		}
	}

	sort.SliceStable(candidates, func(i, k int) bool {
		if candidates[i].Priority != candidates[k].Priority {
			return candidates[i].Priority > candidates[k].Priority
		}
		return candidates[i].RunAt.Before(candidates[k].RunAt)
	})

	var claimed []*job.Job
	for _, j := range candidates {
		if len(claimed) >= limit {
			break
		}
		removed, err := s.client.ZRem(ctx, queueKey(string(j.Channel)), j.ID.String()).Result()
		if err != nil {
			return claimed, fmt.Errorf("escalate/redis: dequeue claim: %w", err)
		}
		if removed == 0 {
			continue // another worker won the claim
		}

		j.State = job.StateProcessing
		j.UpdatedAt = now
		if err := s.client.HSet(ctx, jobKey(j.ID.String()),
			"state", string(job.StateProcessing),
			"updated_at", now.Format(time.RFC3339Nano),
		).Err(); err != nil {
			return claimed, fmt.Errorf("escalate/redis: dequeue update: %w", err)
		}
		claimed = append(claimed, j)
	}
	return claimed, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.getJobByKey(ctx, jobKey(jobID.String()))
}

// UpdateJob persists changes to an existing job and keeps the channel
// queue in sync: pending jobs are (re)scored by RunAt, everything else
// leaves the queue.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("escalate/redis: update job exists: %w", err)
	}
	if exists == 0 {
		return escalate.ErrJobNotFound
	}

	fields := jobToMap(j)
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if j.State == job.StatePending {
		pipe.ZAdd(ctx, queueKey(string(j.Channel)), goredis.Z{
			Score:  float64(j.RunAt.UnixMilli()),
			Member: jID,
		})
	} else {
		pipe.ZRem(ctx, queueKey(string(j.Channel)), jID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("escalate/redis: update job: %w", err)
	}
	return nil
}

// CancelJob transitions a pending job to cancelled. The ZREM doubles as
// the claim: losing it to a worker means the job is already processing.
func (s *Store) CancelJob(ctx context.Context, jobID id.JobID) error {
	jID := jobID.String()
	key := jobKey(jID)

	j, err := s.getJobByKey(ctx, key)
	if err != nil {
		return err
	}
	if j.State != job.StatePending {
		return escalate.ErrNotCancellable
	}

	removed, err := s.client.ZRem(ctx, queueKey(string(j.Channel)), jID).Result()
	if err != nil {
		return fmt.Errorf("escalate/redis: cancel claim: %w", err)
	}
	if removed == 0 {
		return escalate.ErrNotCancellable
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.client.HSet(ctx, key,
		"state", string(job.StateCancelled),
		"updated_at", now,
	).Err(); err != nil {
		return fmt.Errorf("escalate/redis: cancel job: %w", err)
	}
	return nil
}

// ListJobsByState returns jobs matching the given state.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("escalate/redis: list jobs smembers: %w", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue // skip missing
		}
		if j.State != state {
			continue
		}
		if opts.Channel != "" && j.Channel != opts.Channel {
			continue
		}
		jobs = append(jobs, j)
	}

	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.Before(jobs[k].CreatedAt) })

	if opts.Offset > 0 && opts.Offset < len(jobs) {
		jobs = jobs[opts.Offset:]
	} else if opts.Offset >= len(jobs) && opts.Offset > 0 {
		return nil, nil
	}
	if opts.Limit > 0 && opts.Limit < len(jobs) {
		jobs = jobs[:opts.Limit]
	}
	return jobs, nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("escalate/redis: count smembers: %w", err)
	}

	var count int64
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		if opts.Channel != "" && j.Channel != opts.Channel {
			continue
		}
		count++
	}
	return count, nil
}

// ── helpers ──

func jobToMap(j *job.Job) map[string]interface{} {
	m := map[string]interface{}{
		"id":           j.ID.String(),
		"type":         j.Type,
		"channel":      string(j.Channel),
		"state":        string(j.State),
		"recipient_id": j.RecipientID,
		"subject":      j.Subject,
		"message":      j.Message,
		"payload":      string(j.Payload),
		"rule_id":      j.RuleID,
		"item_id":      j.ItemID,
		"priority":     strconv.Itoa(j.Priority),
		"max_retries":  strconv.Itoa(j.MaxRetries),
		"retry_count":  strconv.Itoa(j.RetryCount),
		"last_error":   j.LastError,
		"run_at":       j.RunAt.Format(time.RFC3339Nano),
		"timeout":      strconv.FormatInt(int64(j.Timeout), 10),
		"created_at":   j.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":   j.UpdatedAt.Format(time.RFC3339Nano),
	}
	if j.SentAt != nil {
		m["sent_at"] = j.SentAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getJobByKey(ctx context.Context, key string) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, escalate.ErrJobNotFound
		}
		return nil, fmt.Errorf("escalate/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, escalate.ErrJobNotFound
	}
	return mapToJob(vals)
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("escalate/redis: parse job id: %w", err)
	}

	priority, _ := strconv.Atoi(m["priority"])           //nolint:errcheck // best-effort parse from trusted Redis data
	maxRetries, _ := strconv.Atoi(m["max_retries"])      //nolint:errcheck // best-effort parse from trusted Redis data
	retryCount, _ := strconv.Atoi(m["retry_count"])      //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data

	runAt, _ := time.Parse(time.RFC3339Nano, m["run_at"])         //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		Entity: escalate.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:          jID,
		Type:        m["type"],
		Channel:     channel.Channel(m["channel"]),
		State:       job.State(m["state"]),
		RecipientID: m["recipient_id"],
		Subject:     m["subject"],
		Message:     m["message"],
		Payload:     []byte(m["payload"]),
		RuleID:      m["rule_id"],
		ItemID:      m["item_id"],
		Priority:    priority,
		MaxRetries:  maxRetries,
		RetryCount:  retryCount,
		LastError:   m["last_error"],
		RunAt:       runAt,
		Timeout:     time.Duration(timeout),
	}
	if v := m["sent_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.SentAt = &t
	}
	return j, nil
}
