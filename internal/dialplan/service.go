// Package dialplan controls outbound-calling campaigns: starting,
// pausing, and retiring them, and keeping the shared run-state in Redis
// so every engine node and the voice gateway agree on what is running.
package dialplan

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/renxuetao/cskefu/internal/directory"
	"github.com/renxuetao/cskefu/internal/store"
	"github.com/renxuetao/cskefu/internal/types"
	"github.com/rs/zerolog"
)

// Result codes returned by campaign operations.
const (
	RCSuccess         = 0
	RCUnknownOps      = 1
	RCUnknownDialplan = 2
	RCNoConcurrency   = 3
	RCNotStopped      = 4
	RCArchived        = 5
	RCNoSipAccounts   = 6
)

// Result is the outcome of a campaign operation.
type Result struct {
	RC      int    `json:"rc"`
	Message string `json:"msg,omitempty"`
	Error   string `json:"error,omitempty"`
}

func success(msg string) Result       { return Result{RC: RCSuccess, Message: msg} }
func failure(rc int, e string) Result { return Result{RC: rc, Error: e} }

// runState is the shared campaign state stored in the per-channel Redis
// hash, one field per dialplan.
type runState struct {
	Concurrency int       `json:"concurrency"`
	Status      string    `json:"status"`
	Sips        []string  `json:"sips,omitempty"`
	UpdatedAt   time.Time `json:"updatetime"`
}

// controlPayload is the command published to the voice gateway.
type controlPayload struct {
	Dialplan    string   `json:"dialplan"`
	Ops         string   `json:"ops"`
	Channel     string   `json:"channel"`
	Concurrency int      `json:"concurrency,omitempty"`
	Sips        []string `json:"sips,omitempty"`
}

func runStateKey(channel string) string { return "callout:dialplan:status:" + channel }
func controlChannel(channel string) string {
	return "callout:channel:cc2fs:" + channel
}
func targetKey(channel, planID string) string {
	return "callout:dialplan:target:" + channel + ":" + planID
}

// Service executes campaign operations against the store, the agent
// directory, and the shared Redis run-state.
type Service struct {
	store  store.Store
	dir    directory.Lookup
	rdb    *redis.Client
	logger zerolog.Logger
}

// NewService creates the campaign controller.
func NewService(st store.Store, dir directory.Lookup, rdb *redis.Client, logger zerolog.Logger) *Service {
	return &Service{store: st, dir: dir, rdb: rdb, logger: logger}
}

// Run dispatches one operation by name. Unknown operations and unknown
// dialplan ids are reported in the result, never as an error.
func (s *Service) Run(ctx context.Context, ops, dialplanID string) Result {
	plan, ok := s.store.DialplanByID(dialplanID)
	if !ok {
		return failure(RCUnknownDialplan, "dialplan does not exist")
	}

	switch ops {
	case "execute":
		return s.Execute(ctx, plan)
	case "pause":
		return s.Pause(ctx, plan)
	case "delete":
		return s.Delete(ctx, plan)
	default:
		return failure(RCUnknownOps, fmt.Sprintf("unsupported ops %q", ops))
	}
}

// Execute starts a stopped campaign. The concurrency quota is derived
// from the organ's agent count and the plan's ratio; a quota below one
// agent refuses to start.
func (s *Service) Execute(ctx context.Context, plan types.Dialplan) Result {
	if plan.Archived {
		return failure(RCArchived, "archived dialplan cannot be executed")
	}
	if plan.Status != types.DialplanStopped {
		return failure(RCNotStopped, fmt.Sprintf("dialplan in status %q, only stopped plans start", plan.Status))
	}

	sips := s.dir.SipAccountsByOrgan(plan.OrganID)
	if len(sips) == 0 {
		return failure(RCNoSipAccounts, "no sip accounts registered for the dialplan's organ")
	}

	agents := s.dir.CountAgentsByOrgan(plan.OrganID)
	concurrency := int(math.Ceil(float64(agents) * plan.ConcurrenceRatio))
	if concurrency < 1 {
		return failure(RCNoConcurrency, fmt.Sprintf("organ %q yields no concurrency quota", plan.OrganName))
	}

	now := time.Now()
	plan.Executed++
	plan.Status = types.DialplanRunning
	plan.CurConcurrence = concurrency
	plan.UpdatedAt = now

	if err := s.start(ctx, plan, sips, concurrency, now); err != nil {
		s.logger.Error().Err(err).
			Str("dialplan_id", plan.ID).
			Msg("failed to start dialplan on voice channel")
	}

	s.store.SaveDialplan(plan)
	return success("dialplan started")
}

// start reconciles the Redis run-state and signals the voice gateway.
// With no prior state this node owns the fresh start; with a stopped
// prior state the existing gateway run is resumed; a state already
// RUNNING means another node started it and this start is dropped.
func (s *Service) start(ctx context.Context, plan types.Dialplan, sips []string, concurrency int, now time.Time) error {
	key := runStateKey(plan.VoiceChannel)

	prev, err := s.rdb.HGet(ctx, key, plan.ID).Result()
	switch {
	case err == redis.Nil:
		if err := s.writeRunState(ctx, plan, runState{
			Concurrency: concurrency,
			Status:      string(types.DialplanRunning),
			Sips:        sips,
			UpdatedAt:   now,
		}); err != nil {
			return err
		}
		return s.publish(ctx, plan.VoiceChannel, controlPayload{
			Dialplan:    plan.ID,
			Ops:         "start",
			Channel:     plan.VoiceChannel,
			Concurrency: concurrency,
			Sips:        sips,
		})
	case err != nil:
		return fmt.Errorf("read run-state: %w", err)
	}

	var state runState
	if err := json.Unmarshal([]byte(prev), &state); err != nil {
		return fmt.Errorf("corrupt run-state for dialplan %s: %w", plan.ID, err)
	}
	if state.Status == string(types.DialplanRunning) {
		s.logger.Error().
			Str("dialplan_id", plan.ID).
			Str("channel", plan.VoiceChannel).
			Msg("run-state already running, another node owns this campaign")
		return nil
	}

	state.Concurrency = concurrency
	state.Status = string(types.DialplanRunning)
	state.Sips = sips
	state.UpdatedAt = now
	if err := s.writeRunState(ctx, plan, state); err != nil {
		return err
	}
	return s.publish(ctx, plan.VoiceChannel, controlPayload{
		Dialplan:    plan.ID,
		Ops:         "start",
		Channel:     plan.VoiceChannel,
		Concurrency: concurrency,
		Sips:        sips,
	})
}

// Pause stops a running campaign and records the stopped run-state so a
// later execute resumes instead of double-starting.
func (s *Service) Pause(ctx context.Context, plan types.Dialplan) Result {
	if plan.Status != types.DialplanRunning {
		return failure(RCNoConcurrency, "only running dialplans can be paused")
	}

	now := time.Now()
	if err := s.publish(ctx, plan.VoiceChannel, controlPayload{
		Dialplan: plan.ID,
		Ops:      "pause",
		Channel:  plan.VoiceChannel,
	}); err != nil {
		s.logger.Error().Err(err).Str("dialplan_id", plan.ID).Msg("failed to publish pause")
	}

	if err := s.writeRunState(ctx, plan, runState{
		Concurrency: plan.CurConcurrence,
		Status:      string(types.DialplanStopped),
		UpdatedAt:   now,
	}); err != nil {
		s.logger.Error().Err(err).Str("dialplan_id", plan.ID).Msg("failed to write stopped run-state")
	}

	plan.Status = types.DialplanStopped
	plan.UpdatedAt = now
	s.store.SaveDialplan(plan)
	return success("dialplan paused")
}

// Delete cancels a campaign on the gateway, clears its shared state, and
// archives the plan. Deleting an archived plan is a no-op success.
func (s *Service) Delete(ctx context.Context, plan types.Dialplan) Result {
	if plan.Archived {
		return success("dialplan already archived")
	}

	if err := s.publish(ctx, plan.VoiceChannel, controlPayload{
		Dialplan: plan.ID,
		Ops:      "cancel",
		Channel:  plan.VoiceChannel,
	}); err != nil {
		s.logger.Error().Err(err).Str("dialplan_id", plan.ID).Msg("failed to publish cancel")
	}

	if err := s.rdb.HDel(ctx, runStateKey(plan.VoiceChannel), plan.ID).Err(); err != nil {
		s.logger.Error().Err(err).Str("dialplan_id", plan.ID).Msg("failed to delete run-state")
	}
	if err := s.rdb.Del(ctx, targetKey(plan.VoiceChannel, plan.ID)).Err(); err != nil {
		s.logger.Error().Err(err).Str("dialplan_id", plan.ID).Msg("failed to delete target key")
	}

	plan.Status = types.DialplanStopped
	plan.Archived = true
	plan.UpdatedAt = time.Now()
	s.store.SaveDialplan(plan)
	return success("dialplan archived")
}

func (s *Service) writeRunState(ctx context.Context, plan types.Dialplan, state runState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal run-state: %w", err)
	}
	if err := s.rdb.HSet(ctx, runStateKey(plan.VoiceChannel), plan.ID, string(raw)).Err(); err != nil {
		return fmt.Errorf("write run-state: %w", err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, channel string, payload controlPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal control payload: %w", err)
	}
	if err := s.rdb.Publish(ctx, controlChannel(channel), string(raw)).Err(); err != nil {
		return fmt.Errorf("publish control payload: %w", err)
	}
	s.logger.Info().
		Str("dialplan_id", payload.Dialplan).
		Str("ops", payload.Ops).
		Str("channel", channel).
		Msg("campaign control published")
	return nil
}
