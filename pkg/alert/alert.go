// Package alert implements the evaluator actor: it subscribes to the
// metric and service-check buses, runs every sample through grace-period
// hysteresis, and dispatches a Notification through the configured sink on
// every state transition (never on a steady-state sample). Per-server and
// per-service state maps evolve independently; a lagged bus subscriber
// logs a warning and keeps processing rather than dropping the actor.
package alert

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetwatch/hub/pkg/bus"
	"github.com/fleetwatch/hub/pkg/grace"
	"github.com/fleetwatch/hub/pkg/log"
	"github.com/fleetwatch/hub/pkg/metrics"
	"github.com/fleetwatch/hub/pkg/sink"
	"github.com/fleetwatch/hub/pkg/types"
)

// serverState is the per-server grace bookkeeping the evaluator owns.
type serverState struct {
	config             types.ResolvedServerConfig
	tempGraceCounter   int
	usageGraceCounter  int
}

// serviceState is the per-service bookkeeping: a consecutive-down counter
// standing in for the grace counter, since a service check is binary rather
// than a scalar sample.
type serviceState struct {
	config          types.ResolvedServiceConfig
	lastStatus      *types.ServiceStatus
	consecutiveDown int
}

type getStateRequest struct {
	serverID string
	respond  chan State
}
type muteRequest struct{ until time.Time }
type unmuteRequest struct{}
type shutdownRequest struct{}

// State reports an actor's current grace counters for a server, as returned
// by Handle.GetState.
type State struct {
	ServerID                string
	TemperatureConsecutive  int
	UsageConsecutive        int
	LastEvaluation          time.Time
}

// sinkFor builds the Sink implementation a configured Alert union selects.
// A nil Alert (no sink configured for this limit/service) yields a nil Sink,
// which Actor treats as "evaluate but never dispatch".
func sinkFor(a *types.Alert) sink.Sink {
	if a == nil {
		return nil
	}
	if a.Discord != nil {
		return sink.NewDiscordSink(a.Discord.URL, a.Discord.UserID)
	}
	if a.Webhook != nil {
		return sink.NewWebhookSink(a.Webhook.URL)
	}
	return nil
}

// Actor evaluates metric and service-check events against configured limits
// and dispatches notifications on transitions.
type Actor struct {
	servers  map[string]*serverState
	services map[string]*serviceState

	metricSub <-chan bus.Envelope[types.MetricEvent]
	checkSub  <-chan bus.Envelope[types.ServiceCheckEvent]
	commands  chan any

	muted      bool
	muteUntil  time.Time
}

// Handle is the external control surface for a running Actor.
type Handle struct {
	commands chan any
}

// Spawn starts the alert actor, registering every server and service config
// up front, and returns a Handle for controlling it.
func Spawn(servers []types.ResolvedServerConfig, services []types.ResolvedServiceConfig, metricBus *bus.Bus[types.MetricEvent], checkBus *bus.Bus[types.ServiceCheckEvent]) *Handle {
	_, metricSub := metricBus.Subscribe()
	_, checkSub := checkBus.Subscribe()

	a := &Actor{
		servers:   make(map[string]*serverState),
		services:  make(map[string]*serviceState),
		metricSub: metricSub,
		checkSub:  checkSub,
		commands:  make(chan any, 32),
	}

	for _, cfg := range servers {
		a.servers[cfg.ServerID()] = &serverState{config: cfg}
	}
	for _, cfg := range services {
		a.services[cfg.Name] = &serviceState{config: cfg}
	}

	go a.run()

	return &Handle{commands: a.commands}
}

func (a *Actor) run() {
	logger := log.WithComponent("alert")
	logger.Debug().Msg("starting alert actor")

	// Ticker lets a mute deadline clear opportunistically, per the
	// auto-expiry decision: no dedicated timer goroutine per mute, just a
	// check on the actor's own next tick.
	muteTicker := time.NewTicker(5 * time.Second)
	defer muteTicker.Stop()

	for {
		select {
		case env, ok := <-a.metricSub:
			if !ok {
				a.metricSub = nil
				continue
			}
			if env.Lagged > 0 {
				logger.Warn().Uint64("lagged", env.Lagged).Msg("alert actor lagged, skipped metrics")
			}
			if !a.muted {
				a.handleMetricEvent(env.Event, logger)
			}

		case env, ok := <-a.checkSub:
			if !ok {
				a.checkSub = nil
				continue
			}
			if env.Lagged > 0 {
				logger.Warn().Uint64("lagged", env.Lagged).Msg("alert actor lagged, skipped service checks")
			}
			if !a.muted {
				a.handleServiceCheckEvent(env.Event, logger)
			}

		case <-muteTicker.C:
			if a.muted && !a.muteUntil.IsZero() && time.Now().After(a.muteUntil) {
				logger.Debug().Msg("mute window elapsed, unmuting")
				a.muted = false
				metrics.AlertsMuted.Set(0)
			}

		case cmd := <-a.commands:
			switch c := cmd.(type) {
			case getStateRequest:
				c.respond <- a.getState(c.serverID)

			case muteRequest:
				a.muted = true
				a.muteUntil = c.until
				metrics.AlertsMuted.Set(1)
				logger.Debug().Time("until", c.until).Msg("alerts muted")

			case unmuteRequest:
				a.muted = false
				a.muteUntil = time.Time{}
				metrics.AlertsMuted.Set(0)
				logger.Debug().Msg("alerts unmuted")

			case shutdownRequest:
				logger.Debug().Msg("alert actor stopped")
				return
			}
		}
	}
}

func (a *Actor) handleMetricEvent(event types.MetricEvent, logger zerolog.Logger) {
	state, ok := a.servers[event.ServerID]
	if !ok {
		return
	}
	if state.config.Limits == nil {
		return
	}

	if limit := state.config.Limits.Temperature; limit != nil {
		if temp := event.Metrics.Components.AverageTemperature; temp != nil {
			a.evaluateServerLimit(state, sink.KindTemperature, *temp, *limit, &state.tempGraceCounter, logger)
		}
	}

	if limit := state.config.Limits.Usage; limit != nil {
		a.evaluateServerLimit(state, sink.KindUsage, event.Metrics.Cpus.AverageUsage, *limit, &state.usageGraceCounter, logger)
	}
}

func (a *Actor) evaluateServerLimit(state *serverState, kind sink.Kind, sample float32, limit types.ResolvedLimit, counter *int, logger zerolog.Logger) {
	verdict := grace.Evaluate(sample, float32(limit.Limit), limit.Grace, *counter)

	switch verdict {
	case grace.Ok:
		*counter = 0
	case grace.Exceeding:
		*counter++
	case grace.StartsToExceed:
		*counter++
		logger.Debug().Str("server_id", state.config.ServerID()).Str("kind", string(kind)).Msg("resource exceeded limit")
		a.dispatchServer(state, kind, verdict, float64(sample), float64(limit.Limit), limit.Alert, logger)
	case grace.BackToOk:
		*counter = 0
		logger.Debug().Str("server_id", state.config.ServerID()).Str("kind", string(kind)).Msg("resource recovered")
		a.dispatchServer(state, kind, verdict, float64(sample), float64(limit.Limit), limit.Alert, logger)
	}
}

func (a *Actor) dispatchServer(state *serverState, kind sink.Kind, verdict grace.Verdict, value, threshold float64, alertCfg *types.Alert, logger zerolog.Logger) {
	s := sinkFor(alertCfg)
	if s == nil {
		return
	}

	n := sink.Notification{
		Kind:         kind,
		Verdict:      verdict,
		ServerIP:     state.config.IP.String(),
		TargetName:   state.config.Display,
		CurrentValue: value,
		Threshold:    threshold,
		HasValue:     true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Dispatch(ctx, n)
}

func (a *Actor) handleServiceCheckEvent(event types.ServiceCheckEvent, logger zerolog.Logger) {
	state, ok := a.services[event.ServiceName]
	if !ok {
		return
	}

	graceLimit := state.config.Grace
	previous := state.lastStatus

	switch event.Status {
	case types.ServiceDown, types.ServiceDegraded:
		state.consecutiveDown++

		if state.consecutiveDown == graceLimit {
			logger.Debug().Str("service", event.ServiceName).Msg("service down, grace period exhausted")
			a.dispatchService(state, grace.StartsToExceed, &event, previous, logger)
		}
		status := event.Status
		state.lastStatus = &status

	case types.ServiceUp:
		if state.consecutiveDown >= graceLimit {
			logger.Debug().Str("service", event.ServiceName).Msg("service recovered")
			a.dispatchService(state, grace.BackToOk, &event, previous, logger)
		}
		state.consecutiveDown = 0
		up := types.ServiceUp
		state.lastStatus = &up
	}
}

func (a *Actor) dispatchService(state *serviceState, verdict grace.Verdict, event *types.ServiceCheckEvent, previous *types.ServiceStatus, logger zerolog.Logger) {
	s := sinkFor(state.config.Alert)
	if s == nil {
		return
	}

	n := sink.Notification{
		Kind:          sink.KindService,
		Verdict:       verdict,
		TargetName:    state.config.Name,
		ServiceURL:    event.URL,
		ErrorMessage:  event.ErrorMessage,
		CurrentStatus: string(event.Status),
	}
	if previous != nil {
		n.PreviousStatus = string(*previous)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Dispatch(ctx, n)
}

func (a *Actor) getState(serverID string) State {
	state, ok := a.servers[serverID]
	if !ok {
		return State{}
	}
	return State{
		ServerID:               serverID,
		TemperatureConsecutive: state.tempGraceCounter,
		UsageConsecutive:       state.usageGraceCounter,
		LastEvaluation:         time.Now(),
	}
}

// GetState returns the current grace counters for a server.
func (h *Handle) GetState(ctx context.Context, serverID string) (State, error) {
	respond := make(chan State, 1)
	select {
	case h.commands <- getStateRequest{serverID: serverID, respond: respond}:
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
	select {
	case s := <-respond:
		return s, nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

// MuteAlerts suppresses all evaluation (not just dispatch) until duration
// elapses. Auto-expiry is opportunistic: the actor clears the mute the next
// time its internal ticker fires after the deadline, not via a dedicated
// per-mute timer.
func (h *Handle) MuteAlerts(duration time.Duration) {
	h.commands <- muteRequest{until: time.Now().Add(duration)}
}

// UnmuteAlerts clears any active mute immediately.
func (h *Handle) UnmuteAlerts() {
	h.commands <- unmuteRequest{}
}

// Shutdown stops the actor's goroutine.
func (h *Handle) Shutdown() {
	h.commands <- shutdownRequest{}
}
