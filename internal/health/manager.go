// Package health implements periodic health monitoring for GMBridge,
// including game link supervision, automatic re-login after reconnects,
// and the MQTT heartbeat.
package health

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gmbridge-project/gmbridge/internal/bridge"
	"github.com/gmbridge-project/gmbridge/internal/config"
	"github.com/gmbridge-project/gmbridge/internal/events"
	"github.com/gmbridge-project/gmbridge/internal/util"
)

// Manager runs periodic health checks and keeps the game session
// authenticated across reconnects.
type Manager struct {
	cfg      *config.Config
	eventBus *events.EventBus
	bridge   *bridge.Bridge
}

// NewManager creates a new health check manager. The re-login subscription
// is registered here so no connection event can slip past before Start runs.
func NewManager(cfg *config.Config, eventBus *events.EventBus, br *bridge.Bridge) *Manager {
	m := &Manager{
		cfg:      cfg,
		eventBus: eventBus,
		bridge:   br,
	}

	// The connector reconnects the TCP link on its own but the game session
	// must be re-authenticated after every new connection.
	eventBus.Subscribe(events.EventGameConnected, "health.relogin", m.onGameConnected)

	return m
}

// Start launches all health check goroutines. It blocks until the context
// is cancelled.
func (m *Manager) Start(ctx context.Context) {
	timers := m.cfg.GetApplicationData().Timers

	checks := []struct {
		name     string
		interval int
		fn       func(context.Context)
	}{
		{"general_health", timers.GeneralHealthInterval, m.checkGeneralHealth},
	}

	for _, check := range checks {
		if check.interval <= 0 {
			continue
		}

		check := check
		go func() {
			ticker := time.NewTicker(time.Duration(check.interval) * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					check.fn(ctx)
				}
			}
		}()
	}

	// Heartbeat (special: publishes MQTT status)
	if timers.HeartbeatInterval > 0 {
		go m.heartbeatLoop(ctx, time.Duration(timers.HeartbeatInterval)*time.Second)
	}

	log.Info().Int("checks", len(checks)).Msg("health check manager started")

	<-ctx.Done()
	log.Info().Msg("health check manager stopped")
}

// onGameConnected re-authenticates the GM session on every fresh connection.
func (m *Manager) onGameConnected(ctx context.Context, event events.Event) error {
	game := m.cfg.GetGameData()

	err := m.bridge.Login(ctx, game.Password, game.LoginTimeout())
	if err != nil {
		log.Error().Err(err).Str("account", game.Account).Msg("game login failed")
		m.eventBus.Emit(ctx, events.Event{
			Type:   events.EventLoginFailed,
			Source: "health",
			Payload: events.LoginFailedPayload{
				Account: game.Account,
				Reason:  err.Error(),
			},
		})
		return err
	}

	log.Info().Str("account", game.Account).Msg("game session authenticated")
	m.eventBus.Emit(ctx, events.Event{
		Type:    events.EventLoginOK,
		Source:  "health",
		Payload: map[string]string{"account": game.Account},
	})
	return nil
}

// checkGeneralHealth logs the link state and host pressure.
func (m *Manager) checkGeneralHealth(ctx context.Context) {
	connected := m.bridge.Connected()

	ev := log.Debug().Bool("game_connected", connected)
	if mem, err := util.GetMemoryUsage(); err == nil {
		ev = ev.Float64("memory_used_percent", mem.UsedPercent)
	}
	ev.Msg("general health check")

	if !connected {
		log.Warn().Msg("game server link is down")
	}
}

// heartbeatLoop publishes a periodic heartbeat via MQTT.
func (m *Manager) heartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload := map[string]interface{}{
				"type":           "heartbeat",
				"game_connected": m.bridge.Connected(),
				"account":        m.bridge.Account(),
				"timestamp":      time.Now().Unix(),
			}
			if cpu, err := util.GetCPUUsage(); err == nil {
				payload["cpu_percent"] = cpu
			}
			m.eventBus.Emit(ctx, events.Event{
				Type:    events.EventNotifyMQTT,
				Source:  "heartbeat",
				Payload: payload,
			})
		}
	}
}
