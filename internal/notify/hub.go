package notify

import (
	"encoding/json"
	"sync"

	"github.com/renxuetao/cskefu/internal/metrics"
	"github.com/renxuetao/cskefu/internal/types"
	"github.com/rs/zerolog"
)

// AgentHub maintains the set of live agent console connections and
// implements Notifier over them.
type AgentHub struct {
	// Registered agent clients, agentID -> client.
	agents map[string]*AgentClient

	// Register requests from clients that completed their register frame.
	register chan *AgentClient

	// Unregister requests from closing clients.
	unregister chan *AgentClient

	mu     sync.RWMutex
	logger zerolog.Logger
}

// NewAgentHub creates a new AgentHub.
func NewAgentHub(logger zerolog.Logger) *AgentHub {
	return &AgentHub{
		agents:     make(map[string]*AgentClient),
		register:   make(chan *AgentClient),
		unregister: make(chan *AgentClient),
		logger:     logger,
	}
}

// Run starts the hub's main loop.
func (h *AgentHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			// One live connection per agent; a reconnect replaces it.
			if existing, ok := h.agents[client.agentID]; ok {
				existing.Close()
				delete(h.agents, client.agentID)
			}
			h.agents[client.agentID] = client
			total := len(h.agents)
			h.mu.Unlock()

			h.logger.Debug().
				Str("agent_id", client.agentID).
				Int("total_agents", total).
				Msg("agent console connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if existing, ok := h.agents[client.agentID]; ok && existing == client {
				delete(h.agents, client.agentID)
				client.Close()
				h.logger.Debug().
					Str("agent_id", client.agentID).
					Int("total_agents", len(h.agents)).
					Msg("agent console disconnected")
			}
			h.mu.Unlock()
		}
	}
}

// NotifyAgent marshals an envelope and sends it to one agent.
func (h *AgentHub) NotifyAgent(agentID string, kind types.MessageKind, payload any) bool {
	data, err := json.Marshal(envelope{Kind: kind, Body: payload})
	if err != nil {
		h.logger.Error().Err(err).Str("agent_id", agentID).Msg("failed to marshal notification")
		return false
	}

	if !h.sendToAgent(agentID, data) {
		metrics.Get().RecordNotification(false)
		h.logger.Warn().
			Str("agent_id", agentID).
			Str("kind", string(kind)).
			Msg("agent not connected, notification dropped")
		return false
	}
	metrics.Get().RecordNotification(true)
	return true
}

// AgentCount returns the number of connected agents.
func (h *AgentHub) AgentCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.agents)
}

func (h *AgentHub) sendToAgent(agentID string, message []byte) bool {
	h.mu.RLock()
	client, ok := h.agents[agentID]
	h.mu.RUnlock()

	if !ok {
		return false
	}
	return client.safeSend(message)
}
