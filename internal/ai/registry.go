package ai

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/kirillm/ai-fund/internal/domain"
)

// Registry выдает клиентов оракула по конфигурации агента.
// Клиенты кешируются по (api_url, api_key), чтобы агенты с одним
// провайдером делили rate limiter.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*Client

	timeout      time.Duration
	callInterval time.Duration
	maxRetry     int
}

// NewRegistry создает новый реестр клиентов
func NewRegistry(timeout, callInterval time.Duration, maxRetry int) *Registry {
	return &Registry{
		clients:      make(map[string]*Client),
		timeout:      timeout,
		callInterval: callInterval,
		maxRetry:     maxRetry,
	}
}

// ForAgent возвращает клиента для агента. API-ключ читается из
// переменной окружения, указанной в api_key_env.
func (r *Registry) ForAgent(agent *domain.Agent) (*Client, error) {
	apiKey := ""
	if agent.APIKeyEnv != "" {
		apiKey = os.Getenv(agent.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("API key env %s is not set for agent %s", agent.APIKeyEnv, agent.AgentID)
		}
	}

	key := agent.APIURL + "|" + apiKey

	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[key]; ok {
		return client, nil
	}

	client := NewClient(agent.APIURL, apiKey, r.timeout, r.callInterval, r.maxRetry)
	r.clients[key] = client
	return client, nil
}
