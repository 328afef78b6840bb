// Package session управляет жизненным циклом сессий удаленного доступа.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"remote-agent/internal/agenterr"
	"remote-agent/internal/types"
)

// defaultSweepInterval период проверки неактивных сессий
const defaultSweepInterval = 30 * time.Second

// Registry реестр активных сессий. Сессии живут независимо от
// транспортных соединений: обрыв соединения не завершает сессию,
// ее убирает только явный destroy или таймаут неактивности.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session

	timeout       time.Duration
	sweepInterval time.Duration
	logger        *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// Option настройка реестра
type Option func(*Registry)

// WithSweepInterval задает период проверки неактивных сессий
func WithSweepInterval(interval time.Duration) Option {
	return func(r *Registry) {
		r.sweepInterval = interval
	}
}

// NewRegistry создает реестр сессий с заданным таймаутом неактивности
func NewRegistry(timeout time.Duration, logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		sessions:      make(map[string]*types.Session),
		timeout:       timeout,
		sweepInterval: defaultSweepInterval,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create регистрирует новую сессию
func (r *Registry) Create(clientID string, caps types.Capabilities, quality types.Quality) types.Session {
	now := time.Now()
	session := &types.Session{
		ID:           types.NewID(),
		ClientID:     clientID,
		StartTime:    now,
		LastActivity: now,
		Quality:      quality,
		Capabilities: caps,
	}

	r.mu.Lock()
	r.sessions[session.ID] = session
	r.mu.Unlock()

	r.logger.Info("Session created",
		zap.String("session_id", session.ID),
		zap.String("client_id", clientID),
		zap.String("quality", quality.String()))

	return *session
}

// Get возвращает копию сессии
func (r *Registry) Get(id string) (types.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[id]
	if !exists {
		return types.Session{}, false
	}
	return *session, true
}

// GetAll возвращает копии всех сессий
func (r *Registry) GetAll() []types.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]types.Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, *session)
	}
	return sessions
}

// Count возвращает количество активных сессий
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Touch обновляет время последней активности сессии.
// Время только растет: запоздавший Touch не откатывает его назад.
func (r *Registry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[id]
	if !exists {
		return false
	}
	if now := time.Now(); now.After(session.LastActivity) {
		session.LastActivity = now
	}
	return true
}

// Destroy завершает сессию. Повторный вызов для той же сессии
// не является ошибкой.
func (r *Registry) Destroy(id string) {
	r.mu.Lock()
	session, exists := r.sessions[id]
	if exists {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if exists {
		r.logger.Info("Session destroyed",
			zap.String("session_id", id),
			zap.String("client_id", session.ClientID))
	}
}

// SetQuality меняет качество сессии
func (r *Registry) SetQuality(id string, quality types.Quality) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[id]
	if !exists {
		return agenterr.Newf(agenterr.KindSystem, "session not found: %s", id)
	}
	session.Quality = quality
	return nil
}

// RecordFrame учитывает отправленный или потерянный кадр в статистике сессии
func (r *Registry) RecordFrame(id string, bytes int, dropped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[id]
	if !exists {
		return
	}
	if dropped {
		session.Stats.FramesDropped++
		return
	}
	session.Stats.FramesSent++
	session.Stats.BytesSent += uint64(bytes)
}

// RecordFrameByClient учитывает кадр во всех сессиях клиента
func (r *Registry) RecordFrameByClient(clientID string, bytes int, dropped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, session := range r.sessions {
		if session.ClientID != clientID {
			continue
		}
		if dropped {
			session.Stats.FramesDropped++
			continue
		}
		session.Stats.FramesSent++
		session.Stats.BytesSent += uint64(bytes)
	}
}

// TouchByClient обновляет активность всех сессий клиента и учитывает
// принятые от него байты
func (r *Registry) TouchByClient(clientID string, receivedBytes int) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, session := range r.sessions {
		if session.ClientID != clientID {
			continue
		}
		if now.After(session.LastActivity) {
			session.LastActivity = now
		}
		session.Stats.BytesReceived += uint64(receivedBytes)
	}
}

// RecordReceived учитывает принятые байты в статистике сессии
func (r *Registry) RecordReceived(id string, bytes int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session, exists := r.sessions[id]; exists {
		session.Stats.BytesReceived += uint64(bytes)
	}
}

// Start запускает фоновую очистку неактивных сессий
func (r *Registry) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)

		ticker := time.NewTicker(r.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.sweep()
			case <-runCtx.Done():
				return
			}
		}
	}()
}

// Stop останавливает фоновую очистку
func (r *Registry) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

// sweep удаляет сессии, неактивные дольше таймаута. Сначала собирает
// кандидатов под read-блокировкой, затем удаляет с повторной проверкой:
// сессия могла быть затронута или удалена между двумя шагами.
func (r *Registry) sweep() {
	deadline := time.Now().Add(-r.timeout)

	r.mu.RLock()
	var expired []string
	for id, session := range r.sessions {
		if session.LastActivity.Before(deadline) {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	r.mu.Lock()
	for _, id := range expired {
		session, exists := r.sessions[id]
		if !exists || !session.LastActivity.Before(deadline) {
			continue
		}
		delete(r.sessions, id)
		r.logger.Info("Inactive session cleaned up",
			zap.String("session_id", id),
			zap.String("client_id", session.ClientID))
	}
	r.mu.Unlock()
}
