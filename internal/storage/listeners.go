package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"childservice/internal/models"
	"childservice/internal/observability/metrics"
)

// listenerBuffer is the per-connection channel capacity. A slow consumer that
// falls more than this many payloads behind starts losing messages; delivery
// is at-most-once by design.
const listenerBuffer = 8

// listener is one open stream connection: the outbound chunk channel, the
// uuid of the user it is scoped to, and the request context's done channel.
// A fired done channel is the only liveness signal the registry gets; there
// is no explicit unsubscribe call.
type listener struct {
	send   chan []byte
	userID string
	done   <-chan struct{}
}

func (l listener) closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// OpenStream registers a new listener for the given user and returns the
// receiving end for attachment to a chunked response body. The initial
// snapshot payload is sent asynchronously so the registration itself never
// blocks on the consumer.
func (s *Store) OpenStream(ctx context.Context, userUUID string) (<-chan []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.userByUUIDLocked(userUUID)
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userUUID, ErrNotFound)
	}

	payload := s.payloadForLocked(user)
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal stream payload: %w", err)
	}

	entry := listener{
		send:   make(chan []byte, listenerBuffer),
		userID: userUUID,
		done:   ctx.Done(),
	}
	s.listeners = append(s.listeners, entry)
	metrics.Default().ObserveStreamEvent("opened")
	metrics.Default().SetActiveListeners(len(s.listeners))

	go func() {
		select {
		case entry.send <- data:
		case <-entry.done:
		}
	}()

	return entry.send, nil
}

// Broadcast pushes a payload to every open listener. The payload is
// serialised once; each delivery is a non-blocking send so a stalled
// consumer can never hold up the caller. Full or closed listeners are
// logged and skipped, never fatal.
func (s *Store) Broadcast(payload models.StreamPayload) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.broadcastLocked(payload, "")
}

// BroadcastTo behaves like Broadcast filtered to listeners owned by the
// given user uuid.
func (s *Store) BroadcastTo(userUUID string, payload models.StreamPayload) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.broadcastLocked(payload, userUUID)
}

// broadcastLocked requires the caller to hold the lock in either mode. An
// empty userUUID targets every listener.
func (s *Store) broadcastLocked(payload models.StreamPayload, userUUID string) {
	data, err := json.Marshal(payload)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to marshal stream payload", "error", err)
		}
		return
	}
	s.deliverLocked(data, userUUID)
}

func (s *Store) deliverLocked(data []byte, userUUID string) {
	if s.logger != nil {
		s.logger.Debug("broadcasting payload",
			"bytes", len(data),
			"listeners", len(s.listeners),
			"target", userUUID)
	}
	for _, entry := range s.listeners {
		if userUUID != "" && entry.userID != userUUID {
			continue
		}
		if entry.closed() {
			if s.logger != nil {
				s.logger.Debug("skipping closed listener", "user_id", entry.userID)
			}
			continue
		}
		select {
		case entry.send <- data:
		default:
			metrics.Default().ObserveStreamEvent("dropped")
			if s.logger != nil {
				s.logger.Warn("listener channel full, dropping payload", "user_id", entry.userID)
			}
		}
	}
}

// PruneDeadListeners removes every listener whose connection has gone away
// and returns how many were reaped. The periodic sweep is the only path that
// guarantees cleanup for connections that died without a clean close.
func (s *Store) PruneDeadListeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A fresh slice, so reaped entries do not linger in the old backing
	// array and their channels become collectable right away.
	kept := make([]listener, 0, len(s.listeners))
	for _, entry := range s.listeners {
		if entry.closed() {
			continue
		}
		kept = append(kept, entry)
	}
	removed := len(s.listeners) - len(kept)
	s.listeners = kept
	if removed > 0 {
		metrics.Default().AddStreamEvents("pruned", removed)
		if s.logger != nil {
			s.logger.Info("pruned dead listeners", "removed", removed, "remaining", len(kept))
		}
	}
	metrics.Default().SetActiveListeners(len(kept))
	return removed
}

// ListenerCount reports how many listeners are currently registered,
// including ones that died since the last sweep.
func (s *Store) ListenerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

// payloadForLocked builds the snapshot payload a user's stream should carry:
// admins get every profile and report, everyone else gets their own reports
// plus the nickname table.
func (s *Store) payloadForLocked(user models.User) models.StreamPayload {
	if user.AccessLevel == models.AccessAdmin {
		return models.ReadyAdminPayload(user.UUID, s.listUsersLocked(), s.allReportsLocked())
	}
	return models.ReadyPayload(user.Public(), s.reportsForUserLocked(user.UUID), s.nicknamesLocked())
}

// notifyLocked pushes refreshed snapshots after a mutation: each named owner
// receives an updated Ready payload and every admin receives an updated
// ReadyAdmin payload. The caller must hold the write lock, which also
// serialises delivery order per listener.
func (s *Store) notifyLocked(ownerUUIDs ...string) {
	seen := make(map[string]struct{}, len(ownerUUIDs))
	for _, ownerUUID := range ownerUUIDs {
		if _, dup := seen[ownerUUID]; dup {
			continue
		}
		seen[ownerUUID] = struct{}{}
		owner, ok := s.userByUUIDLocked(ownerUUID)
		if !ok {
			continue
		}
		payload := s.payloadForLocked(owner)
		if payload.IsAdmin() {
			// Admin owners are refreshed in the admin pass below.
			continue
		}
		s.broadcastLocked(payload, ownerUUID)
	}
	for _, user := range s.data.Users {
		if user.AccessLevel != models.AccessAdmin {
			continue
		}
		s.broadcastLocked(s.payloadForLocked(user), user.UUID)
	}
}

// notifyForReportLocked resolves a soft report reference to its owner when
// the report exists; dangling references still refresh admin streams.
func (s *Store) notifyForReportLocked(reportUUID string) {
	if index, ok := s.reportIndexLocked(reportUUID); ok {
		s.notifyLocked(s.data.Reports[index].UserUUID)
		return
	}
	s.notifyLocked()
}
