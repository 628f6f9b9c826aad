package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/nerrad567/propcore/internal/audit"
	"github.com/nerrad567/propcore/internal/permission"
)

// auditChanSize is the buffer size for the async audit channel.
// Entries beyond this are dropped to avoid back-pressure on requests.
const auditChanSize = 256

// auditLog enqueues an audit entry for asynchronous write. If the channel
// is full the entry is dropped and a warning is logged.
func (s *Server) auditLog(user permission.User, e audit.Entry) {
	if s.auditRepo == nil || s.auditCh == nil {
		return
	}
	e.UserID = user.ID
	e.Source = "api"

	select {
	case s.auditCh <- &e:
	default:
		s.logger.Warn("audit channel full, dropping entry",
			"action", e.Action,
			"object_id", e.ObjectID,
		)
	}
}

// drainAuditLog writes queued entries serially until ctx is cancelled,
// then flushes what is left.
func (s *Server) drainAuditLog(ctx context.Context) {
	for {
		select {
		case entry := <-s.auditCh:
			s.writeAudit(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-s.auditCh:
					s.writeAudit(entry)
				default:
					return
				}
			}
		}
	}
}

func (s *Server) writeAudit(entry *audit.Entry) {
	if err := s.auditRepo.Create(context.Background(), entry); err != nil {
		s.logger.Error("audit write failed",
			"action", entry.Action,
			"object_id", entry.ObjectID,
			"error", err,
		)
	}
}

// handleListAuditLogs returns a page of the audit trail. Admins only.
//
// Query parameters:
//   - action: create, import, delete, set_value, clear_value, update, freeze
//   - object_id, user_id: exact match
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if !userFromContext(r.Context()).IsAdmin() {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "audit trail requires admin")
		return
	}
	if s.auditRepo == nil {
		writeInternalError(w, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:   q.Get("action"),
		ObjectID: q.Get("object_id"),
		UserID:   q.Get("user_id"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
