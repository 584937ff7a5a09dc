// Package web exposes the core over HTTP for the editor plugin: read the
// tree, subscribe to forward patches, push reverse writes, and validate
// freshness. Transport framing stays here; the core knows nothing of HTTP.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/untoldecay/loom/internal/logging"
	"github.com/untoldecay/loom/internal/msgqueue"
	"github.com/untoldecay/loom/internal/patch"
	"github.com/untoldecay/loom/internal/processor"
	"github.com/untoldecay/loom/internal/syncback"
	"github.com/untoldecay/loom/internal/tree"
)

// ProtocolVersion gates plugin compatibility.
const ProtocolVersion = 4

// longPollTimeout bounds how long /api/subscribe holds a request open
// before returning an empty set.
const longPollTimeout = 60 * time.Second

// Config carries the identity the server reports on /api/rojo.
type Config struct {
	SessionID       string
	ServerVersion   string
	ProjectName     string
	PlaceID         *uint64
	GameID          *uint64
	ServePlaceIDs   []uint64
	BlockedPlaceIDs []uint64
}

// Server handles the plugin API.
type Server struct {
	proc   *processor.Processor
	queue  *msgqueue.Queue
	config Config
	rootID tree.Referent

	upgrader websocket.Upgrader
}

// NewServer wires the API over a running processor.
func NewServer(proc *processor.Processor, queue *msgqueue.Queue, rootID tree.Referent, config Config) *Server {
	return &Server{
		proc:   proc,
		queue:  queue,
		config: config,
		rootID: rootID,
		upgrader: websocket.Upgrader{
			// The plugin connects from the editor on localhost.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/rojo", s.handleInfo)
	mux.HandleFunc("GET /api/read/{id}", s.handleRead)
	mux.HandleFunc("GET /api/subscribe/{cursor}", s.handleSubscribe)
	mux.HandleFunc("POST /api/write", s.handleWrite)
	mux.HandleFunc("GET /api/validate-tree", s.handleValidate)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Debugf("writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId":       s.config.SessionID,
		"serverVersion":   s.config.ServerVersion,
		"protocolVersion": ProtocolVersion,
		"projectName":     s.config.ProjectName,
		"rootInstanceId":  refString(s.rootID),
		"placeId":         s.config.PlaceID,
		"gameId":          s.config.GameID,
		"expectedPlaceIds": s.config.ServePlaceIDs,
		"blockedPlaceIds":  s.config.BlockedPlaceIDs,
	})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	id, err := parseRef(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	instances := make(map[string]Instance)
	var encodeErr error
	s.proc.WithReadLock(func(t *tree.Tree) {
		encodeErr = encodeSubtree(t, id, instances)
	})
	if encodeErr != nil {
		writeError(w, http.StatusNotFound, encodeErr.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId":     s.config.SessionID,
		"rootId":        refString(id),
		"messageCursor": s.queue.Cursor(),
		"instances":     instances,
	})
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	cursor64, err := strconv.ParseUint(r.PathValue("cursor"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "cursor must be a non-negative integer")
		return
	}
	cursor := uint32(cursor64)

	if websocket.IsWebSocketUpgrade(r) {
		s.subscribeWebSocket(w, r, cursor)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), longPollTimeout)
	defer cancel()

	entries, newCursor, err := s.queue.Subscribe(ctx, cursor)
	if err != nil {
		// Timed out with nothing new; the plugin re-subscribes.
		writeJSON(w, http.StatusOK, map[string]any{
			"sessionId":     s.config.SessionID,
			"messageCursor": cursor,
			"messages":      []any{},
		})
		return
	}
	s.writePatches(w, entries, newCursor)
}

func (s *Server) writePatches(w http.ResponseWriter, entries []*patch.Applied, newCursor uint32) {
	messages, err := s.encodeEntries(entries)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId":     s.config.SessionID,
		"messageCursor": newCursor,
		"messages":      messages,
	})
}

func (s *Server) encodeEntries(entries []*patch.Applied) ([]*AppliedPatch, error) {
	messages := make([]*AppliedPatch, 0, len(entries))
	var encodeErr error
	s.proc.WithReadLock(func(t *tree.Tree) {
		for _, entry := range entries {
			wire, err := encodeApplied(t, entry)
			if err != nil {
				encodeErr = err
				return
			}
			messages = append(messages, wire)
		}
	})
	return messages, encodeErr
}

func (s *Server) subscribeWebSocket(w http.ResponseWriter, r *http.Request, cursor uint32) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := r.Context()
	for {
		entries, newCursor, err := s.queue.Subscribe(ctx, cursor)
		if err != nil {
			return
		}
		messages, err := s.encodeEntries(entries)
		if err != nil {
			logging.Errorf("encoding subscription payload: %v", err)
			return
		}
		payload := map[string]any{
			"sessionId":     s.config.SessionID,
			"messageCursor": newCursor,
			"messages":      messages,
		}
		if err := conn.WriteJSON(payload); err != nil {
			return
		}
		cursor = newCursor
	}
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	var body writeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed write request: "+err.Error())
		return
	}
	if body.SessionID != s.config.SessionID {
		writeError(w, http.StatusBadRequest, "session id mismatch; re-read the tree and reconnect")
		return
	}

	req := &syncback.WriteRequest{}
	for _, removed := range body.Removed {
		id, err := parseRef(removed)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Removed = append(req.Removed, id)
	}
	for _, added := range body.Added {
		parentID, err := parseRef(added.ParentID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		snap, err := added.Instance.toSnapshot()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Added = append(req.Added, syncback.WriteAdd{ParentID: parentID, Snapshot: snap})
	}
	for _, updated := range body.Updated {
		id, err := parseRef(updated.ID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		props, err := decodeChangedProperties(updated.ChangedProperties)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Updated = append(req.Updated, syncback.WriteUpdate{
			ID:                id,
			ChangedName:       updated.ChangedName,
			ChangedClassName:  updated.ChangedClassName,
			ChangedProperties: props,
		})
	}

	result, err := s.proc.Write(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId":    s.config.SessionID,
		"createdPaths": result.CreatedPaths,
		"removedPaths": result.RemovedPaths,
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, _ *http.Request) {
	added, removed, updated, err := s.proc.ValidateTree()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": s.config.SessionID,
		"added":     added,
		"removed":   removed,
		"updated":   updated,
		"fresh":     added == 0 && removed == 0 && updated == 0,
	})
}
