package server

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"trailarena/protocol"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, ErrUnknownRoom) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

// HandleRooms 房间列表
// GET /admin/rooms
func HandleRooms(m *RoomManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"rooms": m.List()})
	}
}

// HandleRoom 单个房间的快照与配置，或关闭房间
// GET    /admin/rooms/{id}
// DELETE /admin/rooms/{id}?reason=...
func HandleRoom(m *RoomManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := r.PathValue("id")
		switch r.Method {
		case http.MethodGet:
			room, err := m.Get(roomID)
			if err != nil {
				writeError(w, err)
				return
			}
			snap, err := room.Snapshot()
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"snapshot": snap,
				"config":   room.Config(),
			})
		case http.MethodDelete:
			reason := r.URL.Query().Get("reason")
			if reason == "" {
				reason = "closed by admin"
			}
			if err := m.CloseRoom(roomID, reason); err != nil {
				writeError(w, err)
				return
			}
			Log.Infow("room closed by admin", "room", roomID, "reason", reason)
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// HandleMetrics 输出指定房间（或全部房间）的运行指标
// GET /metrics?room=r1
func HandleMetrics(m *RoomManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if roomID := r.URL.Query().Get("room"); roomID != "" {
			room, err := m.Get(roomID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"room":    roomID,
				"metrics": room.Metrics().Snapshot(),
			})
			return
		}
		all := make(map[string]any)
		for _, room := range m.list() {
			all[room.ID] = room.Metrics().Snapshot()
		}
		writeJSON(w, http.StatusOK, map[string]any{"rooms": all})
	}
}

// HandleSchema 协议的 JSON Schema
// GET /protocol/schema
func HandleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.Schema())
}

// NewMux 注册全部 HTTP 路由；internalKey 为空时不开放 /internal
func NewMux(m *RoomManager, queueSize int, internalKey string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", &WSHandler{Manager: m, QueueSize: queueSize})
	if internalKey != "" {
		mux.Handle("/internal", &InternalHandler{Manager: m, APIKey: internalKey, QueueSize: queueSize})
	}
	// 管理与监控接口
	mux.HandleFunc("GET /admin/rooms", HandleRooms(m))
	mux.HandleFunc("/admin/rooms/{id}", HandleRoom(m))
	mux.HandleFunc("GET /metrics", HandleMetrics(m))
	mux.HandleFunc("GET /protocol/schema", HandleSchema)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
