package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/mfarouk/repochat/internal/chat"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsRequest is the incoming WebSocket message format.
type wsRequest struct {
	Repo       string `json:"repo"`
	SessionID  string `json:"session_id,omitempty"`
	Question   string `json:"question"`
	MaxResults int    `json:"max_results,omitempty"`
}

// wsResponse is the outgoing WebSocket message format. Type is one of
// "status", "answer", "error" or "complete".
type wsResponse struct {
	Type      string        `json:"type"`
	SessionID string        `json:"session_id,omitempty"`
	Message   string        `json:"message,omitempty"`
	Answer    string        `json:"answer,omitempty"`
	Sources   []chat.Source `json:"sources,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("server: websocket read: %v", err)
			}
			return
		}

		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			s.sendWS(conn, wsResponse{Type: "error", Message: "invalid message format"})
			continue
		}
		if req.Question == "" {
			s.sendWS(conn, wsResponse{Type: "error", SessionID: req.SessionID, Message: "question is required"})
			continue
		}

		s.answerWS(conn, r, req)
	}
}

func (s *Server) answerWS(conn *websocket.Conn, r *http.Request, req wsRequest) {
	ctx := r.Context()

	ask := chat.Request{
		SessionID:  req.SessionID,
		Question:   req.Question,
		MaxResults: req.MaxResults,
	}
	if req.Repo != "" {
		repo, err := s.deps.Repos.Get(ctx, req.Repo)
		if err != nil {
			s.sendWS(conn, wsResponse{Type: "error", SessionID: req.SessionID, Message: err.Error()})
			return
		}
		if repo == nil {
			s.sendWS(conn, wsResponse{Type: "error", SessionID: req.SessionID, Message: "repository not found"})
			return
		}
		ask.RepoID = repo.ID
	}

	s.sendWS(conn, wsResponse{Type: "status", SessionID: req.SessionID, Message: "Searching code..."})

	resp, err := s.deps.Chat.Ask(ctx, ask)
	if err != nil {
		s.sendWS(conn, wsResponse{Type: "error", SessionID: req.SessionID, Message: err.Error()})
		return
	}

	s.sendWS(conn, wsResponse{
		Type:      "answer",
		SessionID: resp.SessionID,
		Answer:    resp.Answer,
		Sources:   resp.Sources,
	})
	s.sendWS(conn, wsResponse{Type: "complete", SessionID: resp.SessionID})
}

func (s *Server) sendWS(conn *websocket.Conn, resp wsResponse) {
	if err := conn.WriteJSON(resp); err != nil {
		log.Printf("server: websocket write: %v", err)
	}
}
