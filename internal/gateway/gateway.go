// Copyright 2026 The routeAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package gateway carries questions and answers over websocket. Clients
// connect to /v1/ws, send loosely shaped JSON frames carrying a question,
// and receive answer frames that echo the conversation id so the caller can
// match responses. The gateway never does inference itself; it hands every
// question to an Answerer.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/traylinx/routeAILocal/internal/dispatch"
)

// Answerer resolves one question to an answer. The dispatch orchestrator is
// the production implementation.
type Answerer interface {
	Handle(ctx context.Context, req dispatch.Request) (dispatch.Result, error)
}

// SessionLogger receives a summary line block when a connection with at
// least one exchanged question closes. The memory store satisfies it.
type SessionLogger interface {
	AppendSessionSummary(summary string) error
}

const (
	writeTimeout   = 10 * time.Second
	maxFrameBytes  = 64 * 1024
	summaryClipLen = 80
)

// introPattern matches self-identification phrases so a conversation can be
// attributed to a known speaker ("I'm Ziggy", "my name is Lev").
var introPattern = regexp.MustCompile(`(?i)\b(?:i'?m|i am|it'?s|this is|my name is)\s+([a-z]+)`)

// Options configures a Gateway.
type Options struct {
	// KnownSpeakers maps lowercase spoken aliases to canonical display
	// names. Introductions by anyone else are ignored.
	KnownSpeakers map[string]string
	// Sessions receives end-of-connection summaries. Nil disables them.
	Sessions SessionLogger
	// CheckOrigin overrides the upgrader origin policy. Nil allows all
	// origins, matching a trusted-LAN deployment.
	CheckOrigin func(r *http.Request) bool
}

// Gateway upgrades HTTP requests to websocket sessions and relays
// question/answer frames.
type Gateway struct {
	answerer Answerer
	sessions SessionLogger
	speakers map[string]string
	upgrader websocket.Upgrader

	mu         sync.Mutex
	identified map[string]string // conversation id -> speaker name
}

// New builds a Gateway around an Answerer.
func New(answerer Answerer, opts Options) *Gateway {
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	speakers := make(map[string]string, len(opts.KnownSpeakers))
	for alias, name := range opts.KnownSpeakers {
		speakers[strings.ToLower(alias)] = name
	}
	return &Gateway{
		answerer: answerer,
		sessions: opts.Sessions,
		speakers: speakers,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		identified: make(map[string]string),
	}
}

// session is one live websocket connection. Writes are serialized through
// writeMu because answer frames can race with control frames.
type session struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex

	exchanges []exchange
}

type exchange struct {
	user     string
	question string
}

func (s *session) send(msg []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, msg)
}

// HandleUpgrade upgrades the request and runs the session read loop until
// the client disconnects.
func (g *Gateway) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	sess := &session{
		id:   uuid.NewString()[:8],
		conn: conn,
	}
	conn.SetReadLimit(maxFrameBytes)
	log.Infof("websocket client %s connected from %s", sess.id, r.RemoteAddr)

	defer func() {
		conn.Close()
		g.flushSession(sess)
		log.Infof("websocket client %s disconnected", sess.id)
	}()

	for {
		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("websocket client %s read error: %v", sess.id, err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		g.handleFrame(r.Context(), sess, frame)
	}
}

// handleFrame parses one inbound frame, resolves an answer, and writes the
// reply. Malformed frames get an error frame instead of closing the session.
func (g *Gateway) handleFrame(ctx context.Context, sess *session, frame []byte) {
	if !gjson.ValidBytes(frame) {
		g.sendError(sess, "", "invalid JSON payload")
		return
	}

	question := gjson.GetBytes(frame, "text").String()
	if question == "" {
		question = gjson.GetBytes(frame, "question").String()
	}
	conversationID := gjson.GetBytes(frame, "conversation_id").String()
	if question == "" {
		g.sendError(sess, conversationID, "payload carries no question")
		return
	}

	user := gjson.GetBytes(frame, "user").String()
	if user == "" {
		user = "unknown"
	}
	user = g.resolveSpeaker(conversationID, user, question)

	sess.exchanges = append(sess.exchanges, exchange{user: user, question: question})
	log.Infof("question from %s (conv:%s): %s", user, conversationID, clip(question, 50))

	result, err := g.answerer.Handle(ctx, dispatch.Request{
		Query:          question,
		Caller:         user,
		ConversationID: conversationID,
		RequiresVision: gjson.GetBytes(frame, "requires_vision").Bool(),
		SceneSource:    gjson.GetBytes(frame, "scene_source").String(),
	})
	if err != nil {
		log.Errorf("dispatch failed for client %s: %v", sess.id, err)
		g.sendError(sess, conversationID, "Sorry, I had a little trouble with that one. Can you ask me again?")
		return
	}

	reply, err := buildAnswerFrame(result, user, conversationID)
	if err != nil {
		log.Errorf("answer encode failed for client %s: %v", sess.id, err)
		return
	}
	if err := sess.send(reply); err != nil {
		log.Warnf("answer write failed for client %s: %v", sess.id, err)
	}
}

// buildAnswerFrame encodes the dispatch result and patches in the legacy
// text/response aliases plus the conversation id older clients expect.
func buildAnswerFrame(result dispatch.Result, user, conversationID string) ([]byte, error) {
	frame, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	if frame, err = sjson.SetBytes(frame, "text", result.Answer); err != nil {
		return nil, err
	}
	if frame, err = sjson.SetBytes(frame, "response", result.Answer); err != nil {
		return nil, err
	}
	if frame, err = sjson.SetBytes(frame, "user", user); err != nil {
		return nil, err
	}
	if conversationID != "" {
		if frame, err = sjson.SetBytes(frame, "conversation_id", conversationID); err != nil {
			return nil, err
		}
	}
	return frame, nil
}

func (g *Gateway) sendError(sess *session, conversationID, message string) {
	frame := []byte(`{}`)
	frame, _ = sjson.SetBytes(frame, "error", message)
	if conversationID != "" {
		frame, _ = sjson.SetBytes(frame, "conversation_id", conversationID)
	}
	if err := sess.send(frame); err != nil {
		log.Warnf("error write failed for client %s: %v", sess.id, err)
	}
}

// resolveSpeaker prefers a previously identified speaker for the
// conversation, records new introductions, and otherwise keeps the caller
// supplied name.
func (g *Gateway) resolveSpeaker(conversationID, user, question string) string {
	if name := g.detectIntroduction(question); name != "" && conversationID != "" {
		g.mu.Lock()
		g.identified[conversationID] = name
		g.mu.Unlock()
		log.Infof("speaker identified as %s for conv:%s", name, conversationID)
		return name
	}
	if conversationID != "" {
		g.mu.Lock()
		name, ok := g.identified[conversationID]
		g.mu.Unlock()
		if ok && (user == "unknown" || user == "") {
			return name
		}
	}
	return user
}

func (g *Gateway) detectIntroduction(question string) string {
	m := introPattern.FindStringSubmatch(question)
	if m == nil {
		return ""
	}
	return g.speakers[strings.ToLower(m[1])]
}

// flushSession writes a summary of the closed session to the session logger.
func (g *Gateway) flushSession(sess *session) {
	if g.sessions == nil || len(sess.exchanges) == 0 {
		return
	}
	lines := make([]string, 0, len(sess.exchanges)+1)
	lines = append(lines, fmt.Sprintf("Session with %d messages:", len(sess.exchanges)))
	for _, ex := range sess.exchanges {
		lines = append(lines, fmt.Sprintf("- %s: %s", ex.user, clip(ex.question, summaryClipLen)))
	}
	if err := g.sessions.AppendSessionSummary(strings.Join(lines, "\n")); err != nil {
		log.Warnf("session summary write failed: %v", err)
	}
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
