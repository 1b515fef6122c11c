package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"kartoffels.dev/internal/protocol"
	"kartoffels.dev/internal/sim/multiworld"
	"kartoffels.dev/internal/sim/tuning"
	"kartoffels.dev/internal/sim/world"
)

const (
	handshakeTimeout = 5 * time.Second
	writeTimeout     = 5 * time.Second
	readTimeout      = 60 * time.Second
	pingEvery        = 25 * time.Second
)

type Server struct {
	mgr  *multiworld.Manager
	tune tuning.Tuning
	log  *log.Logger

	upgrader websocket.Upgrader
	uploads  *windowLimiter
}

func NewServer(mgr *multiworld.Manager, tune tuning.Tuning, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		mgr:  mgr,
		tune: tune,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		uploads: newWindowLimiter(tune.UploadWindow(), tune.RateLimits.UploadMax),
	}
}

// session is one websocket client after a successful HELLO.
type session struct {
	id      string
	worldID string
	conn    *world.Conn
	events  *world.EventStream
}

func (s *session) close() {
	s.conn.Close()
	if s.events != nil {
		s.events.Close()
	}
}

// Handler streams UPDATE messages (and EVENT messages when asked for) for
// one world. The client only ever sends HELLO; anything it sends later is
// read and discarded to keep the connection alive.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(r.Context(), conn)
		if sess == nil {
			return
		}
		defer sess.close()
		s.log.Printf("session %s joined world %s", sess.id, sess.worldID)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		})

		// Writer goroutine.
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			s.pump(ctx, conn, sess)
			cancel()
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writerDone:
		case <-time.After(500 * time.Millisecond):
		}
		s.log.Printf("session %s left world %s", sess.id, sess.worldID)
	}
}

func (s *Server) pump(ctx context.Context, conn *websocket.Conn, sess *session) {
	var events <-chan world.EventLetter
	if sess.events != nil {
		events = sess.events.C()
	}
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-sess.conn.C():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "world closed"), time.Now().Add(time.Second))
				return
			}
			if err := writeJSON(conn, updateMsg(sess.worldID, u)); err != nil {
				return
			}
		case l, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := writeJSON(conn, eventMsg(sess.worldID, l)); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil
	}

	var follow *world.BotID
	worldID := hello.WorldID
	if hello.FollowBot != "" {
		id, err := world.ParseBotID(hello.FollowBot)
		if err != nil {
			_ = writeError(conn, protocol.ErrBadRequest, err.Error(), worldID)
			return nil
		}
		follow = &id
		if worldID == "" {
			worldID, _ = s.mgr.BotWorld(id)
		}
	}
	rt, ok := s.mgr.Pick(worldID)
	if !ok {
		_ = writeError(conn, protocol.ErrWorldNotFound, "unknown world "+worldID, worldID)
		return nil
	}
	worldID = rt.Spec.ID

	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	sess := &session{id: uuid.NewString(), worldID: worldID}
	eventsErr := error(nil)
	if hello.Events {
		sess.events, eventsErr = rt.Handle.Listen(ctx)
		if eventsErr != nil && !errors.Is(eventsErr, world.ErrEventsDisabled) {
			code, _ := errorCode(eventsErr)
			_ = writeError(conn, code, eventsErr.Error(), worldID)
			return nil
		}
	}
	sess.conn, err = rt.Handle.Join(ctx, follow)
	if err != nil {
		if sess.events != nil {
			sess.events.Close()
		}
		code, _ := errorCode(err)
		_ = writeError(conn, code, err.Error(), worldID)
		return nil
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		WorldID:         worldID,
		FollowBot:       hello.FollowBot,
		Events:          sess.events != nil,
		WorldManifest:   s.mgr.Manifest(),
	}
	if err := writeJSON(conn, welcome); err != nil {
		sess.close()
		return nil
	}
	if eventsErr != nil {
		// Not fatal: the client still gets updates.
		if err := writeError(conn, protocol.ErrEventsDisabled, eventsErr.Error(), worldID); err != nil {
			sess.close()
			return nil
		}
	}
	return sess
}

func writeError(conn *websocket.Conn, code, message, worldID string) error {
	return writeJSON(conn, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
		WorldID:         worldID,
	})
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
