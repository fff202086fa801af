// Package server is the websocket gateway: it authenticates connections,
// tracks live sessions and room subscriptions, and fans events out to
// subscribers in arrival order.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chatstack/go-chathub/internal/auth"
	"github.com/chatstack/go-chathub/internal/chat"
	"github.com/chatstack/go-chathub/internal/stats"
)

const authTimeout = 5 * time.Second

// broadcast is one fan-out unit. Events are queued here and delivered by
// the Run loop so every subscriber observes room events in the same order.
type broadcast struct {
	roomId  uuid.UUID
	evt     *ServerEvent
	exclude uuid.UUID
}

type Gateway struct {
	log           *log.Logger
	chat          *chat.Coordinator
	validator     auth.TokenValidator
	registry      *SessionRegistry
	limiter       RateLimiter
	stats         stats.StatsProvider
	upgrader      websocket.Upgrader
	broadcastChan chan *broadcast
	stop          chan struct{}
	done          chan struct{}
}

func NewGateway(logger *log.Logger, coordinator *chat.Coordinator, validator auth.TokenValidator,
	limiter RateLimiter, statsProvider stats.StatsProvider, allowedOrigins []string) *Gateway {
	return &Gateway{
		log:       logger,
		chat:      coordinator,
		validator: validator,
		registry:  NewSessionRegistry(),
		limiter:   limiter,
		stats:     statsProvider,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		broadcastChan: make(chan *broadcast, 512),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// Run delivers queued broadcasts until Shutdown is called. Fan-out runs on
// this single goroutine; per-room ordering follows from queue order.
func (gw *Gateway) Run() {
	defer close(gw.done)

	for {
		select {
		case b := <-gw.broadcastChan:
			gw.deliver(b)
		case <-gw.stop:
			for {
				select {
				case b := <-gw.broadcastChan:
					gw.deliver(b)
				default:
					return
				}
			}
		}
	}
}

func (gw *Gateway) deliver(b *broadcast) {
	for _, userId := range gw.registry.MembersOf(b.roomId) {
		if userId == b.exclude {
			continue
		}

		c, ok := gw.registry.Resolve(userId)
		if !ok {
			continue
		}

		if c.queueEvent(b.evt) && b.evt.Event == NewMessageEvent {
			gw.stats.Incr(stats.MessagesDelivered)
		}
	}
}

func (gw *Gateway) Shutdown() {
	close(gw.stop)
	<-gw.done

	for _, c := range gw.registry.Clients() {
		gw.registry.Unregister(c)
		c.stopClient()
	}
}

// ServeWS upgrades the connection, then authenticates it. A missing or
// invalid token tears the socket down without a close frame so clients
// cannot distinguish an auth failure from a network fault.
func (gw *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := auth.BearerToken(r)

	conn, err := gw.upgrader.Upgrade(w, r, nil)
	if err != nil {
		gw.log.Println("ws upgrade:", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()

	payload, err := gw.validator.Validate(ctx, token)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidToken) {
			gw.stats.Incr(stats.RPCFailures)
		}
		gw.log.Printf("rejecting connection from %s: %v", r.RemoteAddr, err)
		conn.Close()
		return
	}

	userId, err := uuid.Parse(payload.Sub)
	if err != nil {
		gw.log.Printf("rejecting connection from %s: bad subject %q", r.RemoteAddr, payload.Sub)
		conn.Close()
		return
	}

	client := NewClient(userId, payload.Username, conn, gw, gw.log)
	if replaced := gw.registry.Register(client); replaced != nil {
		gw.log.Printf("replacing connection for user %s", userId)
		replaced.stopClient()
	}
	gw.stats.Incr(stats.ActiveConnections)

	client.queueEvent(&ServerEvent{
		Event: ConnectionEvent,
		Data:  ConnectionAck{UserId: userId, Message: "connected"},
	})

	go client.Write()
	client.Read()
}

func (gw *Gateway) dispatch(c *Client, evt *ClientEvent) {
	switch evt.Event {
	case JoinRoomEvent:
		gw.handleJoin(c, evt)
	case LeaveRoomEvent:
		gw.handleLeave(c, evt)
	case MessageEvent:
		gw.handleMessage(c, evt)
	case TypingEvent:
		gw.handleTyping(c, evt)
	default:
		gw.sendError(c, evt.Event, "unknown event")
	}
}

func (gw *Gateway) handleJoin(c *Client, evt *ClientEvent) {
	var req JoinRoomRequest
	if err := json.Unmarshal(evt.Data, &req); err != nil || req.RoomId == uuid.Nil {
		gw.sendError(c, evt.Event, "chatRoomId is required")
		return
	}

	if err := gw.chat.JoinRoom(context.Background(), c.userId, req.RoomId); err != nil {
		gw.failEvent(c, evt.Event, err)
		return
	}

	gw.registry.Subscribe(req.RoomId, c.userId)
	gw.stats.Incr(stats.RoomSubscriptions)

	notice := RoomNotice{RoomId: req.RoomId, UserId: c.userId, Username: c.username}
	c.queueEvent(&ServerEvent{Event: JoinRoomEvent, Data: notice})
	gw.broadcastChan <- &broadcast{
		roomId:  req.RoomId,
		evt:     &ServerEvent{Event: UserJoinedEvent, Data: notice},
		exclude: c.userId,
	}
}

func (gw *Gateway) handleLeave(c *Client, evt *ClientEvent) {
	var req JoinRoomRequest
	if err := json.Unmarshal(evt.Data, &req); err != nil || req.RoomId == uuid.Nil {
		gw.sendError(c, evt.Event, "chatRoomId is required")
		return
	}

	if err := gw.chat.LeaveRoom(context.Background(), c.userId, req.RoomId); err != nil {
		gw.failEvent(c, evt.Event, err)
		return
	}

	notice := RoomNotice{RoomId: req.RoomId, UserId: c.userId, Username: c.username}
	gw.broadcastChan <- &broadcast{
		roomId:  req.RoomId,
		evt:     &ServerEvent{Event: UserLeftEvent, Data: notice},
		exclude: c.userId,
	}

	gw.registry.Unsubscribe(req.RoomId, c.userId)
	gw.stats.Decr(stats.RoomSubscriptions)
	c.queueEvent(&ServerEvent{Event: LeaveRoomEvent, Data: notice})
}

func (gw *Gateway) handleMessage(c *Client, evt *ClientEvent) {
	var req MessageRequest
	if err := json.Unmarshal(evt.Data, &req); err != nil || req.RoomId == uuid.Nil {
		gw.sendError(c, evt.Event, "chatRoomId is required")
		return
	}

	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		gw.sendError(c, evt.Event, "message content is empty")
		return
	}

	ctx := context.Background()
	if !gw.limiter.Allow(ctx, c.userId) {
		gw.sendError(c, evt.Event, "rate limit exceeded")
		return
	}

	msg, err := gw.chat.SendMessage(ctx, c.userId, req.RoomId, req.Content)
	if err != nil {
		gw.failEvent(c, evt.Event, err)
		return
	}
	gw.stats.Incr(stats.MessagesSent)

	// The sender receives the echo through the same broadcast as everyone
	// else, carrying the persisted message id.
	gw.broadcastChan <- &broadcast{
		roomId: req.RoomId,
		evt:    &ServerEvent{Event: NewMessageEvent, Data: msg},
	}
}

func (gw *Gateway) handleTyping(c *Client, evt *ClientEvent) {
	var req TypingRequest
	if err := json.Unmarshal(evt.Data, &req); err != nil || req.RoomId == uuid.Nil {
		gw.sendError(c, evt.Event, "chatRoomId is required")
		return
	}

	gw.broadcastChan <- &broadcast{
		roomId: req.RoomId,
		evt: &ServerEvent{Event: UserTypingEvent, Data: TypingNotice{
			RoomId:   req.RoomId,
			UserId:   c.userId,
			Username: c.username,
			IsTyping: req.IsTyping,
		}},
		exclude: c.userId,
	}
}

// disconnect is invoked by the read pump when a connection dies for any
// reason. Unregister is identity checked, so a stale connection that was
// already replaced does not evict its successor.
func (gw *Gateway) disconnect(c *Client) {
	if current, ok := gw.registry.Resolve(c.userId); ok && current == c {
		gw.registry.Unregister(c)
		gw.stats.Decr(stats.ActiveConnections)
	}
	c.stopClient()
}

func (gw *Gateway) sendError(c *Client, event, message string) {
	c.queueEvent(&ServerEvent{
		Event: ErrorEvent,
		Data:  ErrorPayload{Event: event, Message: message},
	})
}

// failEvent reports a failed operation to the client. Domain errors pass
// through verbatim; anything else is reported generically and logged
// server side only.
func (gw *Gateway) failEvent(c *Client, event string, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound),
		errors.Is(err, chat.ErrConflict),
		errors.Is(err, chat.ErrForbidden),
		errors.Is(err, chat.ErrUnauthorized):
		gw.sendError(c, event, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		gw.sendError(c, event, "request timed out")
	default:
		gw.log.Printf("%s failed for user %s: %v", event, c.userId, err)
		gw.sendError(c, event, "internal server error")
	}
}
