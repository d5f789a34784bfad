// Package relay carries session traffic over WebSockets. The server assigns
// actor ids, announces membership and forwards envelopes between the peers
// of a room without looking inside them.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cfoust/dodgeball/pkg/protocol"

	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
)

const (
	CLIENT_MESSAGE_LIMIT int = 256
	DefaultRoom              = "default"
	writeTimeout             = 5 * time.Second
)

type Settings struct {
	// Messages per second a single peer may send, with bursts up to Burst.
	// Reading from a peer pauses while it is over the limit.
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

type peer struct {
	join      protocol.Join
	send      chan []byte
	closeSlow func()
	limiter   *rate.Limiter
}

type room struct {
	name    string
	peers   map[protocol.ActorID]*peer
	order   []protocol.ActorID
	next    protocol.ActorID
	created time.Time
}

type Server struct {
	settings   Settings
	mutex      deadlock.Mutex
	rooms      map[string]*room
	httpServer *http.Server
}

func NewServer(settings Settings) *Server {
	return &Server{
		settings: settings,
		rooms:    make(map[string]*room),
	}
}

func WriteTimeout(ctx context.Context, timeout time.Duration, c *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Write(ctx, websocket.MessageBinary, msg)
}

func encode(from, to protocol.ActorID, msg protocol.Message) []byte {
	env, err := protocol.Wrap(from, to, msg)
	if err != nil {
		return nil
	}
	bytes, err := protocol.Marshal(env)
	if err != nil {
		return nil
	}
	return bytes
}

// enqueue hands bytes to a peer's writer. Peers that cannot keep up are
// disconnected. Callers hold the server lock.
func (p *peer) enqueue(bytes []byte) {
	select {
	case p.send <- bytes:
	default:
		go p.closeSlow()
	}
}

// join adds a peer to a room, creating the room if needed. The newcomer is
// welcomed and told about every member, itself last; everyone else learns
// about the newcomer.
func (s *Server) join(roomName, name, character string, p *peer) protocol.ActorID {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	r, ok := s.rooms[roomName]
	if !ok {
		r = &room{
			name:    roomName,
			peers:   make(map[protocol.ActorID]*peer),
			next:    1,
			created: time.Now(),
		}
		s.rooms[roomName] = r
		log.Info().Str("room", roomName).Msg("room created")
	}

	actor := r.next
	r.next++

	p.join = protocol.Join{
		Actor:     actor,
		Name:      name,
		Character: character,
	}
	r.peers[actor] = p
	r.order = append(r.order, actor)

	p.enqueue(encode(protocol.NoActor, actor, protocol.Welcome{
		Actor: actor,
		Room:  roomName,
	}))

	announce := encode(actor, protocol.NoActor, p.join)
	for _, id := range r.order {
		member := r.peers[id]
		if id == actor {
			continue
		}
		p.enqueue(encode(id, actor, member.join))
		member.enqueue(announce)
	}
	p.enqueue(announce)

	return actor
}

func (s *Server) leave(roomName string, actor protocol.ActorID) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	r, ok := s.rooms[roomName]
	if !ok {
		return
	}

	delete(r.peers, actor)
	for i, id := range r.order {
		if id == actor {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if len(r.order) == 0 {
		delete(s.rooms, roomName)
		log.Info().
			Str("room", roomName).
			Dur("age", time.Since(r.created)).
			Msg("room closed")
		return
	}

	bytes := encode(actor, protocol.NoActor, protocol.Leave{Actor: actor})
	for _, id := range r.order {
		r.peers[id].enqueue(bytes)
	}
}

// route forwards an envelope from one peer. The sender cannot be spoofed and
// broadcasts never return to their sender.
func (s *Server) route(roomName string, from protocol.ActorID, env protocol.Envelope) error {
	env.From = from
	bytes, err := protocol.Marshal(env)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	r, ok := s.rooms[roomName]
	if !ok {
		return fmt.Errorf("room %s is gone", roomName)
	}

	if env.To != protocol.NoActor {
		target, ok := r.peers[env.To]
		if !ok {
			return nil
		}
		target.enqueue(bytes)
		return nil
	}

	for _, id := range r.order {
		if id == from {
			continue
		}
		r.peers[id].enqueue(bytes)
	}
	return nil
}

// Members returns the actors connected to a room in join order.
func (s *Server) Members(roomName string) []protocol.ActorID {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	r, ok := s.rooms[roomName]
	if !ok {
		return nil
	}
	return append([]protocol.ActorID(nil), r.order...)
}

func (s *Server) HandleClient(ctx context.Context, c *websocket.Conn, roomName, name, character string) error {
	p := &peer{
		send: make(chan []byte, CLIENT_MESSAGE_LIMIT),
		closeSlow: func() {
			c.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with messages")
		},
		limiter: rate.NewLimiter(rate.Limit(s.settings.Rate), s.settings.Burst),
	}
	switch {
	case s.settings.Rate <= 0:
		p.limiter = rate.NewLimiter(rate.Inf, 0)
	case s.settings.Burst < 1:
		p.limiter = rate.NewLimiter(rate.Limit(s.settings.Rate), 1)
	}

	actor := s.join(roomName, name, character, p)
	defer s.leave(roomName, actor)

	logger := log.With().
		Str("room", roomName).
		Int32("actor", int32(actor)).
		Logger()
	logger.Info().Str("name", name).Msg("peer joined")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		defer cancel()
		for {
			typ, message, err := c.Read(ctx)
			if err != nil {
				return
			}
			if typ != websocket.MessageBinary {
				continue
			}

			env, err := protocol.Unmarshal(message)
			if err != nil {
				logger.Warn().Err(err).Msg("malformed envelope")
				continue
			}

			// Peers over their rate are slowed down, never dropped from.
			if err := p.limiter.Wait(ctx); err != nil {
				return
			}

			if err := s.route(roomName, actor, env); err != nil {
				logger.Error().Err(err).Msg("could not route envelope")
				return
			}
		}
	}()

	for {
		select {
		case msg := <-p.send:
			if err := WriteTimeout(ctx, writeTimeout, c, msg); err != nil {
				logger.Error().Err(err).Msg("peer missed write timeout; disconnecting")
				return err
			}
		case <-ctx.Done():
			logger.Info().Msg("peer left")
			return ctx.Err()
		}
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error().Err(err).Msg("error accepting peer connection")
		return
	}
	defer c.Close(websocket.StatusInternalError, "operational fault during relay")

	query := r.URL.Query()
	roomName := query.Get("room")
	if roomName == "" {
		roomName = DefaultRoom
	}

	err = s.HandleClient(r.Context(), c, roomName, query.Get("name"), query.Get("character"))
	if errors.Is(err, context.Canceled) {
		return
	}
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
		websocket.CloseStatus(err) == websocket.StatusGoingAway {
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("peer connection failed")
	}
}

func (s *Server) Serve(ctx context.Context, address string) error {
	listen, err := net.Listen("tcp", address)
	if err != nil {
		log.Error().Err(err).Msg("failed to bind WebSocket port")
		return err
	}

	log.Info().Msgf("listening on ws://%v", listen.Addr())

	s.httpServer = &http.Server{
		Handler: s,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	return s.httpServer.Serve(listen)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
