package relay

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/cfoust/dodgeball/pkg/protocol"
	"github.com/cfoust/dodgeball/pkg/session"
	"github.com/cfoust/dodgeball/pkg/utils"

	"github.com/rs/zerolog"
	"github.com/sasha-s/go-deadlock"
	"nhooyr.io/websocket"
)

var ErrNoWelcome = errors.New("relay did not welcome us")

// Client is a session.Transport backed by a relay connection.
type Client struct {
	utils.Session

	conn   *websocket.Conn
	actor  protocol.ActorID
	room   string
	logger zerolog.Logger

	mutex   deadlock.Mutex
	inbox   []protocol.Envelope
	err     error
	closing bool
}

var _ session.Transport = (*Client)(nil)

// Dial connects to a relay and joins a room. It returns once the relay has
// assigned an actor id and listed the room's members, so the caller knows
// who is present before its first tick.
func Dial(ctx context.Context, address, room, name, character string) (*Client, error) {
	target, err := url.Parse(address)
	if err != nil {
		return nil, err
	}
	query := target.Query()
	query.Set("room", room)
	query.Set("name", name)
	query.Set("character", character)
	target.RawQuery = query.Encode()

	conn, _, err := websocket.Dial(ctx, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("could not reach relay: %w", err)
	}

	client := &Client{
		Session: utils.NewSession(context.Background()),
		conn:    conn,
		room:    room,
		logger:  zerolog.Ctx(ctx).With().Str("room", room).Logger(),
	}

	if err := client.handshake(ctx); err != nil {
		conn.Close(websocket.StatusNormalClosure, "")
		client.Cancel()
		return nil, err
	}

	client.logger = client.logger.With().
		Int32("actor", int32(client.actor)).
		Logger()

	go client.poll()
	return client, nil
}

func (c *Client) read(ctx context.Context) (protocol.Envelope, error) {
	for {
		typ, message, err := c.conn.Read(ctx)
		if err != nil {
			return protocol.Envelope{}, err
		}
		if typ != websocket.MessageBinary {
			continue
		}

		env, err := protocol.Unmarshal(message)
		if err != nil {
			c.logger.Warn().Err(err).Msg("malformed envelope from relay")
			continue
		}
		return env, nil
	}
}

func (c *Client) handshake(ctx context.Context) error {
	env, err := c.read(ctx)
	if err != nil {
		return err
	}
	if env.Op != protocol.WelcomeOp {
		return ErrNoWelcome
	}
	msg, err := env.Open()
	if err != nil {
		return err
	}
	c.actor = msg.(*protocol.Welcome).Actor

	// Our own Join comes after everyone who was already there.
	for {
		env, err := c.read(ctx)
		if err != nil {
			return err
		}
		c.inbox = append(c.inbox, env)

		if env.Op != protocol.JoinOp {
			continue
		}
		msg, err := env.Open()
		if err != nil {
			return err
		}
		if msg.(*protocol.Join).Actor == c.actor {
			return nil
		}
	}
}

func (c *Client) poll() {
	for {
		env, err := c.read(c.Ctx())
		if err != nil {
			c.mutex.Lock()
			c.err = err
			closing := c.closing
			c.mutex.Unlock()
			if !closing {
				c.logger.Warn().Err(err).Msg("lost connection to relay")
			}
			c.Cancel()
			return
		}

		c.mutex.Lock()
		c.inbox = append(c.inbox, env)
		c.mutex.Unlock()
	}
}

func (c *Client) Actor() protocol.ActorID {
	return c.actor
}

func (c *Client) Room() string {
	return c.room
}

// Err returns why the connection ended, if it has.
func (c *Client) Err() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.err
}

func (c *Client) Send(env protocol.Envelope) error {
	if c.IsDone() {
		return session.ErrClosed
	}

	env.From = c.actor
	bytes, err := protocol.Marshal(env)
	if err != nil {
		return err
	}
	return WriteTimeout(c.Ctx(), writeTimeout, c.conn, bytes)
}

func (c *Client) Poll() []protocol.Envelope {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	inbox := c.inbox
	c.inbox = nil
	return inbox
}

func (c *Client) Close() error {
	c.mutex.Lock()
	if c.closing {
		c.mutex.Unlock()
		return nil
	}
	c.closing = true
	c.mutex.Unlock()

	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.Cancel()
	return err
}
