// Package redisbus runs a session over Redis pub/sub instead of a relay.
// Actor ids come from a counter, membership lives in a hash and every peer
// listens on a room channel plus one of its own.
package redisbus

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/cfoust/dodgeball/pkg/protocol"
	"github.com/cfoust/dodgeball/pkg/session"
	"github.com/cfoust/dodgeball/pkg/utils"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-redis/redis/v9"
	"github.com/rs/zerolog"
	"github.com/sasha-s/go-deadlock"
)

type Settings struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// Prefix for every key and channel.
	Namespace string `yaml:"namespace"`
}

type Transport struct {
	utils.Session

	client *redis.Client
	pubsub *redis.PubSub
	keys   keys
	actor  protocol.ActorID
	logger zerolog.Logger

	mutex deadlock.Mutex
	inbox []protocol.Envelope
}

var _ session.Transport = (*Transport)(nil)

type keys struct {
	counter string
	members string
	all     string
	prefix  string
}

func keysFor(namespace, room string) keys {
	if namespace == "" {
		namespace = "dodgeball"
	}
	prefix := fmt.Sprintf("%s:%s", namespace, room)
	return keys{
		counter: prefix + ":actors",
		members: prefix + ":members",
		all:     prefix + ":all",
		prefix:  prefix,
	}
}

func (k keys) actor(id protocol.ActorID) string {
	return fmt.Sprintf("%s:actor:%d", k.prefix, id)
}

// Connect joins a room. Like a relay connection it returns with the current
// members, and then ourselves, already queued as Joins.
func Connect(ctx context.Context, settings Settings, room, name, character string) (*Transport, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     settings.Address,
		Password: settings.Password,
		DB:       settings.DB,
	})

	t := &Transport{
		Session: utils.NewSession(context.Background()),
		client:  client,
		keys:    keysFor(settings.Namespace, room),
	}

	if err := t.join(ctx, name, character); err != nil {
		t.Cancel()
		client.Close()
		return nil, err
	}

	t.logger = zerolog.Ctx(ctx).With().
		Str("room", room).
		Int32("actor", int32(t.actor)).
		Logger()

	go t.receive()
	return t, nil
}

func (t *Transport) join(ctx context.Context, name, character string) error {
	id, err := t.client.Incr(ctx, t.keys.counter).Result()
	if err != nil {
		return fmt.Errorf("could not allocate actor: %w", err)
	}
	t.actor = protocol.ActorID(id)

	// Listen before announcing so nothing sent to us is missed.
	t.pubsub = t.client.Subscribe(ctx, t.keys.all, t.keys.actor(t.actor))
	if _, err := t.pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("could not subscribe: %w", err)
	}

	members, err := t.client.HGetAll(ctx, t.keys.members).Result()
	if err != nil {
		return fmt.Errorf("could not list members: %w", err)
	}

	var joins []protocol.Join
	for _, value := range members {
		var join protocol.Join
		if err := cbor.Unmarshal([]byte(value), &join); err != nil {
			continue
		}
		joins = append(joins, join)
	}
	sort.Slice(joins, func(i, j int) bool {
		return joins[i].Actor < joins[j].Actor
	})

	self := protocol.Join{
		Actor:     t.actor,
		Name:      name,
		Character: character,
	}
	joins = append(joins, self)

	for _, join := range joins {
		env, err := protocol.Wrap(join.Actor, t.actor, join)
		if err != nil {
			return err
		}
		t.inbox = append(t.inbox, env)
	}

	encoded, err := cbor.Marshal(self)
	if err != nil {
		return err
	}
	field := strconv.Itoa(int(t.actor))
	if err := t.client.HSet(ctx, t.keys.members, field, encoded).Err(); err != nil {
		return fmt.Errorf("could not register: %w", err)
	}

	env, err := protocol.Wrap(t.actor, protocol.NoActor, self)
	if err != nil {
		return err
	}
	return t.publish(ctx, env)
}

func (t *Transport) publish(ctx context.Context, env protocol.Envelope) error {
	bytes, err := protocol.Marshal(env)
	if err != nil {
		return err
	}

	channel := t.keys.all
	if env.To != protocol.NoActor {
		channel = t.keys.actor(env.To)
	}
	return t.client.Publish(ctx, channel, bytes).Err()
}

func (t *Transport) receive() {
	channel := t.pubsub.Channel()
	for {
		select {
		case <-t.Ctx().Done():
			return
		case msg, ok := <-channel:
			if !ok {
				return
			}

			env, err := protocol.Unmarshal([]byte(msg.Payload))
			if err != nil {
				t.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("malformed envelope")
				continue
			}
			// Redis hands our own broadcasts back to us.
			if env.From == t.actor {
				continue
			}

			t.mutex.Lock()
			t.inbox = append(t.inbox, env)
			t.mutex.Unlock()
		}
	}
}

func (t *Transport) Actor() protocol.ActorID {
	return t.actor
}

func (t *Transport) Send(env protocol.Envelope) error {
	if t.IsDone() {
		return session.ErrClosed
	}
	env.From = t.actor
	return t.publish(t.Ctx(), env)
}

func (t *Transport) Poll() []protocol.Envelope {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	inbox := t.inbox
	t.inbox = nil
	return inbox
}

// Close leaves the room and tells the others.
func (t *Transport) Close() error {
	if t.IsDone() {
		return nil
	}

	ctx := context.Background()
	field := strconv.Itoa(int(t.actor))
	if err := t.client.HDel(ctx, t.keys.members, field).Err(); err != nil {
		t.logger.Warn().Err(err).Msg("could not deregister")
	}

	if env, err := protocol.Wrap(t.actor, protocol.NoActor, protocol.Leave{Actor: t.actor}); err == nil {
		if err := t.publish(ctx, env); err != nil {
			t.logger.Warn().Err(err).Msg("could not announce leave")
		}
	}

	t.Cancel()
	t.pubsub.Close()
	return t.client.Close()
}
