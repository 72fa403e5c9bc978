// Package redisstore shares session markers between console instances through Redis.
// Markers expire with a key TTL and changes are announced over Pub/Sub.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	consoleerrors "github.com/jrsteele09/device-console/internal/errors"
	"github.com/jrsteele09/device-console/sessions"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	keyPrefix     = "console:session:"
	eventsChannel = "console:session-events"
)

// Store implements sessions.Store on Redis
type Store struct {
	client *redis.Client
	codec  sessions.Codec
	now    func() time.Time
}

var _ sessions.Store = (*Store)(nil)

// New creates a store on an existing client
func New(client *redis.Client, codec sessions.Codec) *Store {
	if codec == nil {
		codec = sessions.JSONCodec{}
	}
	return &Store{client: client, codec: codec, now: time.Now}
}

// Dial connects to addr and checks the connection with PING
func Dial(ctx context.Context, addr, password string, db int, codec sessions.Codec) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "connect to redis at %s", addr)
	}
	return New(client, codec), nil
}

func key(id string) string {
	return keyPrefix + id
}

func (s *Store) Put(ctx context.Context, m *sessions.Marker) error {
	if m == nil || m.ID == "" {
		return fmt.Errorf("sessionID is required")
	}
	ttl := m.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return s.Delete(ctx, m.ID)
	}

	data, err := s.codec.Encode(m)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key(m.ID), data, ttl).Err(); err != nil {
		return errors.Wrapf(err, "store session %s", m.ID)
	}
	s.publish(ctx, sessions.Event{Kind: sessions.EventPut, SessionID: m.ID})
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*sessions.Marker, error) {
	if id == "" {
		return nil, consoleerrors.Wrapf(consoleerrors.ErrSessionNotFound, "empty session id")
	}
	data, err := s.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, consoleerrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load session %s", id)
	}

	m, err := s.codec.Decode(data)
	if err != nil {
		return nil, consoleerrors.Wrapf(consoleerrors.ErrSessionInvalid, "session %s: %v", id, err)
	}
	return m, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	n, err := s.client.Del(ctx, key(id)).Result()
	if err != nil {
		return errors.Wrapf(err, "delete session %s", id)
	}
	if n > 0 {
		s.publish(ctx, sessions.Event{Kind: sessions.EventDelete, SessionID: id})
	}
	return nil
}

// Subscribe listens on the shared events channel, so events from every
// console instance are delivered.
func (s *Store) Subscribe(ctx context.Context) (<-chan sessions.Event, error) {
	ps := s.client.Subscribe(ctx, eventsChannel)
	// Wait for the subscription to be confirmed so no event published after
	// Subscribe returns is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errors.Wrap(err, "subscribe to session events")
	}

	out := make(chan sessions.Event, 32)
	go func() {
		defer close(out)
		defer ps.Close()

		messages := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var e sessions.Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					log.Warn().Err(err).Msg("Ignoring malformed session event")
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) publish(ctx context.Context, e sessions.Event) {
	payload, _ := json.Marshal(e)
	if err := s.client.Publish(ctx, eventsChannel, payload).Err(); err != nil {
		log.Err(err).Str("session_id", e.SessionID).Msg("Failed to publish session event")
	}
}
