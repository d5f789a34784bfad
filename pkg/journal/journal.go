// Package journal keeps a record of what happened to the balls during a
// match: throws, hits, catches, penalties and resets.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/cfoust/dodgeball/pkg/lifecycle"
	"github.com/cfoust/dodgeball/pkg/protocol"
	"github.com/cfoust/dodgeball/pkg/utils"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Entity struct {
	ID uint `gorm:"primaryKey"`
}

// One participant's view of one session.
type Match struct {
	Entity

	Room    string `gorm:"size:64"`
	Actor   int32
	Started time.Time

	Events []*Event
}

type Event struct {
	Entity

	MatchID  uint   `gorm:"not null;index"`
	Kind     string `gorm:"not null;size:24"`
	Ball     uint32
	Actor    int32
	Attacker int32
	Damage   int
	Reason   string `gorm:"size:16"`
	X        float64
	Y        float64
	Z        float64
	// Session time of the event.
	At time.Duration
}

// Kinds that are worth keeping. Everything else is cosmetic or too
// frequent.
var recorded = map[lifecycle.EventKind]struct{}{
	lifecycle.EventSpawned:         {},
	lifecycle.EventDiscoveryFailed: {},
	lifecycle.EventThrown:          {},
	lifecycle.EventCaught:          {},
	lifecycle.EventHit:             {},
	lifecycle.EventPenalty:         {},
	lifecycle.EventReset:           {},
	lifecycle.EventDamaged:         {},
}

type Journal struct {
	db    *gorm.DB
	match *Match
}

func InitDB(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Match{}, &Event{}); err != nil {
		return nil, err
	}

	return db, nil
}

func Open(path string) (*Journal, error) {
	db, err := InitDB(path)
	if err != nil {
		return nil, fmt.Errorf("could not open journal %s: %w", path, err)
	}
	return &Journal{db: db}, nil
}

// Begin starts a new match. Events recorded afterwards belong to it.
func (j *Journal) Begin(room string, actor protocol.ActorID) (*Match, error) {
	match := &Match{
		Room:    room,
		Actor:   int32(actor),
		Started: time.Now(),
	}
	if err := j.db.Create(match).Error; err != nil {
		return nil, err
	}
	j.match = match
	return match, nil
}

// Record stores an event if it is one worth keeping.
func (j *Journal) Record(event lifecycle.Event) error {
	if j.match == nil {
		return fmt.Errorf("no match in progress")
	}
	if _, ok := recorded[event.Kind]; !ok {
		return nil
	}

	reason := ""
	if event.Kind == lifecycle.EventHit ||
		event.Kind == lifecycle.EventPenalty ||
		event.Kind == lifecycle.EventDamaged {
		reason = event.Reason.String()
	}

	return j.db.Create(&Event{
		MatchID:  j.match.ID,
		Kind:     event.Kind.String(),
		Ball:     uint32(event.Handle),
		Actor:    int32(event.Actor),
		Attacker: int32(event.Attacker),
		Damage:   event.Damage,
		Reason:   reason,
		X:        event.Position.X(),
		Y:        event.Position.Y(),
		Z:        event.Position.Z(),
		At:       event.At,
	}).Error
}

// Follow records everything published on a subscription until ctx is done.
func (j *Journal) Follow(ctx context.Context, events *utils.Subscriber[lifecycle.Event]) {
	defer events.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events.Recv():
			if err := j.Record(event); err != nil {
				log.Error().Err(err).Str("event", event.Kind.String()).Msg("could not record event")
			}
		}
	}
}

func (j *Journal) Events(match *Match) ([]Event, error) {
	var events []Event
	err := j.db.
		Where("match_id = ?", match.ID).
		Order("id").
		Find(&events).
		Error
	return events, err
}

// Summary counts the events of each kind in a match.
func (j *Journal) Summary(match *Match) (map[string]int, error) {
	var rows []struct {
		Kind  string
		Count int
	}
	err := j.db.
		Model(&Event{}).
		Select("kind, count(*) as count").
		Where("match_id = ?", match.ID).
		Group("kind").
		Scan(&rows).
		Error
	if err != nil {
		return nil, err
	}

	summary := make(map[string]int, len(rows))
	for _, row := range rows {
		summary[row.Kind] = row.Count
	}
	return summary, nil
}

func (j *Journal) Close() error {
	db, err := j.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
