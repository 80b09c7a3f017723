// Package scoring derives experience points and levels from attendance and
// club membership. Scores are never stored.
package scoring

import (
	"context"

	"campusconnect/internal/docstore"
	"campusconnect/internal/models"
)

const (
	xpPerEvent    = 10
	xpPerClub     = 20
	xpPerPractice = 5
	xpPerLevel    = 50
)

type Score struct {
	XP               int `json:"xp"`
	Level            int `json:"level"`
	NextLevelXP      int `json:"nextLevelXp"`
	EventsAttended   int `json:"eventsAttended"`
	ClubsJoined      int `json:"clubsJoined"`
	PracticeAttended int `json:"practiceAttended"`
}

// FromCounts applies the xp and level formula.
func FromCounts(events, clubs, practice int) Score {
	xp := xpPerEvent*events + xpPerClub*clubs + xpPerPractice*practice
	level := xp/xpPerLevel + 1
	return Score{
		XP:               xp,
		Level:            level,
		NextLevelXP:      level * xpPerLevel,
		EventsAttended:   events,
		ClubsJoined:      clubs,
		PracticeAttended: practice,
	}
}

type Scorer struct {
	store *docstore.Store
}

func New(store *docstore.Store) *Scorer {
	return &Scorer{store: store}
}

// Compute counts userID's event records (pending or approved), club
// memberships and practice check-ins in the current store.
func (s *Scorer) Compute(ctx context.Context, userID string) (Score, error) {
	events, err := docstore.Load[models.Event](ctx, s.store, docstore.Events)
	if err != nil {
		return Score{}, err
	}
	clubs, err := docstore.Load[models.Club](ctx, s.store, docstore.Clubs)
	if err != nil {
		return Score{}, err
	}
	sessions, err := docstore.Load[models.PracticeSession](ctx, s.store, docstore.PracticeSessions)
	if err != nil {
		return Score{}, err
	}

	var nEvents, nClubs, nPractice int
	for i := range events {
		if events[i].Attendee(userID) >= 0 {
			nEvents++
		}
	}
	for _, c := range clubs {
		if c.HasMember(userID) {
			nClubs++
		}
	}
	for i := range sessions {
		if sessions[i].Attended(userID) {
			nPractice++
		}
	}
	return FromCounts(nEvents, nClubs, nPractice), nil
}
