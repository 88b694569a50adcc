package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"sokol-alert/core/utils"
)

type Step string

const (
	StepDescription Step = "awaiting_description"
	StepPlace       Step = "awaiting_place"
	StepPhoto       Step = "awaiting_photo"
)

// Draft is the incident under construction during an authoring session.
type Draft struct {
	Description string
	Place       string
	PhotoFileID string
}

type session struct {
	Step  Step
	Draft Draft
}

type InputKind int

const (
	InputText InputKind = iota
	InputLocation
	InputPhoto
	InputSkip
)

// SessionInput is one decoded authoring event. The dispatch layer
// classifies raw updates into these before they reach the tracker.
type SessionInput struct {
	Kind        InputKind
	Text        string
	Lat         float64
	Lon         float64
	PhotoFileID string
}

// AdvanceResult carries the reply to show the author and, on the final
// step, the completed draft.
type AdvanceResult struct {
	Reply     string
	Completed bool
	Draft     Draft
}

// Tracker drives the description -> place -> photo authoring flow.
// Sessions are process-local and expire after the configured idle TTL,
// dropping the draft; the author has to start over.
type Tracker struct {
	cache  *gocache.Cache
	locks  *keyedMutex
	logger *utils.Logger
	lang   string
}

func NewTracker(idleTTL time.Duration, logger *utils.Logger) *Tracker {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &Tracker{
		cache:  gocache.New(idleTTL, 5*time.Minute),
		locks:  newKeyedMutex(),
		logger: logger,
		lang:   "ru",
	}
}

func key(userID int64) string {
	return fmt.Sprintf("%d", userID)
}

// Begin opens a session at the description step, replacing any
// in-flight session for the same author.
func (t *Tracker) Begin(userID int64) string {
	unlock := t.locks.Lock(userID)
	defer unlock()
	t.cache.SetDefault(key(userID), &session{Step: StepDescription})
	return text(t.lang, "alert.session.description")
}

// Active reports whether the author has an open session.
func (t *Tracker) Active(userID int64) bool {
	_, ok := t.cache.Get(key(userID))
	return ok
}

// Cancel drops the author's session if one exists.
func (t *Tracker) Cancel(userID int64) string {
	unlock := t.locks.Lock(userID)
	defer unlock()
	t.cache.Delete(key(userID))
	return text(t.lang, "alert.session.cancelled")
}

// Advance consumes one input. Inputs from the same author are
// serialized in receipt order; distinct authors never contend.
func (t *Tracker) Advance(_ context.Context, userID int64, input SessionInput) (AdvanceResult, bool) {
	unlock := t.locks.Lock(userID)
	defer unlock()
	raw, ok := t.cache.Get(key(userID))
	if !ok {
		return AdvanceResult{}, false
	}
	s := raw.(*session)
	switch s.Step {
	case StepDescription:
		desc := strings.TrimSpace(input.Text)
		if input.Kind != InputText || desc == "" {
			return AdvanceResult{Reply: text(t.lang, "alert.session.emptyDesc")}, true
		}
		s.Draft.Description = desc
		s.Step = StepPlace
		t.cache.SetDefault(key(userID), s)
		return AdvanceResult{Reply: text(t.lang, "alert.session.place")}, true
	case StepPlace:
		switch input.Kind {
		case InputLocation:
			s.Draft.Place = fmt.Sprintf("%.6f, %.6f", input.Lat, input.Lon)
		case InputSkip:
			s.Draft.Place = ""
		case InputText:
			s.Draft.Place = strings.TrimSpace(input.Text)
		default:
			return AdvanceResult{Reply: text(t.lang, "alert.session.place")}, true
		}
		s.Step = StepPhoto
		t.cache.SetDefault(key(userID), s)
		return AdvanceResult{Reply: text(t.lang, "alert.session.photo")}, true
	case StepPhoto:
		switch input.Kind {
		case InputPhoto:
			s.Draft.PhotoFileID = input.PhotoFileID
		case InputSkip:
			s.Draft.PhotoFileID = ""
		default:
			return AdvanceResult{Reply: text(t.lang, "alert.session.badPhoto")}, true
		}
		draft := s.Draft
		t.cache.Delete(key(userID))
		return AdvanceResult{Completed: true, Draft: draft}, true
	}
	// Unknown step left over from an old process image; drop it.
	if t.logger != nil {
		t.logger.Errorf("session for user %d in unknown step %q, dropping", userID, s.Step)
	}
	t.cache.Delete(key(userID))
	return AdvanceResult{}, false
}
