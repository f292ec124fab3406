// Package label holds the emotion and intent vocabularies shared by the
// template store, the conversation state and the selector.
package label

import (
	"errors"
	"strings"

	"moodreply/app/config"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
	"github.com/samber/oops"
)

// ErrConfig marks malformed or incomplete responder configuration.
var ErrConfig = errors.New("config error")

type Emotion string

type Intent string

const (
	Wildcard = "*"
	Neutral  = Emotion("neutral")
)

// Set is the configured vocabulary. An axis with no configured labels is open
// and accepts anything.
type Set struct {
	emotions map[Emotion]struct{}
	intents  map[Intent]struct{}
}

// NewSet builds a label set. Neutral is always part of a closed emotion axis
// because it is the state every session starts in.
func NewSet(emotions, intents []string) (*Set, error) {
	s := &Set{}

	if len(emotions) > 0 {
		s.emotions = map[Emotion]struct{}{Neutral: {}}
		for _, e := range emotions {
			e = strings.TrimSpace(e)
			if e == "" || e == Wildcard {
				return nil, ConfigErrorf("invalid emotion label %q", e)
			}
			s.emotions[Emotion(e)] = struct{}{}
		}
	}

	if len(intents) > 0 {
		s.intents = map[Intent]struct{}{}
		for _, i := range intents {
			i = strings.TrimSpace(i)
			if i == "" || i == Wildcard {
				return nil, ConfigErrorf("invalid intent label %q", i)
			}
			s.intents[Intent(i)] = struct{}{}
		}
	}

	return s, nil
}

func (s *Set) EmotionsClosed() bool {
	return s != nil && s.emotions != nil
}

func (s *Set) IntentsClosed() bool {
	return s != nil && s.intents != nil
}

// HasEmotion reports whether e is a known emotion. The wildcard is a template
// key token, never a label.
func (s *Set) HasEmotion(e Emotion) bool {
	if e == Wildcard {
		return false
	}
	if !s.EmotionsClosed() {
		return true
	}
	_, ok := s.emotions[e]
	return ok
}

func (s *Set) HasIntent(i Intent) bool {
	if i == Wildcard {
		return false
	}
	if !s.IntentsClosed() {
		return true
	}
	_, ok := s.intents[i]
	return ok
}

// Emotions returns the configured emotions in alphabetical order.
func (s *Set) Emotions() []Emotion {
	if !s.EmotionsClosed() {
		return nil
	}
	return pie.Sort(pie.Keys(s.emotions))
}

// Intents returns the configured intents in alphabetical order.
func (s *Set) Intents() []Intent {
	if !s.IntentsClosed() {
		return nil
	}
	return pie.Sort(pie.Keys(s.intents))
}

// ConfigErrorf builds an error that matches ErrConfig.
func ConfigErrorf(format string, args ...any) error {
	return oops.
		Code("config_error").
		In("responder").
		Wrapf(ErrConfig, format, args...)
}

func New(di *do.Injector) (*Set, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewSet(cfg.Responder.Emotions, cfg.Responder.Intents)
}
