package selector

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"

	"moodreply/app/label"
	"moodreply/app/service/conversation"
	"moodreply/app/service/template"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
)

// Picker chooses an index in [0, n). *rand.Rand satisfies it.
type Picker interface {
	IntN(n int) int
}

type Reply struct {
	Text    string        `json:"reply"`
	Emotion label.Emotion `json:"emotion"`
	Intent  label.Intent  `json:"intent"`
	Turn    int           `json:"turn"`
	Key     string        `json:"template"`
}

type Stats struct {
	Turns           int64 `json:"turns"`
	UnknownEmotions int64 `json:"unknown_emotions"`
	UnknownIntents  int64 `json:"unknown_intents"`
	GlobalFallbacks int64 `json:"global_fallbacks"`
}

type Selector struct {
	store  *template.Store
	labels *label.Set

	turns           atomic.Int64
	unknownEmotions atomic.Int64
	unknownIntents  atomic.Int64
	globalFallbacks atomic.Int64
}

func New(di *do.Injector) (*Selector, error) {
	return NewSelector(
		do.MustInvoke[*template.Store](di),
		do.MustInvoke[*label.Set](di),
	), nil
}

func NewSelector(store *template.Store, labels *label.Set) *Selector {
	return &Selector{
		store:  store,
		labels: labels,
	}
}

// Respond advances state with the classifier output and picks a reply.
// Recently used replies are skipped unless nothing else is left. It never
// fails for unknown labels; an empty candidate list means the store was not
// loaded through template.Load and panics.
func (s *Selector) Respond(
	state *conversation.State,
	picker Picker,
	rawEmotion label.Emotion,
	rawIntent label.Intent,
) Reply {
	s.countUnknown(rawEmotion, rawIntent)

	emotion, intent := state.Advance(rawEmotion, rawIntent)

	key, candidates := s.store.Resolve(emotion, intent)
	if len(candidates) == 0 {
		panic(fmt.Sprintf("no reply candidates for %s: template store is misconfigured", key))
	}
	if key == template.GlobalKey {
		s.globalFallbacks.Add(1)
	}

	fresh := pie.Filter(candidates, func(text string) bool {
		return !state.WasRecentlyUsed(text)
	})
	if len(fresh) == 0 {
		fresh = candidates
	}

	text := fresh[pick(picker, len(fresh))]
	state.RememberReply(text)
	s.turns.Add(1)

	slog.Debug("Reply selected",
		"raw_emotion", rawEmotion,
		"emotion", emotion,
		"intent", intent,
		"template", key.String(),
		"candidates", len(fresh),
		"turn", state.TurnCount())

	return Reply{
		Text:    text,
		Emotion: emotion,
		Intent:  intent,
		Turn:    state.TurnCount(),
		Key:     key.String(),
	}
}

func (s *Selector) Stats() Stats {
	return Stats{
		Turns:           s.turns.Load(),
		UnknownEmotions: s.unknownEmotions.Load(),
		UnknownIntents:  s.unknownIntents.Load(),
		GlobalFallbacks: s.globalFallbacks.Load(),
	}
}

func (s *Selector) countUnknown(emotion label.Emotion, intent label.Intent) {
	if !s.labels.HasEmotion(emotion) {
		s.unknownEmotions.Add(1)
		slog.Debug("Unknown emotion label", "emotion", emotion)
	}

	if !s.labels.HasIntent(intent) {
		s.unknownIntents.Add(1)
		slog.Debug("Unknown intent label", "intent", intent)
	}
}

func pick(picker Picker, n int) int {
	if n == 1 {
		return 0
	}
	if picker == nil {
		return rand.IntN(n)
	}
	return picker.IntN(n)
}
