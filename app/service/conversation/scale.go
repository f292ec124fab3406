package conversation

import (
	"log/slog"
	"sort"
	"strings"

	"moodreply/app/config"
	"moodreply/app/label"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
)

// Scale maps emotions to ordinal valence levels. Emotions missing from the
// table sit at level 0.
type Scale struct {
	valence map[label.Emotion]int
	levels  []int
	byLevel map[int][]label.Emotion
}

func New(di *do.Injector) (*Scale, error) {
	cfg := do.MustInvoke[*config.Config](di)
	labels := do.MustInvoke[*label.Set](di)

	scale, err := NewScale(cfg.Responder.Valence, labels)
	if err != nil {
		return nil, err
	}

	slog.Info("Valence scale loaded", "levels", scale.levels)

	return scale, nil
}

func NewScale(table map[string]int, labels *label.Set) (*Scale, error) {
	s := &Scale{
		valence: make(map[label.Emotion]int, len(table)),
		byLevel: make(map[int][]label.Emotion),
	}

	for raw, level := range table {
		name := strings.TrimSpace(raw)
		if name == "" || name == label.Wildcard {
			return nil, label.ConfigErrorf("invalid valence label %q", raw)
		}

		emotion := label.Emotion(name)
		if !labels.HasEmotion(emotion) {
			return nil, label.ConfigErrorf("valence table uses unknown emotion %q", name)
		}
		if _, exists := s.valence[emotion]; exists {
			return nil, label.ConfigErrorf("duplicate valence label %q", name)
		}

		s.valence[emotion] = level
		s.byLevel[level] = append(s.byLevel[level], emotion)
	}

	for level, emotions := range s.byLevel {
		s.byLevel[level] = pie.Sort(emotions)
	}
	s.levels = pie.Sort(pie.Keys(s.byLevel))

	return s, nil
}

func (s *Scale) Valence(e label.Emotion) int {
	if s == nil {
		return 0
	}
	return s.valence[e]
}

// Step returns the emotion a session moves to when it is at current and the
// classifier reports target. Targets within one level are accepted as is;
// farther targets are approached one configured level at a time. When the
// table has gaps a single step can span more than one valence unit, but it
// never skips a configured level and never passes the target.
func (s *Scale) Step(current, target label.Emotion) label.Emotion {
	from, to := s.Valence(current), s.Valence(target)

	d := to - from
	if d >= -1 && d <= 1 {
		return target
	}

	level, ok := s.nextLevel(from, to)
	if !ok || level == to {
		return target
	}

	return s.byLevel[level][0]
}

// nextLevel finds the closest configured level after from in the direction of
// to, never passing to.
func (s *Scale) nextLevel(from, to int) (int, bool) {
	if s == nil {
		return 0, false
	}

	if to > from {
		i := sort.SearchInts(s.levels, from+1)
		if i < len(s.levels) && s.levels[i] <= to {
			return s.levels[i], true
		}
		return 0, false
	}

	i := sort.SearchInts(s.levels, from) - 1
	if i >= 0 && s.levels[i] >= to {
		return s.levels[i], true
	}
	return 0, false
}
