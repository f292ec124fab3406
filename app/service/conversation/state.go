package conversation

import (
	"errors"
	"fmt"

	"moodreply/app/label"
)

var ErrInvalidSnapshot = errors.New("invalid snapshot")

// State is the per-session memory of emotions, intents and recent replies.
// It is not safe for concurrent use; callers serialize access per session.
type State struct {
	scale *Scale

	currentEmotion  label.Emotion
	previousEmotion label.Emotion
	pendingEmotion  label.Emotion

	currentIntent  label.Intent
	previousIntent label.Intent

	turnCount int
	replies   replyHistory
}

// Snapshot is a serializable copy of a State.
type Snapshot struct {
	CurrentEmotion  label.Emotion `json:"current_emotion"`
	PreviousEmotion label.Emotion `json:"previous_emotion"`
	PendingEmotion  label.Emotion `json:"pending_emotion,omitempty"`
	CurrentIntent   label.Intent  `json:"current_intent"`
	PreviousIntent  label.Intent  `json:"previous_intent"`
	TurnCount       int           `json:"turn_count"`
	RecentReplies   []string      `json:"recent_replies"`
}

func NewState(scale *Scale, replyWindow int) *State {
	return &State{
		scale:           scale,
		currentEmotion:  label.Neutral,
		previousEmotion: label.Neutral,
		replies:         newReplyHistory(replyWindow),
	}
}

// Restore rebuilds a State from a snapshot. Only the newest replyWindow
// replies are kept.
func Restore(scale *Scale, replyWindow int, snap Snapshot) (*State, error) {
	if snap.TurnCount < 0 {
		return nil, fmt.Errorf("%w: negative turn count %d", ErrInvalidSnapshot, snap.TurnCount)
	}

	s := NewState(scale, replyWindow)
	if snap.CurrentEmotion != "" {
		s.currentEmotion = snap.CurrentEmotion
	}
	if snap.PreviousEmotion != "" {
		s.previousEmotion = snap.PreviousEmotion
	}
	s.pendingEmotion = snap.PendingEmotion
	s.currentIntent = snap.CurrentIntent
	s.previousIntent = snap.PreviousIntent
	s.turnCount = snap.TurnCount

	for _, text := range snap.RecentReplies {
		s.replies.add(text)
	}

	return s, nil
}

// Advance accepts a new turn. The returned emotion is smoothed against the
// current one; the intent is taken as is. A raw wildcard is not a label: it
// reads as neutral for the emotion and as no intent.
func (s *State) Advance(rawEmotion label.Emotion, rawIntent label.Intent) (label.Emotion, label.Intent) {
	if rawEmotion == label.Wildcard {
		rawEmotion = label.Neutral
	}
	if rawIntent == label.Wildcard {
		rawIntent = ""
	}

	smoothed := s.scale.Step(s.currentEmotion, rawEmotion)

	s.previousEmotion = s.currentEmotion
	s.currentEmotion = smoothed
	if smoothed == rawEmotion {
		s.pendingEmotion = ""
	} else {
		s.pendingEmotion = rawEmotion
	}

	s.previousIntent = s.currentIntent
	s.currentIntent = rawIntent

	s.turnCount++

	return smoothed, rawIntent
}

func (s *State) RememberReply(text string) {
	s.replies.add(text)
}

func (s *State) WasRecentlyUsed(text string) bool {
	return s.replies.contains(text)
}

// RecentReplies returns the reply window, oldest first.
func (s *State) RecentReplies() []string {
	return s.replies.list()
}

func (s *State) CurrentEmotion() label.Emotion {
	return s.currentEmotion
}

func (s *State) PreviousEmotion() label.Emotion {
	return s.previousEmotion
}

// PendingEmotion is the raw emotion the state is still moving toward, or
// empty once it has been reached.
func (s *State) PendingEmotion() label.Emotion {
	return s.pendingEmotion
}

func (s *State) CurrentIntent() label.Intent {
	return s.currentIntent
}

func (s *State) PreviousIntent() label.Intent {
	return s.previousIntent
}

func (s *State) TurnCount() int {
	return s.turnCount
}

func (s *State) Snapshot() Snapshot {
	return Snapshot{
		CurrentEmotion:  s.currentEmotion,
		PreviousEmotion: s.previousEmotion,
		PendingEmotion:  s.pendingEmotion,
		CurrentIntent:   s.currentIntent,
		PreviousIntent:  s.previousIntent,
		TurnCount:       s.turnCount,
		RecentReplies:   s.replies.list(),
	}
}
