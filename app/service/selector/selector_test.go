package selector

import (
	"math/rand/v2"
	"slices"
	"testing"

	"moodreply/app/label"
	"moodreply/app/service/conversation"
	"moodreply/app/service/template"
)

type fixedPicker struct {
	calls []int
}

func (p *fixedPicker) IntN(n int) int {
	p.calls = append(p.calls, n)
	return n - 1
}

func scenario(t *testing.T) (*Selector, *conversation.Scale) {
	t.Helper()

	store, err := template.Load(map[string][]string{
		"happy,greeting": {"Hey there!", "Hi, great to hear!"},
		"*,*":            {"I see."},
	}, nil)
	if err != nil {
		t.Fatalf("template.Load: %v", err)
	}

	scale, err := conversation.NewScale(map[string]int{"neutral": 0, "happy": 1, "angry": -2}, nil)
	if err != nil {
		t.Fatalf("NewScale: %v", err)
	}

	return NewSelector(store, nil), scale
}

func TestEndToEndScenario(t *testing.T) {
	sel, scale := scenario(t)
	state := conversation.NewState(scale, 3)
	rng := rand.New(rand.NewPCG(1, 2))

	first := sel.Respond(state, rng, "happy", "greeting")
	if first.Emotion != "happy" {
		t.Fatalf("turn 1: expected happy accepted immediately, got %s", first.Emotion)
	}
	if first.Text != "Hey there!" && first.Text != "Hi, great to hear!" {
		t.Fatalf("turn 1: unexpected reply %q", first.Text)
	}
	if first.Key != "happy,greeting" || first.Turn != 1 {
		t.Fatalf("turn 1: unexpected reply metadata %+v", first)
	}

	second := sel.Respond(state, rng, "angry", "complaint")
	if second.Emotion != "neutral" {
		t.Fatalf("turn 2: expected smoothed neutral, got %s", second.Emotion)
	}
	if second.Text != "I see." {
		t.Fatalf("turn 2: expected global fallback, got %q", second.Text)
	}
	if second.Key != "*,*" || second.Turn != 2 {
		t.Fatalf("turn 2: unexpected reply metadata %+v", second)
	}

	stats := sel.Stats()
	if stats.Turns != 2 || stats.GlobalFallbacks != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestDeterministicUnderFixedSeed(t *testing.T) {
	store, err := template.Load(map[string][]string{
		"happy,greeting": {"a", "b", "c", "d", "e"},
		"sad,*":          {"f", "g", "h"},
		"*,*":            {"x", "y", "z"},
	}, nil)
	if err != nil {
		t.Fatalf("template.Load: %v", err)
	}
	sel := NewSelector(store, nil)

	inputs := [][2]string{
		{"happy", "greeting"}, {"happy", "greeting"}, {"sad", "question"},
		{"happy", "greeting"}, {"neutral", "other"}, {"happy", "greeting"},
		{"sad", "greeting"}, {"happy", "greeting"}, {"happy", "greeting"},
	}

	run := func() []string {
		state := conversation.NewState(nil, 2)
		rng := rand.New(rand.NewPCG(7, 7))

		var out []string
		for _, in := range inputs {
			r := sel.Respond(state, rng, label.Emotion(in[0]), label.Intent(in[1]))
			out = append(out, r.Text)
		}
		return out
	}

	first, second := run(), run()
	if !slices.Equal(first, second) {
		t.Fatalf("expected identical replies, got %v and %v", first, second)
	}
}

func TestAntiRepetition(t *testing.T) {
	store, err := template.Load(map[string][]string{
		"*,*": {"a", "b", "c"},
	}, nil)
	if err != nil {
		t.Fatalf("template.Load: %v", err)
	}
	sel := NewSelector(store, nil)

	const window = 2
	state := conversation.NewState(nil, window)
	rng := rand.New(rand.NewPCG(3, 4))

	var replies []string
	for i := 0; i < 200; i++ {
		replies = append(replies, sel.Respond(state, rng, "neutral", "chat").Text)
	}

	for i := range replies {
		for j := max(0, i-window); j < i; j++ {
			if replies[i] == replies[j] {
				t.Fatalf("reply %q repeated at turns %d and %d", replies[i], j, i)
			}
		}
	}
}

func TestRepetitionAllowedWhenExhausted(t *testing.T) {
	sel, scale := scenario(t)
	state := conversation.NewState(scale, 5)

	for i := 0; i < 3; i++ {
		r := sel.Respond(state, nil, "neutral", "question")
		if r.Text != "I see." {
			t.Fatalf("turn %d: expected the only candidate, got %q", i, r.Text)
		}
	}
}

func TestFilterKeepsCandidateOrder(t *testing.T) {
	store, err := template.Load(map[string][]string{
		"*,*": {"a", "b", "c"},
	}, nil)
	if err != nil {
		t.Fatalf("template.Load: %v", err)
	}
	sel := NewSelector(store, nil)
	state := conversation.NewState(nil, 3)
	picker := &fixedPicker{}

	got := []string{
		sel.Respond(state, picker, "neutral", "chat").Text,
		sel.Respond(state, picker, "neutral", "chat").Text,
		sel.Respond(state, picker, "neutral", "chat").Text,
	}

	if !slices.Equal(got, []string{"c", "b", "a"}) {
		t.Fatalf("expected [c b a], got %v", got)
	}
	if !slices.Equal(picker.calls, []int{3, 2}) {
		t.Fatalf("expected picker calls [3 2], got %v", picker.calls)
	}
}

func TestUnknownLabelsCounted(t *testing.T) {
	store, err := template.Load(map[string][]string{"*,*": {"ok"}}, nil)
	if err != nil {
		t.Fatalf("template.Load: %v", err)
	}
	labels, err := label.NewSet([]string{"happy"}, []string{"greeting"})
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	sel := NewSelector(store, labels)
	state := conversation.NewState(nil, 1)

	if r := sel.Respond(state, nil, "furious", "rant"); r.Text != "ok" {
		t.Fatalf("unknown labels must still get a reply, got %q", r.Text)
	}
	sel.Respond(state, nil, "happy", "rant")

	stats := sel.Stats()
	if stats.UnknownEmotions != 1 || stats.UnknownIntents != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestWildcardInputIsUnknown(t *testing.T) {
	store, err := template.Load(map[string][]string{
		"*,greeting": {"hi"},
		"*,*":        {"ok"},
	}, nil)
	if err != nil {
		t.Fatalf("template.Load: %v", err)
	}
	sel := NewSelector(store, nil)
	state := conversation.NewState(nil, 1)

	r := sel.Respond(state, nil, label.Wildcard, label.Wildcard)
	if r.Text != "ok" || r.Key != template.GlobalKey.String() {
		t.Fatalf("expected global fallback, got %+v", r)
	}
	if r.Emotion != label.Neutral || r.Intent != "" {
		t.Fatalf("wildcard must not reach the state, got (%s, %q)", r.Emotion, r.Intent)
	}

	stats := sel.Stats()
	if stats.UnknownEmotions != 1 || stats.UnknownIntents != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	sel, scale := scenario(t)
	a := conversation.NewState(scale, 3)
	b := conversation.NewState(scale, 3)

	sel.Respond(a, nil, "happy", "greeting")
	sel.Respond(a, nil, "angry", "complaint")

	if b.TurnCount() != 0 || b.CurrentEmotion() != label.Neutral || len(b.RecentReplies()) != 0 {
		t.Fatalf("session b was mutated: %+v", b.Snapshot())
	}
}

func TestEmptyStorePanics(t *testing.T) {
	sel := NewSelector(&template.Store{}, nil)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for empty candidate set")
		}
	}()

	sel.Respond(conversation.NewState(nil, 1), nil, "happy", "greeting")
}
