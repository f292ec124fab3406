package conversation

import (
	"slices"

	"github.com/elliotchance/pie/v2"
)

// replyHistory is a bounded FIFO of replies sent in a session.
type replyHistory struct {
	size    int
	replies []string
}

func newReplyHistory(size int) replyHistory {
	if size < 1 {
		size = 1
	}

	return replyHistory{
		size:    size,
		replies: make([]string, 0, size),
	}
}

func (h *replyHistory) add(text string) {
	if len(h.replies) >= h.size {
		h.replies = append(h.replies[1:], text)
	} else {
		h.replies = append(h.replies, text)
	}
}

func (h *replyHistory) contains(text string) bool {
	return pie.Contains(h.replies, text)
}

func (h *replyHistory) list() []string {
	return slices.Clone(h.replies)
}
