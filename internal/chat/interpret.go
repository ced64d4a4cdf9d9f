// Package chat flattens rich-text chat payloads and classifies the game-state
// announcements the relay reacts to.
package chat

import "strings"

// Node is one element of a rich-text chat tree.
type Node struct {
	Text  string `json:"text,omitempty"`
	Extra []Node `json:"extra,omitempty"`
}

// maxNodes bounds traversal on adversarial payloads. Real chat trees are tiny.
const maxNodes = 4096

// ExtractText returns the pre-order concatenation of the tree's text: each
// node's own text followed by its extra entries in order. Iterative so payload
// nesting cannot exhaust the call stack.
func ExtractText(root *Node) string {
	if root == nil {
		return ""
	}

	var b strings.Builder
	stack := []*Node{root}
	visited := 0
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		visited++
		if visited > maxNodes {
			break
		}

		b.WriteString(n.Text)
		for i := len(n.Extra) - 1; i >= 0; i-- {
			stack = append(stack, &n.Extra[i])
		}
	}
	return b.String()
}

type EventKind int

const (
	EventNone EventKind = iota
	EventRoster
	EventRoundStart
	EventRoundEnd
)

// Event is a classified game-state announcement. Names is populated only for
// EventRoster, in announcement order.
type Event struct {
	Kind  EventKind
	Names []string
}

const (
	rosterPrefix     = "ONLINE: "
	roundStartPhrase = "to access powerful upgrades."
	roundEndPrefix   = "1st Killer - "
)

// Classify maps extracted chat text to a game event. The trigger phrases are
// disjoint, so the first match wins.
func Classify(text string) Event {
	if rest, ok := strings.CutPrefix(text, rosterPrefix); ok {
		return Event{Kind: EventRoster, Names: strings.Split(rest, ", ")}
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == roundStartPhrase {
		return Event{Kind: EventRoundStart}
	}
	if strings.HasPrefix(trimmed, roundEndPrefix) {
		return Event{Kind: EventRoundEnd}
	}
	return Event{Kind: EventNone}
}
