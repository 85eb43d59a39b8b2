package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"homeescrow/core/types"
)

const eventStreamHistoryLimit = 2048

// EventUpdate is a committed event as delivered to live subscribers.
type EventUpdate struct {
	Sequence   uint64
	Cursor     string
	Type       string
	Attributes map[string]string
}

func cloneEventUpdate(update EventUpdate) EventUpdate {
	cloned := update
	if update.Attributes != nil {
		cloned.Attributes = make(map[string]string, len(update.Attributes))
		for k, v := range update.Attributes {
			cloned.Attributes[k] = v
		}
	}
	return cloned
}

func (n *Node) publishEvent(evt *types.Event) {
	if n == nil || evt == nil {
		return
	}

	n.streamMu.Lock()
	n.streamSeq++
	update := EventUpdate{
		Sequence:   n.streamSeq,
		Cursor:     strconv.FormatUint(n.streamSeq, 10),
		Type:       evt.Type,
		Attributes: evt.Attributes,
	}
	stored := cloneEventUpdate(update)
	n.streamHistory = append(n.streamHistory, stored)
	if len(n.streamHistory) > eventStreamHistoryLimit {
		excess := len(n.streamHistory) - eventStreamHistoryLimit
		trimmed := make([]EventUpdate, eventStreamHistoryLimit)
		copy(trimmed, n.streamHistory[excess:])
		n.streamHistory = trimmed
	}
	// Sends happen under the lock so cancel cannot close a channel mid-send.
	for _, ch := range n.streamSubs {
		select {
		case ch <- cloneEventUpdate(update):
		default:
		}
	}
	n.streamMu.Unlock()
}

// SubscribeEvents registers a subscriber for committed events. Events already
// published after cursor are returned as a backlog. Slow subscribers drop
// updates rather than block the node.
func (n *Node) SubscribeEvents(ctx context.Context, cursor string) (<-chan EventUpdate, func(), []EventUpdate, error) {
	if n == nil {
		return nil, nil, nil, fmt.Errorf("node not initialised")
	}
	updates := make(chan EventUpdate, 32)

	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		parsed, err := strconv.ParseUint(trimmed, 10, 64)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid cursor %q", cursor)
		}
		since = parsed
	}

	n.streamMu.Lock()
	if n.streamSubs == nil {
		n.streamMu.Unlock()
		return nil, nil, nil, ErrNodeClosed
	}
	id := n.streamNextID
	n.streamNextID++
	n.streamSubs[id] = updates
	backlog := make([]EventUpdate, 0, len(n.streamHistory))
	for _, entry := range n.streamHistory {
		if entry.Sequence > since {
			backlog = append(backlog, cloneEventUpdate(entry))
		}
	}
	n.streamMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.streamMu.Lock()
			if sub, ok := n.streamSubs[id]; ok {
				delete(n.streamSubs, id)
				close(sub)
			}
			n.streamMu.Unlock()
		})
	}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return updates, cancel, backlog, nil
}

func (n *Node) closeStreams() {
	n.streamMu.Lock()
	defer n.streamMu.Unlock()
	for id, ch := range n.streamSubs {
		delete(n.streamSubs, id)
		close(ch)
	}
	n.streamSubs = nil
}
