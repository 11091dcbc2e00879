package events

import (
	"context"
	"path"
	"strconv"
	"sync"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

const memStreamMaxLen = 1000

// MemoryBus is an in-process domain.SignalBus used when Redis is not
// configured. Channel names may be glob patterns when subscribing.
type MemoryBus struct {
	mu      sync.RWMutex
	subs    map[int]memSub
	nextID  int
	streams map[string][]domain.StreamMessage
	seq     int64
}

type memSub struct {
	pattern string
	ch      chan []byte
}

// NewMemoryBus returns an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs:    make(map[int]memSub),
		streams: make(map[string][]domain.StreamMessage),
	}
}

// Publish delivers payload to matching subscribers without blocking; a slow
// subscriber drops the message.
func (b *MemoryBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	for _, s := range b.subs {
		if ok, _ := path.Match(s.pattern, channel); !ok {
			continue
		}
		select {
		case s.ch <- payload:
		default:
		}
	}
	b.mu.RUnlock()
	return b.StreamAppend(ctx, "stream:"+channel, payload)
}

// Subscribe registers a subscriber until ctx is done.
func (b *MemoryBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 128)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = memSub{pattern: channel, ch: ch}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

// StreamAppend appends payload to stream, keeping the newest entries.
func (b *MemoryBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	msgs := append(b.streams[stream], domain.StreamMessage{
		ID:      strconv.FormatInt(b.seq, 10),
		Payload: payload,
	})
	if len(msgs) > memStreamMaxLen {
		msgs = msgs[len(msgs)-memStreamMaxLen:]
	}
	b.streams[stream] = msgs
	return nil
}

// StreamRead returns up to count entries with an ID greater than lastID.
func (b *MemoryBus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	after, _ := strconv.ParseInt(lastID, 10, 64)

	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []domain.StreamMessage
	for _, m := range b.streams[stream] {
		id, _ := strconv.ParseInt(m.ID, 10, 64)
		if id <= after {
			continue
		}
		out = append(out, m)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

var _ domain.SignalBus = (*MemoryBus)(nil)
