package events

import (
	"sort"
	"sync"
)

// DefaultLogSize bounds the in-memory log when no size is given.
const DefaultLogSize = 10_000

// Log keeps the most recent committed signals for the events API.
type Log struct {
	mu      sync.RWMutex
	max     int
	signals []Signal
}

func NewLog(max int) *Log {
	if max <= 0 {
		max = DefaultLogSize
	}
	return &Log{max: max}
}

// Append adds signals in commit order, evicting the oldest past the bound.
func (l *Log) Append(signals []Signal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.signals = append(l.signals, signals...)
	if over := len(l.signals) - l.max; over > 0 {
		l.signals = append([]Signal(nil), l.signals[over:]...)
	}
}

// Since returns up to limit signals with Seq > after.
func (l *Log) Since(after uint64, limit int) []Signal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i := sort.Search(len(l.signals), func(i int) bool {
		return l.signals[i].Seq > after
	})
	end := len(l.signals)
	if limit > 0 && i+limit < end {
		end = i + limit
	}
	out := make([]Signal, end-i)
	copy(out, l.signals[i:end])
	return out
}

// Kind returns every retained signal of kind k.
func (l *Log) Kind(k Kind) []Signal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Signal
	for _, s := range l.signals {
		if s.Kind == k {
			out = append(out, s)
		}
	}
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.signals)
}
