package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const maxScanSize = 2 << 20

// Log is the durable event stream: an append-only JSONL file plus a
// bounded in-memory fan-out. The log assigns sequence numbers; they are
// monotone in append order.
type Log struct {
	mu     sync.Mutex
	path   string
	seq    uint64
	subs   map[int]chan Record
	nextID int
	recent  []Record
	cap     int
	lastErr error
}

func NewLog(path string) (*Log, error) {
	if path == "" {
		return nil, fmt.Errorf("missing path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	l := &Log{path: path, subs: make(map[int]chan Record), cap: 64}
	last, err := l.lastSeq()
	if err != nil {
		return nil, err
	}
	l.seq = last
	return l, nil
}

func (l *Log) lastSeq() (uint64, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()
	var last uint64
	sc := newScanner(f)
	for sc.Scan() {
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err == nil {
			if r.Seq > last {
				last = r.Seq
			}
		}
	}
	return last, sc.Err()
}

// Emit assigns the next sequence number, appends the record to the
// JSONL file and fans it out. Subscribers that cannot keep up are
// skipped rather than blocking the emitting operation.
func (l *Log) Emit(r Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	r.Seq = l.seq
	if r.At.IsZero() {
		r.At = time.Now().UTC()
	}
	if err := l.append(r); err != nil {
		// The in-memory stream stays coherent even if the disk write
		// failed; the operator sees the error via Err on next emit.
		l.lastErr = err
	}
	if len(l.recent) >= l.cap {
		copy(l.recent, l.recent[1:])
		l.recent[len(l.recent)-1] = r
	} else {
		l.recent = append(l.recent, r)
	}
	for _, ch := range l.subs {
		select {
		case ch <- r:
		default:
		}
	}
}

func (l *Log) append(r Record) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(r); err != nil {
		return err
	}
	return f.Sync()
}

// Subscribe registers a buffered subscriber channel. The returned
// cancel func must be called to release it.
func (l *Log) Subscribe(buffer int) (<-chan Record, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Record, buffer)
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = ch
	l.mu.Unlock()
	cancel := func() {
		l.mu.Lock()
		if _, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(ch)
		}
		l.mu.Unlock()
	}
	return ch, cancel
}

// Recent returns up to the last 64 records, newest last.
func (l *Log) Recent() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.recent))
	copy(out, l.recent)
	return out
}

// Replay reads every persisted record in append order. Lines that fail
// to decode are skipped, matching the tolerant scan the rest of the
// stores use.
func (l *Log) Replay() ([]Record, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	var out []Record
	sc := newScanner(f)
	for sc.Scan() {
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err == nil {
			out = append(out, r)
		}
	}
	return out, sc.Err()
}

func (l *Log) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

func newScanner(f *os.File) *bufio.Scanner {
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxScanSize)
	return sc
}
