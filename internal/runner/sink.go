package runner

import "sync"

// Sink observes runner output and state changes.
//
// Methods are called from the runner goroutine and from per-task pump
// goroutines, so implementations must be safe for concurrent use and should
// hand work off to their own context rather than block.
type Sink interface {
	OnLine(text string, isErrorStream, isProgress bool)
	OnDashboardChanged()
	OnTaskFinished()
}

// EventKind identifies an Event.
type EventKind int

const (
	// EventLine carries one output or status line.
	EventLine EventKind = iota
	// EventDashboard means the running command or queue contents changed.
	EventDashboard
	// EventTaskFinished means a task left the runner.
	EventTaskFinished
)

// Event is a Sink callback captured as a value.
type Event struct {
	Kind     EventKind
	Text     string
	Stderr   bool
	Progress bool
}

// ChanSink delivers Sink callbacks as Events on one channel.
//
// Line and task-finished events are delivered in order and block while the
// channel is full. Dashboard events are dropped instead of blocking, since the
// receiver reads a fresh Snapshot on every event anyway. After Close every
// send is discarded so the runner can be joined without a reader.
type ChanSink struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// NewChanSink creates a ChanSink with the given channel buffer.
func NewChanSink(buffer int) *ChanSink {
	if buffer < 1 {
		buffer = 1
	}

	return &ChanSink{
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
}

// Events returns the receive side of the channel.
func (s *ChanSink) Events() <-chan Event {
	return s.ch
}

// Close stops delivery. It is safe to call more than once.
func (s *ChanSink) Close() {
	s.once.Do(func() { close(s.done) })
}

// Done is closed once Close has been called.
func (s *ChanSink) Done() <-chan struct{} {
	return s.done
}

func (s *ChanSink) OnLine(text string, isErrorStream, isProgress bool) {
	s.send(Event{Kind: EventLine, Text: text, Stderr: isErrorStream, Progress: isProgress})
}

func (s *ChanSink) OnDashboardChanged() {
	select {
	case <-s.done:
	case s.ch <- Event{Kind: EventDashboard}:
	default:
	}
}

func (s *ChanSink) OnTaskFinished() {
	s.send(Event{Kind: EventTaskFinished})
}

func (s *ChanSink) send(ev Event) {
	select {
	case <-s.done:
	case s.ch <- ev:
	}
}

// SinkFuncs adapts optional functions to a Sink. Nil fields are no-ops.
type SinkFuncs struct {
	Line      func(text string, isErrorStream, isProgress bool)
	Dashboard func()
	Finished  func()
}

func (f SinkFuncs) OnLine(text string, isErrorStream, isProgress bool) {
	if f.Line != nil {
		f.Line(text, isErrorStream, isProgress)
	}
}

func (f SinkFuncs) OnDashboardChanged() {
	if f.Dashboard != nil {
		f.Dashboard()
	}
}

func (f SinkFuncs) OnTaskFinished() {
	if f.Finished != nil {
		f.Finished()
	}
}

// MultiSink fans every callback out to each sink in order. Nil entries are
// skipped.
type MultiSink []Sink

func (m MultiSink) OnLine(text string, isErrorStream, isProgress bool) {
	for _, s := range m {
		if s != nil {
			s.OnLine(text, isErrorStream, isProgress)
		}
	}
}

func (m MultiSink) OnDashboardChanged() {
	for _, s := range m {
		if s != nil {
			s.OnDashboardChanged()
		}
	}
}

func (m MultiSink) OnTaskFinished() {
	for _, s := range m {
		if s != nil {
			s.OnTaskFinished()
		}
	}
}

var (
	_ Sink = (*ChanSink)(nil)
	_ Sink = SinkFuncs{}
	_ Sink = MultiSink(nil)
)
