package aio

// Notifier receives an asynchronous nudge after completions are published.
// Notify must not block, a slow consumer drops nudges rather than stalling
// the completion pipeline.
type Notifier interface {
	Notify()
	Close() error
}

// NewChanNotifier signals the given channel without blocking, coalescing
// bursts into whatever fits its buffer.
func NewChanNotifier(ch chan<- struct{}) Notifier {
	return &chanNotifier{ch: ch}
}

type chanNotifier struct {
	ch chan<- struct{}
}

func (n *chanNotifier) Notify() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

func (n *chanNotifier) Close() error {
	return nil
}
