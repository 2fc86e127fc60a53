package pipeline

import "github.com/xhad/readmit/internal/models"

type EventKind string

const (
	EventStarted     EventKind = "started"
	EventTermStarted EventKind = "term_started"
	EventRetrieved   EventKind = "retrieved"
	EventSummary     EventKind = "summary"
	EventTermFailed  EventKind = "term_failed"
	EventFinished    EventKind = "finished"
)

// Event is a progress notification emitted while a run executes.
type Event struct {
	Kind      EventKind
	Term      string
	Message   string
	Summary   string
	Citations []models.Citation
	Err       error
}

type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans each event out to every non-nil observer in order.
func Observers(observers ...Observer) Observer {
	return ObserverFunc(func(e Event) {
		for _, o := range observers {
			if o != nil {
				o.Observe(e)
			}
		}
	})
}
