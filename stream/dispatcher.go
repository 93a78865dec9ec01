package stream

import "sync"

// Handler processes the payload of one inbound command frame. The payload
// is the raw JSON of the frame's second element.
type Handler func(payload []byte)

// dispatcher routes decoded frames to the single bound handler for the
// command, and to every generic subscriber of that command's name. It
// replaces ad-hoc property lookup with an explicit subscribe-by-name bus:
// any number of collaborators can observe a command without binding a
// handler for it.
type dispatcher struct {
	mu          sync.RWMutex
	handlers    map[string]Handler
	subscribers map[string][]Handler
}

func newDispatcher() *dispatcher {
	return &dispatcher{
		handlers:    make(map[string]Handler),
		subscribers: make(map[string][]Handler),
	}
}

func (d *dispatcher) bind(name string, handler Handler) {
	d.mu.Lock()
	d.handlers[name] = handler
	d.mu.Unlock()
}

func (d *dispatcher) subscribe(name string, handler Handler) {
	d.mu.Lock()
	d.subscribers[name] = append(d.subscribers[name], handler)
	d.mu.Unlock()
}

// dispatch invokes the bound handler, if any, then every subscriber of the
// command's name.
func (d *dispatcher) dispatch(name string, payload []byte) {
	d.mu.RLock()
	handler := d.handlers[name]
	subscribers := d.subscribers[name]
	d.mu.RUnlock()

	if handler != nil {
		handler(payload)
	}

	for _, subscriber := range subscribers {
		subscriber(payload)
	}
}
