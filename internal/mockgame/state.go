package mockgame

import (
	"context"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Update is one changed key of the mock world state.
type Update struct {
	Key   string
	Value []byte
}

// State is the mock server's world state: a single JSON document mutated
// with sjson and read with gjson. Every Set fans out an Update to all
// subscribers so connections can push the change to their clients.
type State struct {
	values []byte

	mu          sync.Mutex
	updateChans []chan *Update

	// stop will be closed when Close() is called
	stop chan struct{}
}

func NewState() *State {
	return &State{
		values:      []byte(""),
		stop:        make(chan struct{}),
		updateChans: make([]chan *Update, 0),
	}
}

func (s *State) Close() error {
	if s.isRunning() {
		close(s.stop)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, updateChan := range s.updateChans {
		close(updateChan)
	}

	return nil
}

func (s *State) Set(ctx context.Context, key string, value interface{}) (err error) {
	s.values, err = sjson.SetBytes(s.values, key, value)
	if err != nil {
		return err
	}

	if s.isRunning() {
		s.mu.Lock()

		for _, updateChan := range s.updateChans {
			updateChan <- &Update{
				Key:   key,
				Value: []byte(gjson.GetBytes(s.values, key).Raw),
			}
		}

		s.mu.Unlock()
	}

	return nil
}

func (s *State) Get(ctx context.Context, key string) ([]byte, error) {
	result := gjson.GetBytes(s.values, key)

	if result.Index == 0 {
		return []byte(result.Raw), nil
	}

	return s.values[result.Index : result.Index+len(result.Raw)], nil
}

func (s *State) ListenToUpdates() <-chan *Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	updateChan := make(chan *Update, 255)
	s.updateChans = append(s.updateChans, updateChan)

	return updateChan
}

// isRunning returns true if Close has not been called
func (s *State) isRunning() bool {
	select {
	case <-s.stop:
		return false

	default:
		return true
	}
}
