package theatre

import "time"

const (
	EventFrameProcessed = "frame-processed"
	EventFrameDropped   = "frame-dropped"
)

type EventListener func(theatre *Theatre, data interface{})

type EventFrameData struct {
	Event    string        `json:"event"`
	Profile  string        `json:"profile"`
	In       string        `json:"in"`
	Out      string        `json:"out"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// AddEventListener must be called before Start
func (t *Theatre) AddEventListener(event string, callback EventListener) {
	t.listener[event] = append(t.listener[event], callback)
}

func (t *Theatre) invoke(event string, data interface{}) {
	for _, listener := range t.listener[event] {
		go listener(t, data)
	}
}
