package monitor

import (
	"time"

	"github.com/go-go-golems/fleetctl/pkg/status"
)

// Snapshot is one sample of the whole fleet.
type Snapshot struct {
	At       time.Time              `json:"at"`
	Project  string                 `json:"project"`
	Services []status.ServiceStatus `json:"services"`
	Error    string                 `json:"error,omitempty"`
}

func (s Snapshot) RunningCount() int {
	n := 0
	for _, svc := range s.Services {
		if svc.Running() {
			n++
		}
	}
	return n
}

// Transition is a change in a service's run state between two snapshots.
type Transition struct {
	Service string    `json:"service"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	When    time.Time `json:"when"`
}

type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

type EventLogEntry struct {
	At    time.Time `json:"at"`
	Level LogLevel  `json:"level"`
	Text  string    `json:"text"`
}
