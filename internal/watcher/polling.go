package watcher

import (
	"os"
	"time"
)

type fileState struct {
	exists  bool
	modTime time.Time
	size    int64
}

// poller stats each target and reports differences from the last poll.
type poller struct {
	paths []string
	state map[string]fileState
	emit  func(Event)
}

func newPoller(paths []string, emit func(Event)) *poller {
	p := &poller{paths: paths, state: make(map[string]fileState, len(paths)), emit: emit}
	for _, path := range paths {
		p.state[path] = stat(path)
	}
	return p
}

func stat(path string) fileState {
	info, err := os.Stat(path)
	if err != nil {
		return fileState{}
	}
	return fileState{exists: true, modTime: info.ModTime(), size: info.Size()}
}

func (p *poller) poll() {
	for _, path := range p.paths {
		prev, cur := p.state[path], stat(path)
		p.state[path] = cur

		var op Operation
		switch {
		case !prev.exists && cur.exists:
			op = OpCreate
		case prev.exists && !cur.exists:
			op = OpDelete
		case cur.exists && (cur.modTime != prev.modTime || cur.size != prev.size):
			op = OpModify
		default:
			continue
		}
		p.emit(Event{Path: path, Operation: op, Timestamp: time.Now()})
	}
}
