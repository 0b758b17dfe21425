// Package history turns a session's nested turn/step arrays into an explicit,
// sequence-numbered log and rebuilds the conversation a model sees from it.
package history

import (
	"fmt"

	"github.com/aretw0/tendril/pkg/domain"
)

// Entry is one recorded step, addressed by its position in the log.
type Entry struct {
	// Seq increases by one per step across the whole session, starting at 1.
	Seq   uint64
	Turn  int
	Index int
	Step  domain.IntermediaryStep
}

// Log is the session flattened in chronological order.
type Log []Entry

// FromSession flattens a session into a log. Turn and step positions define the order.
func FromSession(s domain.Session) Log {
	var log Log
	var seq uint64
	for t, turn := range s {
		for i, step := range turn.IntermediarySteps {
			seq++
			log = append(log, Entry{Seq: seq, Turn: t, Index: i, Step: step})
		}
	}
	return log
}

// Append returns a new log with step recorded after the last entry.
// When newTurn is set the step opens the next turn.
func (l Log) Append(step domain.IntermediaryStep, newTurn bool) Log {
	next := Entry{Seq: 1, Step: step}
	if n := len(l); n > 0 {
		last := l[n-1]
		next.Seq = last.Seq + 1
		next.Turn = last.Turn
		next.Index = last.Index + 1
		if newTurn {
			next.Turn++
			next.Index = 0
		}
	}
	out := make(Log, len(l), len(l)+1)
	copy(out, l)
	return append(out, next)
}

// Session rebuilds the nested turn layout from the log.
func (l Log) Session() domain.Session {
	var s domain.Session
	for i, e := range l {
		s = s.Append(e.Step, i == 0 || e.Turn != l[i-1].Turn)
	}
	return s
}

// Validate checks that sequence numbers strictly increase.
func (l Log) Validate() error {
	for i := 1; i < len(l); i++ {
		if l[i].Seq <= l[i-1].Seq {
			return fmt.Errorf("%w: entry %d out of order (seq %d after %d)",
				domain.ErrReconstruction, i, l[i].Seq, l[i-1].Seq)
		}
	}
	return nil
}
