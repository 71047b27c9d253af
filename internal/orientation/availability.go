package orientation

import "fmt"

// SourceState is the lifecycle of one sensor stream while tracking.
type SourceState int

const (
	Unavailable SourceState = iota
	Pending
	Active
	Superseded
)

func (s SourceState) String() string {
	switch s {
	case Unavailable:
		return "unavailable"
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Superseded:
		return "superseded"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// sourceTable holds the per-source state. It is a value type; transitions
// return a new table plus the sources that must be unsubscribed, so the I/O
// stays with the caller.
type sourceTable [numSources]SourceState

func (t sourceTable) state(src Source) SourceState {
	if src <= SourceNone || int(src) >= numSources {
		return Unavailable
	}
	return t[src]
}

// subscribed reports whether delivery for src is still wanted.
func (t sourceTable) subscribed(src Source) bool {
	st := t.state(src)
	return st == Pending || st == Active
}

// pending marks every source as subscribed and waiting for data.
func (t sourceTable) pending() sourceTable {
	for _, src := range AllSources {
		t[src] = Pending
	}
	return t
}

// observe records the arrival of a sample from src.
//
// Rotation vector supersedes everything else; gravity supersedes the raw
// accelerometer. Magnetic field is only superseded by rotation vector.
func (t sourceTable) observe(src Source) (sourceTable, []Source) {
	if t.state(src) != Pending {
		return t, nil
	}
	t[src] = Active

	var losers []Source
	switch {
	case t[SourceRotationVector] == Active:
		losers = []Source{SourceMagneticField, SourceGravity, SourceAccelerometer}
	case t[SourceGravity] == Active:
		losers = []Source{SourceAccelerometer}
	}

	var obsolete []Source
	for _, l := range losers {
		if t.subscribed(l) {
			t[l] = Superseded
			obsolete = append(obsolete, l)
		}
	}
	return t, obsolete
}

// chosen returns the source that drives estimates, or SourceNone while the
// data is insufficient.
func (t sourceTable) chosen() Source {
	if t[SourceRotationVector] == Active {
		return SourceRotationVector
	}
	if t[SourceMagneticField] != Active {
		return SourceNone
	}
	if t[SourceGravity] == Active {
		return SourceGravity
	}
	if t[SourceAccelerometer] == Active {
		return SourceAccelerometer
	}
	return SourceNone
}
