package cache

import (
	"context"
	"fmt"
)

// State is the derived validity of a project's cache
type State int

const (
	// StateAbsent means no complete record has been committed
	StateAbsent State = iota
	// StateValid means the committed hash matches the current inputs
	StateValid
	// StateInvalid means the inputs changed since the last commit
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateValid:
		return "valid"
	case StateInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Verdict is the outcome of a validity check
type Verdict struct {
	State State

	// Stored is the committed hash, empty when absent
	Stored string

	// Current is the freshly computed hash, empty when hashing failed
	Current string

	// HashErr is set when a strict calculator could not read an input.
	// The verdict is then never valid.
	HashErr error

	Record *Record
}

// Valid reports whether a full rebuild can be skipped
func (v Verdict) Valid() bool {
	return v.State == StateValid
}

// Oracle compares the committed fingerprint against the current inputs
type Oracle struct {
	Store      *Store
	Calculator *Calculator
}

// NewOracle creates an oracle over a store and calculator
func NewOracle(store *Store, calc *Calculator) *Oracle {
	return &Oracle{Store: store, Calculator: calc}
}

// IsValid reports whether the project's cache matches its current inputs
func (o *Oracle) IsValid(ctx context.Context, projectName string) (bool, error) {
	v, err := o.Check(ctx, projectName)
	if err != nil {
		return false, err
	}

	return v.Valid(), nil
}

// Check loads the record and compares it with a fresh fingerprint
func (o *Oracle) Check(ctx context.Context, projectName string) (Verdict, error) {
	rec, err := o.Store.Load(ctx, projectName)
	if err != nil {
		return Verdict{}, err
	}

	return o.compare(projectName, rec), nil
}

// CheckSession is Check for a caller already holding the project's lock
func (o *Oracle) CheckSession(session *Session) Verdict {
	return o.compare(session.Project(), session.Load())
}

func (o *Oracle) compare(projectName string, rec *Record) Verdict {
	if rec == nil {
		return Verdict{State: StateAbsent}
	}

	v := Verdict{
		Stored: rec.Fingerprint.DependencyHash,
		Record: rec,
	}

	fp, err := o.Calculator.Fingerprint(projectName)
	if err != nil {
		v.State = StateInvalid
		v.HashErr = err
		return v
	}

	v.Current = fp.DependencyHash

	if !fp.Degraded && v.Current == v.Stored {
		v.State = StateValid
	} else {
		v.State = StateInvalid
	}

	return v
}
