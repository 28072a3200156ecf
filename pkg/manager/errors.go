package manager

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/graphstate/pkg/blob"
	"github.com/odvcencio/graphstate/pkg/bundle"
	"github.com/odvcencio/graphstate/pkg/object"
)

var (
	ErrUnknownID          = errors.New("unknown object id")
	ErrStaleObject        = errors.New("tracked object was released")
	ErrUnknownType        = errors.New("no codec registered")
	ErrNotConstructed     = errors.New("object not constructed")
	ErrConstructionFailed = errors.New("construction failed")
	ErrCyclicResolution   = errors.New("cyclic references cannot be resolved")
	ErrExtractionFailed   = errors.New("extraction failed")
	ErrNoState            = errors.New("no state record")

	// ErrBlobIntegrity matches *BlobIntegrityError.
	ErrBlobIntegrity = blob.ErrIntegrity
	// ErrIncompleteClosure matches *IncompleteClosureError.
	ErrIncompleteClosure = bundle.ErrIncompleteClosure
)

// BlobIntegrityError reports a blob whose bytes do not match its hash.
type BlobIntegrityError = blob.IntegrityError

// IncompleteClosureError reports references that leave an exported closure.
type IncompleteClosureError = bundle.IncompleteClosureError

// UnknownIDError reports a lookup of an id that was never registered or
// imported.
type UnknownIDError struct {
	ID object.ObjectID
}

func (e *UnknownIDError) Error() string {
	return fmt.Sprintf("object %d: %s", e.ID, ErrUnknownID)
}

func (e *UnknownIDError) Is(target error) bool {
	return target == ErrUnknownID
}

// StaleObjectError reports an id whose tracked object has been released by
// its owner.
type StaleObjectError struct {
	ID   object.ObjectID
	Type object.TypeTag
}

func (e *StaleObjectError) Error() string {
	return fmt.Sprintf("object %d (%s): %s", e.ID, e.Type, ErrStaleObject)
}

func (e *StaleObjectError) Is(target error) bool {
	return target == ErrStaleObject
}

// UnknownTypeError reports an object or record with no codec.
type UnknownTypeError struct {
	Type   object.TypeTag
	GoType string
}

func (e *UnknownTypeError) Error() string {
	if e.GoType != "" {
		return fmt.Sprintf("%s for Go type %s", ErrUnknownType, e.GoType)
	}
	return fmt.Sprintf("%s for type %q", ErrUnknownType, e.Type)
}

func (e *UnknownTypeError) Is(target error) bool {
	return target == ErrUnknownType
}

// ExtractionError wraps a codec failure while snapshotting one object.
type ExtractionError struct {
	ID   object.ObjectID
	Type object.TypeTag
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract object %d (%s): %v", e.ID, e.Type, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtractionFailed
}

// ConstructionFailedError reports an id that could not be reconstructed.
// DependsOn is set when the id was skipped because an object it references
// failed first.
type ConstructionFailedError struct {
	ID        object.ObjectID
	Type      object.TypeTag
	DependsOn object.ObjectID
	Err       error
}

func (e *ConstructionFailedError) Error() string {
	if e.DependsOn != object.NoObject {
		return fmt.Sprintf("construct object %d (%s): dependency %d failed", e.ID, e.Type, e.DependsOn)
	}
	return fmt.Sprintf("construct object %d (%s): %v", e.ID, e.Type, e.Err)
}

func (e *ConstructionFailedError) Unwrap() error {
	return e.Err
}

func (e *ConstructionFailedError) Is(target error) bool {
	return target == ErrConstructionFailed
}

// CyclicResolutionError reports a reference cycle containing objects whose
// codecs cannot allocate placeholders.
type CyclicResolutionError struct {
	IDs     []object.ObjectID
	Missing []object.TypeTag
}

func (e *CyclicResolutionError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = id.String()
	}
	types := make([]string, len(e.Missing))
	for i, t := range e.Missing {
		types[i] = string(t)
	}
	return fmt.Sprintf("%s: cycle [%s] includes types without New: %s",
		ErrCyclicResolution, strings.Join(ids, " "), strings.Join(types, ", "))
}

func (e *CyclicResolutionError) Is(target error) bool {
	return target == ErrCyclicResolution
}
