package crud

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

// Error kinds surfaced by BaseService. Match them with errors.Is; the driver
// error stays reachable through errors.As / errors.Unwrap.
var (
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrValidation        = errors.New("validation failed")
	ErrStorage           = errors.New("storage unavailable")
)

// documentValidationFailure is the server error code for $jsonSchema / validator rejections.
const documentValidationFailure = 121

// Error records the failed operation, the kind of failure and the underlying cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.Kind }

// wrap classifies a driver error. Errors that fit no kind are returned
// unchanged, wrapped only with the operation name.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidIdentifier):
		return err
	case isValidationFailure(err):
		return &Error{Op: op, Kind: ErrValidation, Err: err}
	case isStorageFailure(err):
		return &Error{Op: op, Kind: ErrStorage, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isValidationFailure(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == documentValidationFailure {
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == documentValidationFailure {
		return true
	}
	return false
}

func isStorageFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return mongo.IsNetworkError(err) ||
		mongo.IsTimeout(err) ||
		errors.Is(err, mongo.ErrClientDisconnected)
}
