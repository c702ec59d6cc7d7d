package crud

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestWrap_Classifies(t *testing.T) {
	netErr := mongo.CommandError{Code: 6, Message: "host unreachable", Labels: []string{"NetworkError"}}
	err := wrap("getAll", netErr)
	require.ErrorIs(t, err, ErrStorage)
	require.NotErrorIs(t, err, ErrValidation)

	var ce mongo.CommandError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, int32(6), ce.Code)

	err = wrap("count", fmt.Errorf("server selection: %w", context.DeadlineExceeded))
	require.ErrorIs(t, err, ErrStorage)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	err = wrap("create", mongo.CommandError{Code: 121, Message: "Document failed validation"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestWrap_LeavesOtherErrorsUnclassified(t *testing.T) {
	boom := errors.New("boom")
	err := wrap("delete", boom)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrStorage)
	require.Equal(t, "delete: boom", err.Error())

	err = wrap("update", context.Canceled)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrStorage)

	require.NoError(t, wrap("getOne", nil))
}

func TestWrap_DoesNotRewrapKinds(t *testing.T) {
	inner := &Error{Op: "getById", Kind: ErrInvalidIdentifier, Err: errors.New("bad hex")}
	require.Same(t, inner, wrap("getOne", inner))
}

func TestError_Message(t *testing.T) {
	e := &Error{Op: "create", Kind: ErrValidation, Err: errors.New("name is required")}
	require.Equal(t, "create: validation failed: name is required", e.Error())
	require.Equal(t, "create: validation failed", (&Error{Op: "create", Kind: ErrValidation}).Error())
}
