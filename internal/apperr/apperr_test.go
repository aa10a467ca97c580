package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"finbot/internal/i18n"
)

func TestFromError_WrapsUnknown(t *testing.T) {
	cause := errors.New("pq: connection reset")
	e := FromError(cause)
	require.Equal(t, CodeInternal, e.Code)
	require.ErrorIs(t, e, cause)
	require.Equal(t, i18n.InternalError, e.Message)
	require.NotContains(t, e.Message.In(i18n.EN), "connection reset")
}

func TestFromError_KeepsDomainError(t *testing.T) {
	inner := New(CodeForbidden, errors.New("account owned by other user"))
	wrapped := fmt.Errorf("create transaction: %w", inner)
	e := FromError(wrapped)
	require.Same(t, inner, e)
	require.Equal(t, CodeForbidden, CodeOf(wrapped))
}

func TestFromError_Nil(t *testing.T) {
	require.Nil(t, FromError(nil))
	require.Equal(t, Code(""), CodeOf(nil))
}

func TestError_Message(t *testing.T) {
	require.Equal(t, "apperr: NOT_FOUND", New(CodeNotFound, nil).Error())
	require.Equal(t, "apperr: CONFLICT: dup", New(CodeConflict, errors.New("dup")).Error())
}
