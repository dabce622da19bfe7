package badgeerr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/eventbadges/badge-engine/pkg/badgeerr"
	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := badgeerr.New(badgeerr.KindKeyValidation, "wrong prefix")

	assert.ErrorIs(t, err, badgeerr.ErrKeyValidation)
	assert.NotErrorIs(t, err, badgeerr.ErrEncoding)
}

func TestError_WrapKeepsCause(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("outer: %w", badgeerr.Wrap(badgeerr.KindEncoding, "bad hex", cause))

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, badgeerr.ErrEncoding)
	assert.Equal(t, badgeerr.KindEncoding, badgeerr.KindOf(err))
	assert.Contains(t, err.Error(), "ENCODING_ERROR: bad hex: boom")
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, badgeerr.Kind(""), badgeerr.KindOf(errors.New("plain")))

	_, ok := badgeerr.As(nil)
	assert.False(t, ok)
}
