package streamerr

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := New(KindAuth, "invalid stream key: %s", "abd")
	assert.Equal(t, KindAuth, KindOf(err))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))

	wrapped := fmt.Errorf("handling publish: %w", err)
	assert.Equal(t, KindAuth, KindOf(wrapped))
}

func TestWrapPreservesCause(t *testing.T) {
	err := Wrap(KindIO, io.ErrUnexpectedEOF, "reading chunk")
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, KindIO, KindOf(err))

	assert.Nil(t, Wrap(KindIO, nil, "no-op"))
}

func TestSentinels(t *testing.T) {
	assert.Equal(t, KindConnectionClosed, KindOf(ErrConnectionClosed))
	assert.Equal(t, KindTimeout, KindOf(ErrTimeout))
	assert.True(t, Is(fmt.Errorf("push: %w", ErrConnectionClosed), KindConnectionClosed))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(New(KindStreamNotFound, "no such stream")))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(New(KindAuth, "denied")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(New(KindSerialization, "bad json")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}
