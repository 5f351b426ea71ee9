package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/facekiosk/internal/kiosk"
	"github.com/lehigh-university-libraries/facekiosk/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(id string) *Session {
	return &Session{Controller: kiosk.New(kiosk.Services{}, kiosk.Options{SessionID: id})}
}

func TestSessionStore(t *testing.T) {
	store := New()
	a, b := newSession("a"), newSession("b")
	store.Set("b", b)
	store.Set("a", a)

	got, ok := store.Get("a")
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.Equal(t, []string{"a", "b"}, store.IDs())

	assert.True(t, store.Delete("a"))
	assert.False(t, store.Delete("a"))
	_, ok = store.Get("a")
	assert.False(t, ok)
	assert.ErrorIs(t, a.Controller.SelectCollection("x"), kiosk.ErrClosed)

	store.CloseAll()
	assert.Equal(t, 0, store.Len())
	assert.ErrorIs(t, b.Controller.SelectCollection("x"), kiosk.ErrClosed)
}

func TestSetClosesReplacedController(t *testing.T) {
	store := New()
	old := newSession("a")
	store.Set("a", old)
	store.Set("a", newSession("a"))
	assert.ErrorIs(t, old.Controller.SelectCollection("x"), kiosk.ErrClosed)
}

func TestNoticesAreBounded(t *testing.T) {
	s := newSession("a")
	for i := range MaxNotices + 5 {
		s.AddNotice(models.Notice{Level: models.NoticeInfo, Message: fmt.Sprintf("n%d", i)})
	}
	notices := s.Notices()
	require.Len(t, notices, MaxNotices)
	assert.Equal(t, "n5", notices[0].Message)
	assert.Equal(t, fmt.Sprintf("n%d", MaxNotices+4), notices[MaxNotices-1].Message)
}

func TestExpireRemovesIdleSessions(t *testing.T) {
	store := New()
	idle, busy := newSession("idle"), newSession("busy")
	store.Set("idle", idle)
	store.Set("busy", busy)
	assert.Empty(t, store.Expire(time.Now().Add(-time.Minute)))

	cutoff := time.Now().Add(time.Millisecond)
	time.Sleep(2 * time.Millisecond)
	busy.Touch()

	assert.Equal(t, []string{"idle"}, store.Expire(cutoff))
	assert.Equal(t, []string{"busy"}, store.IDs())
	assert.ErrorIs(t, idle.Controller.SelectCollection("x"), kiosk.ErrClosed)
	assert.NoError(t, busy.Controller.SelectCollection("x"))
}
