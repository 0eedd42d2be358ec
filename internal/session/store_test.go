package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"event-bot/internal/models"
)

type StoreSuite struct {
	suite.Suite
	store *Store
	clock time.Time
}

func (s *StoreSuite) SetupTest() {
	s.clock = time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)
	s.store = New(30 * time.Minute)
	s.store.now = func() time.Time { return s.clock }
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) TestGetOrCreate() {
	s.Run("creates a session at StepNone", func() {
		sess := s.store.GetOrCreate(42)
		s.Equal(int64(42), sess.ParticipantID)
		s.Equal(StepNone, sess.Step)
		s.Equal(s.clock, sess.CreatedAt)
	})

	s.Run("returns the existing session", func() {
		first := s.store.GetOrCreate(7)
		first.SetStep(StepPhone)
		again := s.store.GetOrCreate(7)
		s.Same(first, again)
		s.Equal(StepPhone, again.Step)
	})

	s.Run("clear destroys the session", func() {
		s.store.GetOrCreate(9)
		s.store.Clear(9)
		_, ok := s.store.Get(9)
		s.False(ok)
	})
}

func (s *StoreSuite) TestFields() {
	sess := s.store.GetOrCreate(1)

	_, ok := sess.Field(FieldFirstName)
	s.False(ok)

	sess.SetField(FieldFirstName, "Sara")
	sess.SetField(FieldPhone, "09123456789")
	v, ok := sess.Field(FieldFirstName)
	s.True(ok)
	s.Equal("Sara", v)
	s.Equal("09123456789", sess.Draft.Phone)

	s.Run("receipt fields are exclusive", func() {
		sess.SetField(FieldReceiptRef, "receipts/a.jpg")
		sess.SetField(FieldReceiptText, "tx 1234")
		s.Equal(models.Evidence{Text: "tx 1234"}, sess.Draft.Evidence)
		_, ok := sess.Field(FieldReceiptRef)
		s.False(ok)
	})

	s.Run("reset clears the buffer but keeps the event", func() {
		sess.EventID = 5
		sess.Reset()
		s.Equal(Draft{}, sess.Draft)
		s.Equal(int64(5), sess.EventID)
	})
}

func (s *StoreSuite) TestSweep() {
	idle := s.store.GetOrCreate(1)
	s.store.GetOrCreate(3)
	s.clock = s.clock.Add(20 * time.Minute)
	fresh := s.store.GetOrCreate(2)
	s.store.Touch(fresh)

	unlock := s.store.Lock(3)
	defer unlock()

	s.clock = s.clock.Add(15 * time.Minute)
	evicted := s.store.Sweep(s.clock)
	s.Require().Len(evicted, 1)
	s.Equal(idle.ParticipantID, evicted[0].ParticipantID)

	_, ok := s.store.Get(idle.ParticipantID)
	s.False(ok, "idle session should be evicted")
	_, ok = s.store.Get(2)
	s.True(ok)
	_, ok = s.store.Get(3)
	s.True(ok, "locked session must survive the sweep")
}

func (s *StoreSuite) TestSweepDisabledWithoutTTL() {
	store := New(0)
	store.GetOrCreate(1)
	s.Empty(store.Sweep(time.Now().Add(365 * 24 * time.Hour)))
	s.Equal(1, store.Len())
}

func (s *StoreSuite) TestLockSerializesOneParticipant() {
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.store.Lock(100)
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	s.Equal(int32(1), maxInside)

	s.store.mu.Lock()
	s.Empty(s.store.locks, "lock entries are released")
	s.store.mu.Unlock()
}

func (s *StoreSuite) TestLocksAreIndependentAcrossParticipants() {
	unlockA := s.store.Lock(1)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := s.store.Lock(2)
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("participant 2 blocked on participant 1's lock")
	}
}

func (s *StoreSuite) TestUnlockIsIdempotent() {
	unlock := s.store.Lock(5)
	unlock()
	unlock()
	relock := s.store.Lock(5)
	relock()
}
