package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// conversationStore is the method set shared by every backend.
type conversationStore interface {
	CreateSession(ctx context.Context) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	SessionExists(ctx context.Context, id string) (bool, error)
	AppendMessage(ctx context.Context, sessionID, role, content string) (Message, error)
	AppendMessages(ctx context.Context, sessionID string, msgs ...NewMessage) ([]Message, error)
	ListMessages(ctx context.Context, sessionID string) ([]Message, error)
	Close() error
}

var (
	_ conversationStore = (*SQLiteStore)(nil)
	_ conversationStore = (*PostgresStore)(nil)
)

// runStoreSuite exercises behaviour every backend must share.
func runStoreSuite(t *testing.T, open func(t *testing.T) conversationStore) {
	t.Run("CreateAndGetSession", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		sess, err := s.CreateSession(ctx)
		if err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		if len(sess.ID) != 36 {
			t.Errorf("session id %q is not a UUID", sess.ID)
		}
		got, err := s.GetSession(ctx, sess.ID)
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if got.ID != sess.ID || got.CreatedAt.IsZero() {
			t.Errorf("GetSession = %+v, want %+v", got, sess)
		}
		ok, err := s.SessionExists(ctx, sess.ID)
		if err != nil || !ok {
			t.Errorf("SessionExists = %v, %v", ok, err)
		}
	})

	t.Run("UnknownSession", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		if _, err := s.GetSession(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetSession err = %v, want ErrNotFound", err)
		}
		ok, err := s.SessionExists(ctx, "nope")
		if err != nil || ok {
			t.Errorf("SessionExists = %v, %v", ok, err)
		}
		if _, err := s.AppendMessage(ctx, "nope", RoleUser, "hi"); !errors.Is(err, ErrNotFound) {
			t.Errorf("AppendMessage err = %v, want ErrNotFound", err)
		}
		msgs, err := s.ListMessages(ctx, "nope")
		if err != nil || len(msgs) != 0 {
			t.Errorf("ListMessages = %v, %v", msgs, err)
		}
	})

	t.Run("AppendAndListInOrder", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		sess, _ := s.CreateSession(ctx)

		if _, err := s.AppendMessage(ctx, sess.ID, RoleUser, "first"); err != nil {
			t.Fatal(err)
		}
		pair, err := s.AppendMessages(ctx, sess.ID,
			NewMessage{Role: RoleUser, Content: "second"},
			NewMessage{Role: RoleBot, Content: "third"},
		)
		if err != nil {
			t.Fatalf("AppendMessages: %v", err)
		}
		if len(pair) != 2 || pair[0].ID >= pair[1].ID {
			t.Fatalf("ids not increasing: %+v", pair)
		}

		msgs, err := s.ListMessages(ctx, sess.ID)
		if err != nil {
			t.Fatalf("ListMessages: %v", err)
		}
		want := []string{"first", "second", "third"}
		if len(msgs) != len(want) {
			t.Fatalf("len = %d, want %d", len(msgs), len(want))
		}
		for i, m := range msgs {
			if m.Content != want[i] {
				t.Errorf("msgs[%d] = %q, want %q", i, m.Content, want[i])
			}
			if m.SessionID != sess.ID {
				t.Errorf("msgs[%d].SessionID = %q", i, m.SessionID)
			}
			if i > 0 {
				prev := msgs[i-1]
				if m.Timestamp.Before(prev.Timestamp) || (m.Timestamp.Equal(prev.Timestamp) && m.ID <= prev.ID) {
					t.Errorf("msgs[%d] out of order relative to msgs[%d]", i, i-1)
				}
			}
		}
		if msgs[2].Role != RoleBot || msgs[1].Role != RoleUser {
			t.Errorf("roles = %q, %q", msgs[1].Role, msgs[2].Role)
		}
	})

	t.Run("InvalidRoleWritesNothing", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		sess, _ := s.CreateSession(ctx)

		_, err := s.AppendMessages(ctx, sess.ID,
			NewMessage{Role: RoleUser, Content: "ok"},
			NewMessage{Role: "assistant", Content: "bad"},
		)
		if !errors.Is(err, ErrInvalidRole) {
			t.Fatalf("err = %v, want ErrInvalidRole", err)
		}
		msgs, _ := s.ListMessages(ctx, sess.ID)
		if len(msgs) != 0 {
			t.Errorf("partial write: %d messages stored", len(msgs))
		}
	})

	t.Run("SessionsAreIsolated", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		a, _ := s.CreateSession(ctx)
		b, _ := s.CreateSession(ctx)
		if a.ID == b.ID {
			t.Fatal("duplicate session ids")
		}
		s.AppendMessage(ctx, a.ID, RoleUser, "for a")
		msgs, _ := s.ListMessages(ctx, b.ID)
		if len(msgs) != 0 {
			t.Errorf("session b sees %d messages from a", len(msgs))
		}
	})

	t.Run("ConcurrentAppends", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		sess, _ := s.CreateSession(ctx)

		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.AppendMessages(ctx, sess.ID,
					NewMessage{Role: RoleUser, Content: "q"},
					NewMessage{Role: RoleBot, Content: "a"},
				)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("AppendMessages: %v", err)
			}
		}

		msgs, err := s.ListMessages(ctx, sess.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) != 2*workers {
			t.Fatalf("len = %d, want %d", len(msgs), 2*workers)
		}
		for i := 0; i < len(msgs); i += 2 {
			if msgs[i].Role != RoleUser || msgs[i+1].Role != RoleBot {
				t.Errorf("pair at %d interleaved: %q, %q", i, msgs[i].Role, msgs[i+1].Role)
			}
		}
	})
}
