package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/e7canasta/senyas-gesture/internal/logging"
)

// stubList is an in-memory List with injectable failures.
type stubList struct {
	items   []string
	lpushes int
	errs    []error // consumed by LPush, in order
}

func (l *stubList) LPush(_ context.Context, _ string, value string) error {
	l.lpushes++
	if len(l.errs) > 0 {
		err := l.errs[0]
		l.errs = l.errs[1:]
		if err != nil {
			return err
		}
	}
	l.items = append([]string{value}, l.items...)
	return nil
}

func (l *stubList) LTrim(_ context.Context, _ string, start, stop int64) error {
	if int(stop)+1 < len(l.items) {
		l.items = l.items[start : stop+1]
	}
	return nil
}

func (l *stubList) LRange(context.Context, string, int64, int64) ([]string, error) {
	return append([]string(nil), l.items...), nil
}

func (l *stubList) LRem(_ context.Context, _ string, _ int64, value string) (int64, error) {
	var kept []string
	var n int64
	for _, it := range l.items {
		if it == value {
			n++
			continue
		}
		kept = append(kept, it)
	}
	l.items = kept
	return n, nil
}

func (l *stubList) Del(context.Context, string) error {
	l.items = nil
	return nil
}

type transientErr struct{}

func (transientErr) Error() string   { return "redis transient" }
func (transientErr) Timeout() bool   { return true }
func (transientErr) Temporary() bool { return true }

func texts(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Text
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// storeContract runs the behavior every Store must share.
func storeContract(t *testing.T, newStore func(max int) Store) {
	ctx := context.Background()

	t.Run("newest first", func(t *testing.T) {
		s := newStore(50)
		for i, text := range []string{"hello", "thanks", "yes"} {
			if err := s.Add(ctx, Entry{Text: text, TimestampMs: int64(i)}); err != nil {
				t.Fatal(err)
			}
		}
		got, _ := s.List(ctx)
		if want := []string{"yes", "thanks", "hello"}; !equal(texts(got), want) {
			t.Errorf("List = %v, want %v", texts(got), want)
		}
	})

	t.Run("capped", func(t *testing.T) {
		s := newStore(3)
		for i := 0; i < 5; i++ {
			_ = s.Add(ctx, Entry{Text: fmt.Sprintf("t%d", i), TimestampMs: int64(i)})
		}
		got, _ := s.List(ctx)
		if want := []string{"t4", "t3", "t2"}; !equal(texts(got), want) {
			t.Errorf("List = %v, want %v", texts(got), want)
		}
	})

	t.Run("delete by text removes all matches", func(t *testing.T) {
		s := newStore(50)
		_ = s.Add(ctx, Entry{Text: "hello", TimestampMs: 1})
		_ = s.Add(ctx, Entry{Text: "yes", TimestampMs: 2})
		_ = s.Add(ctx, Entry{Text: "hello", TimestampMs: 3})

		n, err := s.DeleteByText(ctx, "hello")
		if err != nil {
			t.Fatal(err)
		}
		if n != 2 {
			t.Errorf("removed %d, want 2", n)
		}
		got, _ := s.List(ctx)
		if want := []string{"yes"}; !equal(texts(got), want) {
			t.Errorf("List = %v, want %v", texts(got), want)
		}

		if n, _ := s.DeleteByText(ctx, "absent"); n != 0 {
			t.Errorf("removed %d for absent text", n)
		}
	})

	t.Run("clear", func(t *testing.T) {
		s := newStore(50)
		_ = s.Add(ctx, Entry{Text: "hello"})
		if err := s.Clear(ctx); err != nil {
			t.Fatal(err)
		}
		if got, _ := s.List(ctx); len(got) != 0 {
			t.Errorf("List after Clear = %v", got)
		}
	})

	t.Run("empty text rejected", func(t *testing.T) {
		if err := newStore(50).Add(ctx, Entry{}); !errors.Is(err, ErrEmptyText) {
			t.Errorf("Add(empty) = %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(max int) Store { return NewMemoryStore(max) })
}

func TestRedisStore(t *testing.T) {
	storeContract(t, func(max int) Store {
		s, err := NewRedisStore(&stubList{}, RedisConfig{Key: "senyas:history:test", MaxItems: max})
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}

func TestMemoryStore_DefaultCap(t *testing.T) {
	s := NewMemoryStore(0)
	for i := 0; i < DefaultMaxItems+10; i++ {
		_ = s.Add(context.Background(), Entry{Text: "x"})
	}
	got, _ := s.List(context.Background())
	if len(got) != DefaultMaxItems {
		t.Errorf("len = %d, want %d", len(got), DefaultMaxItems)
	}
}

func TestRedisStore_StoresJSON(t *testing.T) {
	list := &stubList{}
	s, _ := NewRedisStore(list, RedisConfig{Key: "k"})
	if err := s.Add(context.Background(), Entry{Text: "hello", TimestampMs: 1700000000000}); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(list.items[0]), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["text"] != "hello" || decoded["timestamp"] != float64(1700000000000) {
		t.Errorf("stored %s", list.items[0])
	}
}

func TestRedisStore_SkipsMalformed(t *testing.T) {
	list := &stubList{items: []string{`{"text":"ok","timestamp":1}`, "not json"}}
	s, _ := NewRedisStore(list, RedisConfig{Key: "k"})
	got, err := s.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !equal(texts(got), []string{"ok"}) {
		t.Errorf("List = %v", texts(got))
	}
}

func TestRedisStore_RetriesTransient(t *testing.T) {
	list := &stubList{errs: []error{transientErr{}}}
	s, _ := NewRedisStore(list, RedisConfig{Key: "k", InitialBackoff: time.Millisecond})
	if err := s.Add(context.Background(), Entry{Text: "hello"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if list.lpushes != 2 {
		t.Errorf("lpush attempts = %d, want 2", list.lpushes)
	}
}

func TestRedisStore_PermanentErrorNotRetried(t *testing.T) {
	boom := errors.New("WRONGTYPE")
	list := &stubList{errs: []error{boom}}
	s, _ := NewRedisStore(list, RedisConfig{Key: "k", InitialBackoff: time.Millisecond})

	err := s.Add(context.Background(), Entry{Text: "hello"})
	if !errors.Is(err, boom) {
		t.Fatalf("Add = %v, want wrapped WRONGTYPE", err)
	}
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) || opErr.Operation != "history.add" {
		t.Errorf("expected OperationError for history.add, got %v", err)
	}
	if list.lpushes != 1 {
		t.Errorf("lpush attempts = %d, want 1", list.lpushes)
	}
}

func TestNewRedisStore_Validation(t *testing.T) {
	if _, err := NewRedisStore(nil, RedisConfig{Key: "k"}); err == nil {
		t.Error("expected error for nil list")
	}
	if _, err := NewRedisStore(&stubList{}, RedisConfig{}); err == nil {
		t.Error("expected error for empty key")
	}
}
