package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/searchgate/internal/db/redis"
)

// --- fake store ---

type fakeKV struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newFakeKV() *fakeKV {
	return &fakeKV{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKV) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.values[key] = string(value)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeKV) Del(_ context.Context, key string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.values, key)
	return nil
}

func (f *fakeKV) Exists(_ context.Context, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.values[key]
	return ok, nil
}

func TestRegisterRemove(t *testing.T) {
	kv := newFakeKV()
	s := New(kv, time.Hour)
	created := time.Unix(1700000000, 0)

	if err := s.Register(context.Background(), "abc", created); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got := kv.values["searchgate:session:abc"]; got != "1700000000" {
		t.Errorf("value = %q", got)
	}
	if got := kv.ttls["searchgate:session:abc"]; got != time.Hour {
		t.Errorf("ttl = %v", got)
	}

	ok, err := s.Exists(context.Background(), "abc")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}

	if err := s.Remove(context.Background(), "abc"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if ok, _ := s.Exists(context.Background(), "abc"); ok {
		t.Error("expected key removed")
	}
}

func TestErrorsWrapped(t *testing.T) {
	kv := newFakeKV()
	kv.err = errors.New("boom")
	s := New(kv, time.Minute)

	if err := s.Register(context.Background(), "x", time.Now()); !errors.Is(err, kv.err) {
		t.Errorf("Register err = %v", err)
	}
	if err := s.Remove(context.Background(), "x"); !errors.Is(err, kv.err) {
		t.Errorf("Remove err = %v", err)
	}
	if _, err := s.Exists(context.Background(), "x"); !errors.Is(err, kv.err) {
		t.Errorf("Exists err = %v", err)
	}
}

func TestRegister_RedisCommand(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("SET", "searchgate:session:s1", "1700000000", "EX", "86400")).
		Return(mock.Result(mock.RedisString("OK")))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("DEL", "searchgate:session:s1")).
		Return(mock.Result(mock.RedisInt64(1)))

	s := New(redis.NewStoreForTest(c), 24*time.Hour)
	if err := s.Register(context.Background(), "s1", time.Unix(1700000000, 0)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Remove(context.Background(), "s1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
}
