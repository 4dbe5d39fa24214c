package interpreter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/card-scanner/internal/capture"
)

type stubCache struct {
	values  map[string]string
	getErr  error
	setErr  error
	setKeys []string
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	s.setKeys = append(s.setKeys, key)
	if s.setErr != nil {
		return s.setErr
	}
	if s.values == nil {
		s.values = map[string]string{}
	}
	s.values[key] = value.(string)
	return nil
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	if s.getErr != nil {
		return "", s.getErr
	}
	value, ok := s.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

type stubClient struct {
	result Result
	err    error
	calls  int
}

func (s *stubClient) Interpret(ctx context.Context, image capture.CapturedImage) (Result, error) {
	s.calls++
	return s.result, s.err
}

func phonesResult() Result {
	return Result{Fields: []Field{{Key: "phones", Values: []string{"555-1111"}}}}
}

func TestCachedClientServesRepeatsFromCache(t *testing.T) {
	cache := &stubCache{}
	next := &stubClient{result: phonesResult()}
	c := NewCachedClient(next, cache, time.Minute, zap.NewNop())
	img := writeImage(t, "same-bytes")

	for i := 0; i < 2; i++ {
		result, err := c.Interpret(context.Background(), img)
		if err != nil {
			t.Fatalf("expected success, got error: %v", err)
		}
		if values, _ := result.Get("phones"); len(values) != 1 || values[0] != "555-1111" {
			t.Fatalf("unexpected result: %+v", result)
		}
	}
	if next.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", next.calls)
	}
	if len(cache.setKeys) != 1 {
		t.Fatalf("expected one cache write, got %d", len(cache.setKeys))
	}
}

func TestCachedClientSkipsEmptyAndFailedResults(t *testing.T) {
	cache := &stubCache{}
	img := writeImage(t, "bytes")

	empty := NewCachedClient(&stubClient{}, cache, time.Minute, zap.NewNop())
	if _, err := empty.Interpret(context.Background(), img); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	failure := &Failure{Kind: KindTransport, Err: errors.New("timeout")}
	failing := NewCachedClient(&stubClient{err: failure}, cache, time.Minute, zap.NewNop())
	if _, err := failing.Interpret(context.Background(), img); !errors.Is(err, failure) {
		t.Fatalf("expected failure to pass through, got %v", err)
	}

	if len(cache.setKeys) != 0 {
		t.Fatalf("expected no cache writes, got %v", cache.setKeys)
	}
}

func TestCachedClientBypassesBrokenCache(t *testing.T) {
	cache := &stubCache{getErr: errors.New("redis down"), setErr: errors.New("redis down")}
	next := &stubClient{result: phonesResult()}
	c := NewCachedClient(next, cache, time.Minute, zap.NewNop())

	result, err := c.Interpret(context.Background(), writeImage(t, "bytes"))
	if err != nil {
		t.Fatalf("cache errors must not surface, got %v", err)
	}
	if result.Empty() || next.calls != 1 {
		t.Fatalf("expected upstream result, got %+v after %d calls", result, next.calls)
	}
}
