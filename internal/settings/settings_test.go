package settings

import (
	"context"
	"testing"
	"time"

	"github.com/Azelphur/Monord/internal/repository"
	"github.com/Azelphur/Monord/internal/storage"
)

func newService(t *testing.T) *Service {
	t.Helper()
	db, err := storage.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(repository.NewChatConfigRepository(db))
}

func TestResolveDefaults(t *testing.T) {
	t.Parallel()
	s := newService(t)
	ctx := context.Background()

	v, err := s.Resolve(ctx, 100, 0)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if v.Mirror || v.Subscriptions {
		t.Fatalf("defaults should be off, got mirror=%v subscriptions=%v", v.Mirror, v.Subscriptions)
	}
	if v.Timezone != time.UTC {
		t.Fatalf("default timezone = %v, want UTC", v.Timezone)
	}
	if v.Region != nil || v.DeleteAfterDespawn != nil {
		t.Fatalf("region and delete_after_despawn should default to nil")
	}
}

func TestCascadePerKey(t *testing.T) {
	t.Parallel()
	s := newService(t)
	ctx := context.Background()

	// Chat-wide: mirror on, timezone London.
	if err := s.Set(ctx, 100, 0, KeyMirror, "on"); err != nil {
		t.Fatalf("set chat mirror: %v", err)
	}
	if err := s.Set(ctx, 100, 0, KeyTimezone, "Europe/London"); err != nil {
		t.Fatalf("set chat timezone: %v", err)
	}
	// Thread 7: mirror off, timezone left unset.
	if err := s.Set(ctx, 100, 7, KeyMirror, "off"); err != nil {
		t.Fatalf("set thread mirror: %v", err)
	}

	v, err := s.Resolve(ctx, 100, 7)
	if err != nil {
		t.Fatalf("resolve thread: %v", err)
	}
	if v.Mirror {
		t.Fatalf("thread override should win: mirror = true, want false")
	}
	if got := v.Timezone.String(); got != "Europe/London" {
		t.Fatalf("timezone should fall through to chat: got %q", got)
	}

	// The chat-wide view is untouched by the thread record.
	v, err = s.Resolve(ctx, 100, 0)
	if err != nil {
		t.Fatalf("resolve chat: %v", err)
	}
	if !v.Mirror {
		t.Fatalf("chat-wide mirror should still be on")
	}
}

func TestUnsetRestoresCascade(t *testing.T) {
	t.Parallel()
	s := newService(t)
	ctx := context.Background()

	if err := s.Set(ctx, 200, 0, KeySubscriptions, "on"); err != nil {
		t.Fatalf("set chat: %v", err)
	}
	if err := s.Set(ctx, 200, 3, KeySubscriptions, "off"); err != nil {
		t.Fatalf("set thread: %v", err)
	}
	if err := s.Set(ctx, 200, 3, KeySubscriptions, "unset"); err != nil {
		t.Fatalf("unset thread: %v", err)
	}

	v, err := s.Resolve(ctx, 200, 3)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !v.Subscriptions {
		t.Fatalf("after unset, thread should inherit chat-wide on")
	}
}

func TestSetValidation(t *testing.T) {
	t.Parallel()
	s := newService(t)
	ctx := context.Background()

	cases := []struct {
		key string
		raw string
	}{
		{KeyMirror, "maybe"},
		{KeyTimezone, "Mars/Olympus"},
		{KeyRegion, "{not json"},
		{KeyDeleteAfterDespawn, "-5"},
		{KeyDeleteAfterDespawn, "soon"},
		{"unknown_key", "1"},
	}
	for _, tc := range cases {
		if err := s.Set(ctx, 300, 0, tc.key, tc.raw); err == nil {
			t.Fatalf("Set(%s, %q) should have failed", tc.key, tc.raw)
		}
	}
}

func TestRegionAndDeleteAfter(t *testing.T) {
	t.Parallel()
	s := newService(t)
	ctx := context.Background()

	poly := `[[[0.0, 0.0], [2.0, 0.0], [2.0, 2.0], [0.0, 2.0]]]`
	if err := s.Set(ctx, 400, 0, KeyRegion, poly); err != nil {
		t.Fatalf("set region: %v", err)
	}
	if err := s.Set(ctx, 400, 0, KeyDeleteAfterDespawn, "30"); err != nil {
		t.Fatalf("set delete_after_despawn: %v", err)
	}

	v, err := s.Resolve(ctx, 400, 0)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if v.Region == nil {
		t.Fatalf("region should be set")
	}
	if v.DeleteAfterDespawn == nil || *v.DeleteAfterDespawn != 30*time.Minute {
		t.Fatalf("delete_after_despawn = %v, want 30m", v.DeleteAfterDespawn)
	}
}
