package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/orizon-lang/ozc/internal/watch"
)

func TestApplyAppendsAndRestarts(t *testing.T) {
	c := watch.NewCompiler("main.oz", nil, nil, nil)
	ctx := context.Background()

	up, err := c.Apply(ctx, "func inc(x: Int) -> Int { return x + 1 }\n")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if !up.Restarted || up.Step.To != 1 {
		t.Fatalf("first update = %+v", up.Step)
	}

	first := c.Incremental()

	up, err = c.Apply(ctx, "func inc(x: Int) -> Int { return x + 1 }\nlet two = inc(1)\n")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if up.Restarted || c.Incremental() != first {
		t.Errorf("append restarted the compilation")
	}

	if up.Step.From != 1 || up.Step.To != 2 || len(up.Step.Diagnostics) != 0 {
		t.Errorf("append step = %+v", up.Step)
	}

	if up, _ := c.Apply(ctx, "func inc(x: Int) -> Int { return x + 1 }\nlet two = inc(1)\n"); up != nil {
		t.Errorf("unchanged text produced an update")
	}

	up, err = c.Apply(ctx, "func inc(x: Int) -> Int { return x + 2 }\n")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if !up.Restarted || c.Incremental() == first || up.Step.To != 1 {
		t.Errorf("edit step = %+v restarted=%v", up.Step, up.Restarted)
	}
}

func TestApplyWaitsForUnclosedElements(t *testing.T) {
	c := watch.NewCompiler("main.oz", nil, nil, nil)
	ctx := context.Background()

	up, err := c.Apply(ctx, "func f() -> Int {\n")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if !up.Step.Incomplete || len(up.Step.Diagnostics) != 0 {
		t.Fatalf("open function = %+v", up.Step)
	}

	up, err = c.Apply(ctx, "func f() -> Int {\n  return 1\n}\n")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if up.Restarted || up.Step.Incomplete || len(up.Step.Functions) != 1 {
		t.Errorf("closed function = %+v", up.Step)
	}
}

func TestWatchPicksUpWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.oz")
	if err := os.WriteFile(path, []byte("let a = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	updates := make(chan *watch.Update, 8)
	c := watch.NewCompiler(path, nil, nil, nil)

	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx, 20*time.Millisecond, func(u *watch.Update) { updates <- u }) }()

	select {
	case up := <-updates:
		if !up.Restarted {
			t.Fatalf("first update was not a fresh compilation")
		}
	case <-ctx.Done():
		t.Fatal("no initial compilation")
	}

	if err := os.WriteFile(path, []byte("let a = 1\nlet b = a + 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case up := <-updates:
		if up.Restarted || up.Step.To != 2 {
			t.Errorf("update after append = %+v restarted=%v", up.Step, up.Restarted)
		}
	case <-ctx.Done():
		t.Fatal("write was not observed")
	}

	cancel()

	if err := <-done; err != context.Canceled && err != context.DeadlineExceeded {
		t.Errorf("Watch() error = %v", err)
	}
}
