package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stonezone/batchgen/failure"
	"github.com/stonezone/batchgen/job"
	"github.com/stonezone/batchgen/middleware"
)

// tagger records name on the way in and out of the chain.
func tagger(trail *[]string, name string) middleware.Middleware {
	return func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		*trail = append(*trail, name+">")
		err := next(ctx)
		*trail = append(*trail, "<"+name)
		return err
	}
}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestChain(t *testing.T) {
	tests := []struct {
		name  string
		mws   []string
		err   error
		trail string
	}{
		{name: "empty", trail: "callback"},
		{name: "single", mws: []string{"recover"}, trail: "recover> callback <recover"},
		{
			name:  "outermost first",
			mws:   []string{"recover", "timeout", "logging"},
			trail: "recover> timeout> logging> callback <logging <timeout <recover",
		},
		{
			name:  "error unwinds",
			mws:   []string{"a", "b"},
			err:   errors.New("500 internal server error"),
			trail: "a> b> callback <b <a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var trail []string
			mws := make([]middleware.Middleware, 0, len(tt.mws))
			for _, n := range tt.mws {
				mws = append(mws, tagger(&trail, n))
			}

			err := middleware.Chain(mws...)(context.Background(), job.New("Math_3", nil), func(context.Context) error {
				trail = append(trail, "callback")
				return tt.err
			})
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if got := strings.Join(trail, " "); got != tt.trail {
				t.Errorf("trail = %q, want %q", got, tt.trail)
			}
		})
	}
}

func TestRecover(t *testing.T) {
	logger, buf := bufferLogger()
	recoverMW := middleware.Recover(logger)

	err := recoverMW(context.Background(), job.New("Science_5", nil), func(context.Context) error {
		panic("nil map write")
	})
	if err == nil || err.Error() != "panic in job Science_5: nil map write" {
		t.Fatalf("err = %v", err)
	}
	if k := failure.Classify(err); k != failure.Unknown {
		t.Errorf("panic classified as %s, want unknown", k)
	}
	if !strings.Contains(buf.String(), "job callback panicked") {
		t.Errorf("panic not logged: %s", buf.String())
	}

	// A panic value that reads like a transient failure stays unknown.
	err = recoverMW(context.Background(), job.New("Science_5", nil), func(context.Context) error {
		panic("connection pool closed")
	})
	if k := failure.Classify(err); k != failure.Unknown {
		t.Errorf("panic classified as %s, want unknown", k)
	}

	if err := recoverMW(context.Background(), job.New("Science_5", nil), func(context.Context) error { return nil }); err != nil {
		t.Errorf("clean callback: %v", err)
	}
}

func TestLogging(t *testing.T) {
	logger, buf := bufferLogger()
	logMW := middleware.Logging(logger)
	j := job.New("Reading_4", nil)
	j.BatchID = "batch_abc"

	_ = logMW(context.Background(), j, func(context.Context) error { return nil })
	out := buf.String()
	for _, want := range []string{"job started", "job completed", "batch_id=batch_abc", "job_name=Reading_4"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	filtered := errors.New("response blocked by safety system")
	if err := logMW(context.Background(), j, func(context.Context) error { return filtered }); !errors.Is(err, filtered) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), "job failed") {
		t.Errorf("failure not logged at error level:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "error_kind=content_filter retryable=false") {
		t.Errorf("failure kind not logged:\n%s", buf.String())
	}

	buf.Reset()
	_ = logMW(context.Background(), j, func(context.Context) error { return context.Canceled })
	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "job cancelled") {
		t.Errorf("cancellation not logged at warn level:\n%s", buf.String())
	}
}

func TestTimeout(t *testing.T) {
	logger, _ := bufferLogger()

	t.Run("bounds callback", func(t *testing.T) {
		err := middleware.Timeout(logger, 20*time.Millisecond)(context.Background(), job.New("slow", nil),
			func(ctx context.Context) error {
				if _, ok := ctx.Deadline(); !ok {
					t.Error("callback context has no deadline")
				}
				<-ctx.Done()
				return ctx.Err()
			})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("err = %v, want DeadlineExceeded", err)
		}
	})

	t.Run("zero disables", func(t *testing.T) {
		err := middleware.Timeout(logger, 0)(context.Background(), job.New("free", nil),
			func(ctx context.Context) error {
				if _, ok := ctx.Deadline(); ok {
					t.Error("unexpected deadline")
				}
				return nil
			})
		if err != nil {
			t.Fatal(err)
		}
	})
}
