package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/danilofalcao/ai-relay/internal/constants"
	contextutils "github.com/danilofalcao/ai-relay/internal/utils/context"
)

var (
	Fallback = New(context.Background(), "fallback", INFO, make(chan string, 1))

	outMu  sync.Mutex
	output io.Writer = os.Stdout
)

// SetOutput redirects every logger's output. It returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	outMu.Lock()
	defer outMu.Unlock()
	prev := output
	output = w
	return prev
}

type Logger struct {
	name   string
	ctx    context.Context
	level  LogLevel
	exitCh chan string
}

func New(ctx context.Context, name string, level LogLevel, exitCh chan string) *Logger {
	return &Logger{
		name:   name,
		ctx:    ctx,
		level:  level,
		exitCh: exitCh,
	}
}

func (l *Logger) out(ctx context.Context, s string, level LogLevel) {
	ts := time.Now().Local().Format(time.DateTime)
	outMu.Lock()
	defer outMu.Unlock()
	if reqId := contextutils.GetRequestID(ctx); reqId != "" {
		fmt.Fprintf(output, "[%s][%s][%s][%s] %s\n", ts, level.String(), l.name, reqId, s)
		return
	}
	fmt.Fprintf(output, "[%s][%s][%s] %s\n", ts, level.String(), l.name, s)
}

// Name returns the component name the logger was created with
func (l *Logger) Name() string {
	return l.name
}

// Clone returns a logger for a sub-component along with ctx carrying it.
func (l *Logger) Clone(ctx context.Context, name string) (*Logger, context.Context) {
	lgr := New(l.ctx, name, l.level, l.exitCh)
	return lgr, context.WithValue(ctx, constants.LoggerKey, lgr)
}

func (l *Logger) Trace(ctx context.Context, s string) {
	if l.level > TRACE {
		return
	}
	l.out(ctx, s, TRACE)
}

func (l *Logger) Tracef(ctx context.Context, s string, args ...any) {
	l.Trace(ctx, fmt.Sprintf(s, args...))
}

func (l *Logger) Debug(ctx context.Context, s string) {
	if l.level > DEBUG {
		return
	}
	l.out(ctx, s, DEBUG)
}

func (l *Logger) Debugf(ctx context.Context, s string, args ...any) {
	l.Debug(ctx, fmt.Sprintf(s, args...))
}

func (l *Logger) Info(ctx context.Context, s string) {
	if l.level > INFO {
		return
	}
	l.out(ctx, s, INFO)
}

func (l *Logger) Infof(ctx context.Context, s string, args ...any) {
	l.Info(ctx, fmt.Sprintf(s, args...))
}

func (l *Logger) Warn(ctx context.Context, s string) {
	if l.level > WARN {
		return
	}
	l.out(ctx, s, WARN)
}

func (l *Logger) Warnf(ctx context.Context, s string, args ...any) {
	l.Warn(ctx, fmt.Sprintf(s, args...))
}

func (l *Logger) Error(ctx context.Context, s string) {
	if l.level > ERROR {
		return
	}
	l.out(ctx, s, ERROR)
}

func (l *Logger) Errorf(ctx context.Context, s string, args ...any) {
	l.Error(ctx, fmt.Sprintf(s, args...))
}

// Fatal logs s and hands it to the exit channel. It does not block if nobody
// is draining the channel.
func (l *Logger) Fatal(ctx context.Context, s string) {
	l.out(ctx, s, FATAL)
	select {
	case l.exitCh <- s:
	default:
	}
}

func (l *Logger) Fatalf(ctx context.Context, s string, args ...any) {
	l.Fatal(ctx, fmt.Sprintf(s, args...))
}
