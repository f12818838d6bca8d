package cli

import (
	"context"
	"io"
	stdlog "log"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger はタイムスタンプ付きのロガーを作成します。
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// engineLogger は面付けエンジンに渡す標準ロガーです。
// エンジンのメッセージはソースのスキップ通知なので警告レベルで出力します。
func engineLogger(l *log.Logger) *stdlog.Logger {
	return l.StandardLog(log.StandardLogOptions{ForceLevel: log.WarnLevel})
}

type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done は経過時間付きで完了を記録します。
func (p *progress) done(msg string, keyvals ...any) {
	keyvals = append(keyvals, "elapsed", time.Since(p.start).Round(time.Millisecond))
	p.logger.Info(msg, keyvals...)
}

type ctxKey int

const loggerKey ctxKey = 0

func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
