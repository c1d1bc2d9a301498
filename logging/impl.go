package logging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// appenderSet is shared by a logger and everything derived from it, so an appender added after
// startup (a log file) also receives entries from subloggers handed out earlier.
type appenderSet struct {
	mu        sync.RWMutex
	appenders []Appender
}

func newAppenderSet(appenders ...Appender) *appenderSet {
	return &appenderSet{appenders: appenders}
}

func (s *appenderSet) add(a Appender) {
	s.mu.Lock()
	s.appenders = append(s.appenders, a)
	s.mu.Unlock()
}

func (s *appenderSet) snapshot() []Appender {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appenders
}

type impl struct {
	name   string
	level  AtomicLevel
	fields []zapcore.Field
	out    *appenderSet
}

func (imp *impl) AddAppender(appender Appender) {
	imp.out.add(appender)
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

func (imp *impl) Level() zapcore.Level {
	return imp.GetLevel().AsZap()
}

func (imp *impl) Sublogger(subname string) Logger {
	name := subname
	if imp.name != "" {
		name = imp.name + "." + subname
	}
	return &impl{
		name:   name,
		level:  NewAtomicLevelAt(imp.level.Get()),
		fields: imp.fields,
		out:    imp.out,
	}
}

func (imp *impl) WithFields(keysAndValues ...interface{}) Logger {
	fields := make([]zapcore.Field, 0, len(imp.fields)+len(keysAndValues)/2)
	fields = append(fields, imp.fields...)
	fields = append(fields, toFields(keysAndValues)...)
	return &impl{name: imp.name, level: imp.level, fields: fields, out: imp.out}
}

func (imp *impl) Sync() error {
	var err error
	for _, appender := range imp.out.snapshot() {
		err = multierr.Append(err, appender.Sync())
	}
	return err
}

// asZap builds a plain zap logger at this logger's level for callers that need one. Appenders
// that are zap cores (the observed test logs) are teed in.
func (imp *impl) asZap() *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(imp.Level())
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger := zap.Must(cfg.Build()).Named(imp.name).With(imp.fields...)
	for _, appender := range imp.out.snapshot() {
		if core, ok := appender.(zapcore.Core); ok {
			logger = logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
				return zapcore.NewTee(c, core)
			}))
		}
	}
	return logger.Sugar()
}

func (imp *impl) Desugar() *zap.Logger {
	return imp.asZap().Desugar()
}

func (imp *impl) Named(name string) *zap.SugaredLogger {
	return imp.asZap().Named(name)
}

func (imp *impl) With(args ...interface{}) *zap.SugaredLogger {
	return imp.asZap().With(args...)
}

func (imp *impl) WithOptions(opts ...zap.Option) *zap.SugaredLogger {
	return imp.asZap().WithOptions(opts...)
}

func (imp *impl) enabled(level Level) bool {
	return level >= imp.level.Get()
}

// emit must be called directly by the exported logging methods; getCaller skips a fixed
// number of frames.
func (imp *impl) emit(level Level, msg string, keysAndValues []interface{}) {
	entry := zapcore.Entry{
		Level:      level.AsZap(),
		Time:       time.Now().UTC(),
		LoggerName: imp.name,
		Message:    msg,
		Caller:     getCaller(),
	}
	fields := imp.fields
	if len(keysAndValues) > 0 {
		fields = append(append([]zapcore.Field(nil), imp.fields...), toFields(keysAndValues)...)
	}
	for _, appender := range imp.out.snapshot() {
		if err := appender.Write(entry, fields); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

// toFields pairs up alternating keys and values. A trailing key without a value is kept with
// an error value so it is not lost silently.
func toFields(keysAndValues []interface{}) []zapcore.Field {
	fields := make([]zapcore.Field, 0, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 < len(keysAndValues) {
			fields = append(fields, zap.Any(key, keysAndValues[i+1]))
		} else {
			fields = append(fields, zap.Any(key, errors.New("unpaired log key")))
		}
	}
	return fields
}

func (imp *impl) Debug(args ...interface{}) {
	if imp.enabled(DEBUG) {
		imp.emit(DEBUG, fmt.Sprint(args...), nil)
	}
}

func (imp *impl) Debugf(template string, args ...interface{}) {
	if imp.enabled(DEBUG) {
		imp.emit(DEBUG, fmt.Sprintf(template, args...), nil)
	}
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	if imp.enabled(DEBUG) {
		imp.emit(DEBUG, msg, keysAndValues)
	}
}

// CDebugw logs at debug level, or regardless of level when ctx carries a trace. Traced entries
// get a "trace" field.
func (imp *impl) CDebugw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	trace := TraceName(ctx)
	if trace == "" {
		if imp.enabled(DEBUG) {
			imp.emit(DEBUG, msg, keysAndValues)
		}
		return
	}
	imp.emit(DEBUG, msg, append([]interface{}{"trace", trace}, keysAndValues...))
}

func (imp *impl) Info(args ...interface{}) {
	if imp.enabled(INFO) {
		imp.emit(INFO, fmt.Sprint(args...), nil)
	}
}

func (imp *impl) Infof(template string, args ...interface{}) {
	if imp.enabled(INFO) {
		imp.emit(INFO, fmt.Sprintf(template, args...), nil)
	}
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	if imp.enabled(INFO) {
		imp.emit(INFO, msg, keysAndValues)
	}
}

func (imp *impl) Warn(args ...interface{}) {
	if imp.enabled(WARN) {
		imp.emit(WARN, fmt.Sprint(args...), nil)
	}
}

func (imp *impl) Warnf(template string, args ...interface{}) {
	if imp.enabled(WARN) {
		imp.emit(WARN, fmt.Sprintf(template, args...), nil)
	}
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	if imp.enabled(WARN) {
		imp.emit(WARN, msg, keysAndValues)
	}
}

func (imp *impl) Error(args ...interface{}) {
	if imp.enabled(ERROR) {
		imp.emit(ERROR, fmt.Sprint(args...), nil)
	}
}

func (imp *impl) Errorf(template string, args ...interface{}) {
	if imp.enabled(ERROR) {
		imp.emit(ERROR, fmt.Sprintf(template, args...), nil)
	}
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	if imp.enabled(ERROR) {
		imp.emit(ERROR, msg, keysAndValues)
	}
}

// The Fatal methods log at error level and exit.
func (imp *impl) Fatal(args ...interface{}) {
	imp.emit(ERROR, fmt.Sprint(args...), nil)
	os.Exit(1)
}

func (imp *impl) Fatalf(template string, args ...interface{}) {
	imp.emit(ERROR, fmt.Sprintf(template, args...), nil)
	os.Exit(1)
}

func (imp *impl) Fatalw(msg string, keysAndValues ...interface{}) {
	imp.emit(ERROR, msg, keysAndValues)
	os.Exit(1)
}

// getCaller reports the frame that called the exported logging method: getCaller, emit, the
// method, then the caller.
func getCaller() zapcore.EntryCaller {
	const skip = 3
	var caller zapcore.EntryCaller
	var ok bool
	caller.PC, caller.File, caller.Line, ok = runtime.Caller(skip)
	if !ok {
		return caller
	}
	caller.Defined = true
	if fn := runtime.FuncForPC(caller.PC); fn != nil {
		caller.Function = fn.Name()
	}
	return caller
}
