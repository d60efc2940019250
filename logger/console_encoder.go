package logger

import (
	"fmt"
	"time"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	colorReset  = "\x1b[0m"
	colorDim    = "\x1b[2m"
	colorYellow = "\x1b[33m"
	colorRed    = "\x1b[31m"
)

var bufferPool = buffer.NewPool()

// consoleEncoder renders log entries as a single calm line:
//
//	15:04:05 message key=value key=value
//
// Warnings and errors are colorized; structured fields are appended
// dimmed so the message stays readable at a glance.
type consoleEncoder struct {
	zapcore.Encoder
	fields []zapcore.Field
}

func newConsoleEncoder() zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "ts",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	return &consoleEncoder{Encoder: zapcore.NewConsoleEncoder(cfg)}
}

func (e *consoleEncoder) Clone() zapcore.Encoder {
	clone := &consoleEncoder{Encoder: e.Encoder.Clone()}
	clone.fields = append(clone.fields, e.fields...)
	return clone
}

// With-style fields arrive here; remember them for EncodeEntry.
func (e *consoleEncoder) AddString(key, value string) {
	e.fields = append(e.fields, zapcore.Field{Key: key, Type: zapcore.StringType, String: value})
}

func (e *consoleEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	line := bufferPool.Get()

	line.AppendString(colorDim)
	line.AppendString(entry.Time.Format(time.TimeOnly))
	line.AppendString(colorReset)
	line.AppendString(" ")

	switch entry.Level {
	case zapcore.WarnLevel:
		line.AppendString(colorYellow)
		line.AppendString(entry.Message)
		line.AppendString(colorReset)
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		line.AppendString(colorRed)
		line.AppendString(entry.Message)
		line.AppendString(colorReset)
	default:
		line.AppendString(entry.Message)
	}

	all := make([]zapcore.Field, 0, len(e.fields)+len(fields))
	all = append(all, e.fields...)
	all = append(all, fields...)
	for _, f := range all {
		line.AppendString(" ")
		line.AppendString(colorDim)
		line.AppendString(f.Key)
		line.AppendString("=")
		line.AppendString(fieldValue(f))
		line.AppendString(colorReset)
	}

	line.AppendString("\n")
	return line, nil
}

func fieldValue(f zapcore.Field) string {
	switch f.Type {
	case zapcore.StringType:
		return f.String
	case zapcore.Int64Type, zapcore.Int32Type:
		return fmt.Sprintf("%d", f.Integer)
	case zapcore.BoolType:
		if f.Integer == 1 {
			return "true"
		}
		return "false"
	case zapcore.DurationType:
		return time.Duration(f.Integer).String()
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok {
			return err.Error()
		}
		return fmt.Sprintf("%v", f.Interface)
	default:
		if f.Interface != nil {
			return fmt.Sprintf("%v", f.Interface)
		}
		if f.String != "" {
			return f.String
		}
		return fmt.Sprintf("%d", f.Integer)
	}
}
