package log

import "time"

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

var LogLevelName = map[LogLevel]string{
	LogLevelDebug: "DEBUG",
	LogLevelInfo:  "INFO",
	LogLevelWarn:  "WARN",
	LogLevelError: "ERROR",
	LogLevelFatal: "FATAL",
}

type LogContent struct {
	logLvl   LogLevel
	logTime  time.Time
	fileName string
	content  string
}

type LogSink interface {
	Sink(content *LogContent)
	Flush()
}
