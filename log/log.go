// Package log is the leveled logger shared by the network core. Contents are
// formatted at the call site and handed to pluggable sinks on a background
// goroutine; Fatal is the process abort path.
package log

var defaultLogger *CommonLogger

func init() {
	defaultLogger = NewCommonLogger()
	defaultLogger.SetLogLevel(LogLevelInfo)
	defaultLogger.AddSink(NewStdoutLogSink())
	defaultLogger.Start()
}

func GetLogger() *CommonLogger {
	return defaultLogger
}

// SetLogger swaps the process-wide logger. Call before any loops start.
func SetLogger(logger *CommonLogger) {
	defaultLogger = logger
}

func SetLogLevel(logLvl LogLevel) {
	defaultLogger.SetLogLevel(logLvl)
}

func AddSink(sink LogSink) {
	defaultLogger.AddSink(sink)
}

func Debug(fmtStr string, args ...interface{}) {
	defaultLogger.LogDebug(1, fmtStr, args...)
}

func Info(fmtStr string, args ...interface{}) {
	defaultLogger.LogInfo(1, fmtStr, args...)
}

func Warn(fmtStr string, args ...interface{}) {
	defaultLogger.LogWarn(1, fmtStr, args...)
}

func Error(fmtStr string, args ...interface{}) {
	defaultLogger.LogError(1, fmtStr, args...)
}

func Fatal(fmtStr string, args ...interface{}) {
	defaultLogger.LogFatal(1, fmtStr, args...)
}

func Flush() {
	defaultLogger.Flush()
}
