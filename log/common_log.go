package log

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/eapache/queue"
)

// CommonLogger fans log contents out to its sinks. Formatting happens on the
// caller's goroutine, sinking happens on a background goroutine so that the
// event loops never block on file IO.
type CommonLogger struct {
	logLvl LogLevel
	sinks  []LogSink

	mutex sync.Mutex
	queue *queue.Queue
}

func NewCommonLogger() *CommonLogger {
	cl := &CommonLogger{}
	cl.queue = queue.New()
	return cl
}

func (cl *CommonLogger) SetLogLevel(logLvl LogLevel) {
	cl.logLvl = logLvl
}

func (cl *CommonLogger) GetLogLevel() LogLevel {
	return cl.logLvl
}

func (cl *CommonLogger) AddSink(sink LogSink) {
	cl.sinks = append(cl.sinks, sink)
}

func (cl *CommonLogger) Start() {
	go cl.loopSink()
}

func (cl *CommonLogger) loopSink() {
	for {
		content := cl.dequeue()
		if content == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		for _, sink := range cl.sinks {
			sink.Sink(content)
		}
	}
}

func (cl *CommonLogger) enqueue(content *LogContent) {
	cl.mutex.Lock()
	cl.queue.Add(content)
	cl.mutex.Unlock()
}

func (cl *CommonLogger) dequeue() *LogContent {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	if cl.queue.Length() <= 0 {
		return nil
	}
	return cl.queue.Remove().(*LogContent)
}

func (cl *CommonLogger) levelLog(depth int, lvl LogLevel, fmtStr string, args ...interface{}) {
	if cl.logLvl > lvl {
		return
	}
	content := &LogContent{}
	content.logLvl = lvl
	content.logTime = time.Now()

	_, fullname, line, ok := runtime.Caller(depth + 1)
	if !ok {
		content.fileName = "???.go:0"
	} else {
		_, fileName := filepath.Split(fullname)
		content.fileName = fmt.Sprintf("%s:%d", fileName, line)
	}

	content.content = fmt.Sprintf(fmtStr, args...)
	cl.enqueue(content)
}

func (cl *CommonLogger) LogDebug(depth int, fmtStr string, args ...interface{}) {
	cl.levelLog(depth+1, LogLevelDebug, fmtStr, args...)
}

func (cl *CommonLogger) LogInfo(depth int, fmtStr string, args ...interface{}) {
	cl.levelLog(depth+1, LogLevelInfo, fmtStr, args...)
}

func (cl *CommonLogger) LogWarn(depth int, fmtStr string, args ...interface{}) {
	cl.levelLog(depth+1, LogLevelWarn, fmtStr, args...)
}

func (cl *CommonLogger) LogError(depth int, fmtStr string, args ...interface{}) {
	cl.levelLog(depth+1, LogLevelError, fmtStr, args...)
}

// LogFatal drains the queue to the sinks and aborts the process. Setup and
// invariant violations in the network core end up here.
func (cl *CommonLogger) LogFatal(depth int, fmtStr string, args ...interface{}) {
	cl.levelLog(depth+1, LogLevelFatal, fmtStr, args...)
	cl.drain()
	cl.Flush()
	os.Exit(1)
}

func (cl *CommonLogger) drain() {
	for {
		content := cl.dequeue()
		if content == nil {
			return
		}
		for _, sink := range cl.sinks {
			sink.Sink(content)
		}
	}
}

func (cl *CommonLogger) Flush() {
	for _, sink := range cl.sinks {
		sink.Flush()
	}
}
