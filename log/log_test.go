package log

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink keeps sunk contents for assertions.
type captureSink struct {
	mutex    sync.Mutex
	contents []*LogContent
}

func (sink *captureSink) Sink(content *LogContent) {
	sink.mutex.Lock()
	sink.contents = append(sink.contents, content)
	sink.mutex.Unlock()
}

func (sink *captureSink) Flush() {}

func (sink *captureSink) snapshot() []*LogContent {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	return append([]*LogContent{}, sink.contents...)
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestLevelFiltering(t *testing.T) {
	cl := NewCommonLogger()
	sink := &captureSink{}
	cl.AddSink(sink)
	cl.SetLogLevel(LogLevelWarn)
	cl.Start()

	cl.LogDebug(0, "dropped debug")
	cl.LogInfo(0, "dropped info")
	cl.LogWarn(0, "kept warn %d", 1)
	cl.LogError(0, "kept error %d", 2)

	require.True(t, waitFor(3*time.Second, func() bool {
		return len(sink.snapshot()) == 2
	}))

	contents := sink.snapshot()
	assert.Equal(t, LogLevelWarn, contents[0].logLvl)
	assert.Equal(t, "kept warn 1", contents[0].content)
	assert.Equal(t, LogLevelError, contents[1].logLvl)
	assert.Equal(t, "kept error 2", contents[1].content)
}

func TestCallerFileName(t *testing.T) {
	cl := NewCommonLogger()
	sink := &captureSink{}
	cl.AddSink(sink)
	cl.SetLogLevel(LogLevelDebug)
	cl.Start()

	cl.LogInfo(0, "where am i")

	require.True(t, waitFor(3*time.Second, func() bool {
		return len(sink.snapshot()) == 1
	}))
	assert.True(t, strings.HasPrefix(sink.snapshot()[0].fileName, "log_test.go:"))
}

func TestSinkFanOut(t *testing.T) {
	cl := NewCommonLogger()
	first := &captureSink{}
	second := &captureSink{}
	cl.AddSink(first)
	cl.AddSink(second)
	cl.SetLogLevel(LogLevelDebug)
	cl.Start()

	cl.LogInfo(0, "to everyone")

	require.True(t, waitFor(3*time.Second, func() bool {
		return len(first.snapshot()) == 1 && len(second.snapshot()) == 1
	}))
	assert.Equal(t, first.snapshot()[0].content, second.snapshot()[0].content)
}

func TestFileSinkRotationNames(t *testing.T) {
	sink := &FileLogSink{prefixFilename: "testsrv", rotateType: RotateByDay}
	ts := time.Date(2023, 9, 14, 17, 0, 0, 0, time.UTC)
	assert.Equal(t, "testsrv_2023_09_14.log", sink.getFileName(ts))

	sink.rotateType = RotateByHour
	assert.Equal(t, "testsrv_2023_09_14_17.log", sink.getFileName(ts))
}

func TestFileSinkWrites(t *testing.T) {
	dir := t.TempDir() + "/"
	sink := NewFileLogSink("unit", dir, RotateByDay)
	sink.Sink(&LogContent{
		logLvl:   LogLevelInfo,
		logTime:  time.Now(),
		fileName: "somefile.go:42",
		content:  "file sink works",
	})
	sink.Flush()

	require.NotNil(t, sink.curFile)
	assert.NotEmpty(t, sink.curFileName)
}
