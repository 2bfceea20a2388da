package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// callerHook adjusts the caller reported by logrus so it points to the
// call site outside of logrus and this package.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(6, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !more {
			break
		}
		fn := frame.Function
		if strings.Contains(fn, "sirupsen/logrus") || strings.Contains(fn, "oracleflow/internal/logger") {
			continue
		}
		entry.Caller = &frame
		break
	}
	return nil
}
