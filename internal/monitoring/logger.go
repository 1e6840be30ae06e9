package monitoring

import "log"

// Logf is the package-level diagnostic logger used by the emitter, store and
// post-processing packages. It defaults to log.Printf; SetLogger replaces it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Warnf logs through Logf with a "warning: " prefix. Used for conditions that
// are recoverable but lossy, such as loading emitters from delimited text.
func Warnf(format string, v ...interface{}) {
	Logf("warning: "+format, v...)
}
