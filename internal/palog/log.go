// Package palog provides the leveled logging used by the cmd/ front
// ends.
//
// It intentionally stays on the standard library's log.Logger rather
// than pulling in a structured logging package: none of the retrieval
// pack's repositories reach for one either. SetOutput redirects every
// level at once; the per-level Writer variables are read only when the
// package is initialized, so assigning one later has no effect.
package palog

import (
	"fmt"
	"io"
	"log"
	"os"
)

var (
	DebugWriter io.Writer = os.Stderr
	InfoWriter  io.Writer = os.Stderr
	WarnWriter  io.Writer = os.Stderr
	ErrWriter   io.Writer = os.Stderr
)

var (
	DebugPrefix = "[DEBUG] "
	InfoPrefix  = "[INFO]  "
	WarnPrefix  = "[WARN]  "
	ErrPrefix   = "[ERROR] "
)

var (
	debugLog = log.New(DebugWriter, DebugPrefix, log.LstdFlags)
	infoLog  = log.New(InfoWriter, InfoPrefix, log.LstdFlags)
	warnLog  = log.New(WarnWriter, WarnPrefix, log.LstdFlags)
	errLog   = log.New(ErrWriter, ErrPrefix, log.LstdFlags|log.Lshortfile)
)

// SetOutput redirects every level to w. Used by tests that want to
// capture or silence log output.
func SetOutput(w io.Writer) {
	debugLog.SetOutput(w)
	infoLog.SetOutput(w)
	warnLog.SetOutput(w)
	errLog.SetOutput(w)
}

func Debugf(format string, args ...interface{}) { debugLog.Output(2, fmt.Sprintf(format, args...)) }
func Infof(format string, args ...interface{})  { infoLog.Output(2, fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...interface{})  { warnLog.Output(2, fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...interface{}) { errLog.Output(2, fmt.Sprintf(format, args...)) }
