// Package log provides leveled logging with systemd sd-daemon priority
// prefixes (https://www.freedesktop.org/software/systemd/man/sd-daemon.html).
// Date/time is omitted by default since systemd (or any sane supervisor)
// timestamps captured output for us; SetLogDateTime re-enables it for
// environments that don't.
package log

import (
	"fmt"
	"io"
	"log"
	"os"
)

var logDateTime bool

var (
	DebugWriter io.Writer = os.Stderr
	InfoWriter  io.Writer = os.Stderr
	WarnWriter  io.Writer = os.Stderr
	ErrWriter   io.Writer = os.Stderr
)

var (
	DebugPrefix string = "<7>[DEBUG]  "
	InfoPrefix  string = "<6>[INFO]   "
	WarnPrefix  string = "<4>[WARNING]"
	ErrPrefix   string = "<3>[ERROR]  "
)

var (
	DebugLog *log.Logger = log.New(DebugWriter, DebugPrefix, 0)
	InfoLog  *log.Logger = log.New(InfoWriter, InfoPrefix, 0)
	WarnLog  *log.Logger = log.New(WarnWriter, WarnPrefix, log.Lshortfile)
	ErrLog   *log.Logger = log.New(ErrWriter, ErrPrefix, log.Llongfile)

	DebugTimeLog *log.Logger = log.New(DebugWriter, DebugPrefix, log.LstdFlags)
	InfoTimeLog  *log.Logger = log.New(InfoWriter, InfoPrefix, log.LstdFlags)
	WarnTimeLog  *log.Logger = log.New(WarnWriter, WarnPrefix, log.LstdFlags|log.Lshortfile)
	ErrTimeLog   *log.Logger = log.New(ErrWriter, ErrPrefix, log.LstdFlags|log.Llongfile)
)

// SetLevel discards writers below lvl ("debug", "info", "warn", "err").
// Unlike verbosity flags, this is permanent for the process lifetime: once
// a writer is set to io.Discard there is no way back short of restarting.
func SetLevel(lvl string) {
	switch lvl {
	case "err", "fatal":
		WarnWriter = io.Discard
		fallthrough
	case "warn":
		InfoWriter = io.Discard
		fallthrough
	case "info":
		DebugWriter = io.Discard
	case "debug":
	default:
		fmt.Printf("pkg/log: invalid loglevel %q, using \"debug\"\n", lvl)
		SetLevel("debug")
	}
}

func SetLogDateTime(v bool) {
	logDateTime = v
}

func printfStr(format string, v ...interface{}) string {
	return fmt.Sprintf(format, v...)
}

func Debugf(format string, v ...interface{}) {
	if DebugWriter == io.Discard {
		return
	}
	if logDateTime {
		DebugTimeLog.Output(2, printfStr(format, v...))
	} else {
		DebugLog.Output(2, printfStr(format, v...))
	}
}

func Infof(format string, v ...interface{}) {
	if InfoWriter == io.Discard {
		return
	}
	if logDateTime {
		InfoTimeLog.Output(2, printfStr(format, v...))
	} else {
		InfoLog.Output(2, printfStr(format, v...))
	}
}

func Warnf(format string, v ...interface{}) {
	if WarnWriter == io.Discard {
		return
	}
	if logDateTime {
		WarnTimeLog.Output(2, printfStr(format, v...))
	} else {
		WarnLog.Output(2, printfStr(format, v...))
	}
}

func Errorf(format string, v ...interface{}) {
	if ErrWriter == io.Discard {
		return
	}
	if logDateTime {
		ErrTimeLog.Output(2, printfStr(format, v...))
	} else {
		ErrLog.Output(2, printfStr(format, v...))
	}
}

// Fatalf logs at error level and terminates the process.
func Fatalf(format string, v ...interface{}) {
	Errorf(format, v...)
	os.Exit(1)
}
