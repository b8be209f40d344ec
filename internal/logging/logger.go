package logging

import (
	"log"
	"os"
)

// Logger writes level-prefixed lines to stdout/stderr, the way the rest
// of this codebase expects to log: no structured fields, just enough
// context to grep a running sync.
type Logger struct {
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
	fatalLogger *log.Logger
}

func New(debug bool) *Logger {
	flags := log.Ldate | log.Ltime
	if debug {
		flags |= log.Lshortfile
	}
	return &Logger{
		infoLogger:  log.New(os.Stdout, "INFO: ", flags),
		warnLogger:  log.New(os.Stderr, "WARN: ", flags),
		errorLogger: log.New(os.Stderr, "ERROR: ", flags),
		fatalLogger: log.New(os.Stderr, "FATAL: ", flags),
	}
}

func (l *Logger) Info(v ...interface{}) {
	l.infoLogger.Println(v...)
}

func (l *Logger) Warn(v ...interface{}) {
	l.warnLogger.Println(v...)
}

func (l *Logger) Error(v ...interface{}) {
	l.errorLogger.Println(v...)
}

func (l *Logger) Fatal(v ...interface{}) {
	l.fatalLogger.Fatalln(v...)
}
