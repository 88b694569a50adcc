package utils

import (
	"log"
	"os"
)

type Logger struct {
	out *log.Logger
	err *log.Logger
}

func NewLogger() *Logger {
	return &Logger{
		out: log.New(os.Stdout, "", log.LstdFlags),
		err: log.New(os.Stderr, "", log.LstdFlags),
	}
}

func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.out == nil {
		return
	}
	l.out.Printf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil || l.err == nil {
		return
	}
	l.err.Printf("ERROR "+format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	if l == nil || l.err == nil {
		return
	}
	l.err.Printf("WARN "+format, args...)
}
