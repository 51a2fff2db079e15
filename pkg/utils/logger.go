package utils

import (
	"log"
	"os"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// Logger уровневый логгер с префиксом компонента
type Logger struct {
	level     LogLevel
	component string
	logger    *log.Logger
}

var defaultLevel = INFO

// SetDefaultLevel устанавливает уровень для новых логгеров
func SetDefaultLevel(levelStr string) {
	defaultLevel = parseLevel(levelStr)
}

func parseLevel(levelStr string) LogLevel {
	switch levelStr {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// NewLogger создает логгер для компонента (validator, executor, ...)
func NewLogger(component string) *Logger {
	return &Logger{
		level:     defaultLevel,
		component: component,
		logger:    log.New(os.Stdout, "", log.LstdFlags),
	}
}

func (l *Logger) printf(prefix, format string, v ...interface{}) {
	if l.component != "" {
		l.logger.Printf(prefix+" ["+l.component+"] "+format, v...)
		return
	}
	l.logger.Printf(prefix+" "+format, v...)
}

func (l *Logger) Debug(format string, v ...interface{}) {
	if l.level <= DEBUG {
		l.printf("[DEBUG]", format, v...)
	}
}

func (l *Logger) Info(format string, v ...interface{}) {
	if l.level <= INFO {
		l.printf("[INFO]", format, v...)
	}
}

func (l *Logger) Warn(format string, v ...interface{}) {
	if l.level <= WARN {
		l.printf("[WARN]", format, v...)
	}
}

func (l *Logger) Error(format string, v ...interface{}) {
	if l.level <= ERROR {
		l.printf("[ERROR]", format, v...)
	}
}
