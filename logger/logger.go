package logger

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// LogLevel представляет уровень логирования в терминах конфига приложения
// (YAML/флаги знают только "debug"/"info"/"warn"/"error"); внутри Logger
// он транслируется в logrus.Level.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// toLogrusLevel транслирует LogLevel в уровень logrus
func (l LogLevel) toLogrusLevel() logrus.Level {
	switch l {
	case DEBUG:
		return logrus.DebugLevel
	case INFO:
		return logrus.InfoLevel
	case WARN:
		return logrus.WarnLevel
	case ERROR:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// ParseLogLevel парсит строку в LogLevel
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO // по умолчанию INFO
	}
}

// Logger оборачивает logrus.Logger, сохраняя собственный LogLevel для
// GetLevel()/конфигурации - logrus остается единственным владельцем решения
// "печатать или нет" для заданного уровня.
type Logger struct {
	level  LogLevel
	logger *logrus.Logger
}

// New создает новый логгер с указанным уровнем
func New(level LogLevel) *Logger {
	l := logrus.New()
	l.SetLevel(level.toLogrusLevel())
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return &Logger{
		level:  level,
		logger: l,
	}
}

// SetLevel устанавливает уровень логирования
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
	l.logger.SetLevel(level.toLogrusLevel())
}

// GetLevel возвращает текущий уровень логирования
func (l *Logger) GetLevel() LogLevel {
	return l.level
}

// logf выводит сообщение с указанным уровнем
func (l *Logger) logf(level LogLevel, format string, args ...interface{}) {
	l.logger.Logf(level.toLogrusLevel(), format, args...)
}

// Debug выводит отладочное сообщение
func (l *Logger) Debug(format string, args ...interface{}) {
	l.logf(DEBUG, format, args...)
}

// Info выводит информационное сообщение
func (l *Logger) Info(format string, args ...interface{}) {
	l.logf(INFO, format, args...)
}

// Warn выводит предупреждение
func (l *Logger) Warn(format string, args ...interface{}) {
	l.logf(WARN, format, args...)
}

// Error выводит сообщение об ошибке
func (l *Logger) Error(format string, args ...interface{}) {
	l.logf(ERROR, format, args...)
}

// Глобальный логгер
var globalLogger = New(INFO)

// SetGlobalLevel устанавливает уровень для глобального логгера
func SetGlobalLevel(level LogLevel) {
	globalLogger.SetLevel(level)
}

// GetGlobalLevel возвращает уровень глобального логгера
func GetGlobalLevel() LogLevel {
	return globalLogger.GetLevel()
}

// Глобальные функции для удобства
func Debug(format string, args ...interface{}) {
	globalLogger.Debug(format, args...)
}

func Info(format string, args ...interface{}) {
	globalLogger.Info(format, args...)
}

func Warn(format string, args ...interface{}) {
	globalLogger.Warn(format, args...)
}

func Error(format string, args ...interface{}) {
	globalLogger.Error(format, args...)
}
