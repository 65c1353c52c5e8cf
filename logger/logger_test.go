package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

// newTestLogger создает Logger поверх logrus, пишущий в buf с фиксированным
// (без таймстампов) текстовым форматтером - чтобы тесты могли сравнивать
// вывод по подстроке, не борясь со временем.
func newTestLogger(level LogLevel, buf *bytes.Buffer) *Logger {
	l := logrus.New()
	l.SetLevel(level.toLogrusLevel())
	l.SetOutput(buf)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	return &Logger{level: level, logger: l}
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(DEBUG, &buf)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()

	if !strings.Contains(output, `level=debug msg="debug message"`) {
		t.Error("DEBUG message not found")
	}
	if !strings.Contains(output, `level=info msg="info message"`) {
		t.Error("INFO message not found")
	}
	if !strings.Contains(output, `level=warning msg="warn message"`) {
		t.Error("WARN message not found")
	}
	if !strings.Contains(output, `level=error msg="error message"`) {
		t.Error("ERROR message not found")
	}
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(ERROR, &buf)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()

	if strings.Contains(output, "level=debug") {
		t.Error("DEBUG message should be filtered out")
	}
	if strings.Contains(output, "level=info") {
		t.Error("INFO message should be filtered out")
	}
	if strings.Contains(output, "level=warning") {
		t.Error("WARN message should be filtered out")
	}
	if !strings.Contains(output, `level=error msg="error message"`) {
		t.Error("ERROR message not found")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", DEBUG},
		{"DEBUG", DEBUG},
		{"info", INFO},
		{"INFO", INFO},
		{"warn", WARN},
		{"WARN", WARN},
		{"warning", WARN},
		{"WARNING", WARN},
		{"error", ERROR},
		{"ERROR", ERROR},
		{"invalid", INFO}, // по умолчанию INFO
		{"", INFO},        // по умолчанию INFO
	}

	for _, test := range tests {
		result := ParseLogLevel(test.input)
		if result != test.expected {
			t.Errorf("ParseLogLevel(%q) = %v, expected %v", test.input, result, test.expected)
		}
	}
}

func TestGlobalLogger(t *testing.T) {
	// Сохраняем оригинальный уровень и логгер
	originalLevel := GetGlobalLevel()
	originalLogger := globalLogger
	defer func() {
		SetGlobalLevel(originalLevel)
		globalLogger = originalLogger
	}()

	var buf bytes.Buffer

	// Заменяем глобальный логгер на наш тестовый
	globalLogger = newTestLogger(WARN, &buf)

	// Тестируем глобальные функции
	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	output := buf.String()

	if strings.Contains(output, "level=debug") {
		t.Error("DEBUG message should be filtered out")
	}
	if strings.Contains(output, "level=info") {
		t.Error("INFO message should be filtered out")
	}
	if !strings.Contains(output, `level=warning msg="warn message"`) {
		t.Error("WARN message not found")
	}
	if !strings.Contains(output, `level=error msg="error message"`) {
		t.Error("ERROR message not found")
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DEBUG, "DEBUG"},
		{INFO, "INFO"},
		{WARN, "WARN"},
		{ERROR, "ERROR"},
		{LogLevel(999), "UNKNOWN"},
	}

	for _, test := range tests {
		result := test.level.String()
		if result != test.expected {
			t.Errorf("LogLevel(%d).String() = %q, expected %q", test.level, result, test.expected)
		}
	}
}
