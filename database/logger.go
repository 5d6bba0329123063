/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/tomoncle/fcl/utils"
)

const loggerName = "DATABASE"

var packageLogger atomic.Pointer[Logger]

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func (l LogLevel) String() string {
	return l.level().String()
}

func (l LogLevel) level() logrus.Level {
	switch l {
	case LogLevelInfo:
		return logrus.InfoLevel
	case LogLevelWarn:
		return logrus.WarnLevel
	case LogLevelError:
		return logrus.ErrorLevel
	default:
		return logrus.DebugLevel
	}
}

// Logger receives structured messages from the database layer. Fields are
// alternating key/value pairs. Any Logger also satisfies session.Logger.
type Logger interface {
	SetLevel(LogLevel)
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// InitLogger installs log as the package logger unless one is already set.
func InitLogger(log Logger) {
	if log != nil {
		packageLogger.CompareAndSwap(nil, &log)
	}
}

// GetLogger returns the package logger, creating the logrus backed default
// on first use.
func GetLogger() Logger {
	if l := packageLogger.Load(); l != nil {
		return *l
	}
	var def Logger = NewDefaultLogger(loggerName)
	packageLogger.CompareAndSwap(nil, &def)
	return *packageLogger.Load()
}

// DefaultLogger writes through a named logrus logger from the utils
// registry, so utils.SetLoggerLevel(name, ...) applies to it too.
type DefaultLogger struct {
	entry *logrus.Entry
}

func NewDefaultLogger(name string) *DefaultLogger {
	return &DefaultLogger{entry: logrus.NewEntry(utils.NewLogger(name))}
}

// With returns a logger that adds fields to every message.
func (l *DefaultLogger) With(fields ...interface{}) *DefaultLogger {
	return &DefaultLogger{entry: l.entry.WithFields(utils.KV(fields...))}
}

func (l *DefaultLogger) log(level logrus.Level, msg string, fields []interface{}) {
	if !l.entry.Logger.IsLevelEnabled(level) {
		return
	}
	l.entry.WithFields(utils.KV(fields...)).Log(level, msg)
}

func (l *DefaultLogger) Debug(msg string, fields ...interface{}) {
	l.log(logrus.DebugLevel, msg, fields)
}

func (l *DefaultLogger) Info(msg string, fields ...interface{}) {
	l.log(logrus.InfoLevel, msg, fields)
}

func (l *DefaultLogger) Warn(msg string, fields ...interface{}) {
	l.log(logrus.WarnLevel, msg, fields)
}

func (l *DefaultLogger) Error(msg string, fields ...interface{}) {
	l.log(logrus.ErrorLevel, msg, fields)
}

// SetLevel changes the level of the underlying named logger.
func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.entry.Logger.SetLevel(level.level())
}

// componentLogger tags l with component when it is a DefaultLogger.
func componentLogger(l Logger, component string) Logger {
	if dl, ok := l.(*DefaultLogger); ok {
		return dl.With("component", component)
	}
	return l
}
