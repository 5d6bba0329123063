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

package session

import (
	"github.com/sirupsen/logrus"

	"github.com/tomoncle/fcl/utils"
)

// Logger receives session lifecycle events as key/value pairs.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
}

type logrusLogger struct {
	l *logrus.Logger
}

func defaultLogger() Logger {
	return &logrusLogger{l: utils.NewLogger("SESSION")}
}

func (g *logrusLogger) Debug(msg string, fields ...interface{}) {
	g.l.WithFields(utils.KV(fields...)).Debug(msg)
}

func (g *logrusLogger) Warn(msg string, fields ...interface{}) {
	g.l.WithFields(utils.KV(fields...)).Warn(msg)
}
