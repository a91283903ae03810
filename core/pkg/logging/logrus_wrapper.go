// Copyright (c) 2022 The rcproxy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logging

import (
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/sirupsen/logrus"
)

type logger struct {
	iWriter *logrus.Logger
	fWriter *logrus.Logger
}

var LevelMapperRev = map[string]logrus.Level{
	"debug": logrus.DebugLevel,
	"info":  logrus.InfoLevel,
	"warn":  logrus.WarnLevel,
	"error": logrus.ErrorLevel,
}

type logOptions struct {
	path      string
	level     string
	expireDay int
}

// InitializeLogger wires two logrus loggers, one for info/debug lines and one
// for warn/error lines, each writing to its own daily-rotated file under path.
func InitializeLogger(path, level string, expireDay int) error {
	opt := logOptions{path: path, level: level, expireDay: expireDay}

	lvl, ok := LevelMapperRev[opt.level]
	if !ok {
		lvl = logrus.InfoLevel
	}

	iHook, err := newRotateWriter(filepath.Join(opt.path, "rcproxy.info.log"), opt.expireDay)
	if err != nil {
		return err
	}
	fHook, err := newRotateWriter(filepath.Join(opt.path, "rcproxy.wf.log"), opt.expireDay)
	if err != nil {
		return err
	}

	iWriter := logrus.New()
	iWriter.SetOutput(iHook)
	iWriter.SetLevel(lvl)
	iWriter.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	fWriter := logrus.New()
	fWriter.SetOutput(fHook)
	fWriter.SetLevel(logrus.WarnLevel)
	fWriter.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	logObj = &logger{iWriter: iWriter, fWriter: fWriter}
	return nil
}

func newRotateWriter(pattern string, expireDay int) (*rotatelogs.RotateLogs, error) {
	return rotatelogs.New(
		pattern+".%Y%m%d",
		rotatelogs.WithLinkName(pattern),
		rotatelogs.WithMaxAge(time.Duration(expireDay)*24*time.Hour),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
}
