// Copyright 2026 The JLS Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jls

import (
	"sync"

	"github.com/go-kit/log"
)

// The logging sink is process-wide and defaults to a no-op, matching the
// source library's single registration function. The core never decides
// policy for it (spec.md keeps the logging facility itself out of scope);
// it only ever calls Log through this indirection.
var (
	logMu  sync.RWMutex
	logger log.Logger = log.NewNopLogger()
)

// SetLogger installs the process-wide log sink. Passing nil restores the
// no-op sink.
func SetLogger(l log.Logger) {
	logMu.Lock()
	defer logMu.Unlock()
	if l == nil {
		l = log.NewNopLogger()
	}
	logger = l
}

func currentLogger() log.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}
