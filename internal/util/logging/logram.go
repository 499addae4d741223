// Copyright 2021 FerretDB Inc.
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
	"fmt"
	"sync"

	"go.uber.org/zap/zapcore"
)

// logRAM is a ring buffer of the last log entries.
type logRAM struct {
	rw    sync.RWMutex
	log   []*zapcore.Entry
	index int
}

// newLogRAM creates a ring buffer of a given size.
func newLogRAM(size int) *logRAM {
	if size < 1 {
		panic(fmt.Sprintf("logram size must be at least 1, but %d provided", size))
	}

	return &logRAM{
		log: make([]*zapcore.Entry, size),
	}
}

// append adds an entry, overwriting the oldest one if the buffer is full.
func (l *logRAM) append(entry *zapcore.Entry) {
	l.rw.Lock()
	defer l.rw.Unlock()

	l.log[l.index] = entry
	l.index = (l.index + 1) % len(l.log)
}

// Get returns stored entries from the oldest to the newest.
func (l *logRAM) Get() []*zapcore.Entry {
	l.rw.RLock()
	defer l.rw.RUnlock()

	entries := make([]*zapcore.Entry, 0, len(l.log))

	for i := range l.log {
		if e := l.log[(l.index+i)%len(l.log)]; e != nil {
			entries = append(entries, e)
		}
	}

	return entries
}
