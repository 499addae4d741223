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

// Package teststress provides a helper for concurrency tests.
package teststress

import (
	"runtime"
	"sync"
	"testing"
)

// Stress runs function f in n goroutines; if n is zero, 10 * GOMAXPROCS goroutines are used.
// It returns the number of goroutines.
//
// Function f gets the goroutine index, should do a needed setup, send a message to ready channel
// when it is ready to start, wait for start channel to be closed, and then do the actual work.
func Stress(tb testing.TB, n int, f func(i int, ready chan<- struct{}, start <-chan struct{})) int {
	tb.Helper()

	if n <= 0 {
		// do a bit more work to reduce a chance that one goroutine would finish
		// before the other one is still being created
		n = runtime.GOMAXPROCS(-1) * 10
	}

	var wg sync.WaitGroup
	readyCh := make(chan struct{}, n)
	startCh := make(chan struct{})

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			f(i, readyCh, startCh)
		}(i)
	}

	for i := 0; i < n; i++ {
		<-readyCh
	}

	close(startCh)

	wg.Wait()

	return n
}
