/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package bufferserver

import (
	"errors"
	"syscall"
	"testing"

	"go.uber.org/goleak"
)

// verifyNoLeaks checks that the goroutines started by the test are gone once its cleanups ran. QUIC tests
// leave goroutines of the QUIC library behind, so the check is not done in TestMain.
func verifyNoLeaks(t *testing.T) {
	current := goleak.IgnoreCurrent()
	t.Cleanup(func() {
		goleak.VerifyNone(t, current)
	})
}

func isConnReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET)
}
