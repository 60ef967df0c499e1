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

package dataplane

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withBuildInfo(t *testing.T, v, commit, tag, treeState string) {
	t.Helper()
	ov, oc, ot, os := version, gitCommit, gitTag, gitTreeState
	t.Cleanup(func() {
		version, gitCommit, gitTag, gitTreeState = ov, oc, ot, os
	})
	version, gitCommit, gitTag, gitTreeState = v, commit, tag, treeState
}

func TestVersion_String(t *testing.T) {
	v := Version{
		Version:      "0.3.0",
		BuildDate:    "2024-02-01T08:00:00Z",
		GitCommit:    "0f1e2d3c4b5a6978",
		GitTag:       "v0.3.0",
		GitTreeState: "clean",
		GoVersion:    "go1.23.4",
		Compiler:     "gc",
		Platform:     "linux/arm64",
	}
	assert.Equal(t, "Version: 0.3.0, BuildDate: 2024-02-01T08:00:00Z, GitCommit: 0f1e2d3c4b5a6978, GitTag: v0.3.0, GitTreeState: clean, GoVersion: go1.23.4, Compiler: gc, Platform: linux/arm64", v.String())
}

func TestGetVersion(t *testing.T) {
	t.Run("tagged release", func(t *testing.T) {
		withBuildInfo(t, "dev", "0f1e2d3c4b5a6978", "v0.3.0", "clean")
		assert.Equal(t, "v0.3.0", GetVersion().Version)
	})
	t.Run("dirty tree", func(t *testing.T) {
		withBuildInfo(t, "dev", "0f1e2d3c4b5a6978", "v0.3.0", "dirty")
		assert.Equal(t, "dev+0f1e2d3.dirty", GetVersion().Version)
	})
	t.Run("no commit", func(t *testing.T) {
		withBuildInfo(t, "dev", "", "", "clean")
		assert.Equal(t, "dev+unknown", GetVersion().Version)
	})
	t.Run("runtime", func(t *testing.T) {
		v := GetVersion()
		assert.Equal(t, runtime.Version(), v.GoVersion)
		assert.Equal(t, runtime.Compiler, v.Compiler)
		assert.Equal(t, fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH), v.Platform)
	})
}
