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

package tuple

import "fmt"

// MaxWindowSequence is the terminal sequence number of a reset epoch. Once a window with this
// sequence has been opened the next window starts a new epoch.
const MaxWindowSequence uint32 = 0xFFFFFFFF

// WindowID identifies a window: the upper 32 bits hold the second at which the reset epoch began,
// the lower 32 bits the number of window widths elapsed since then.
type WindowID uint64

// NewWindowID composes a window id.
func NewWindowID(baseSeconds uint32, sequence uint32) WindowID {
	return WindowID(uint64(baseSeconds)<<32 | uint64(sequence))
}

// BaseSeconds returns the epoch second of the reset epoch the window belongs to.
func (w WindowID) BaseSeconds() uint32 {
	return uint32(w >> 32)
}

// Sequence returns the sequence number of the window within its reset epoch.
func (w WindowID) Sequence() uint32 {
	return uint32(w)
}

func (w WindowID) String() string {
	return fmt.Sprintf("%#016x", uint64(w))
}
