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

/*
Package tuple defines the vocabulary shared by every component of the data plane: window identifiers and the
tuples flowing through a stream. A stream is a sequence of control tuples (RESET_WINDOW, BEGIN_WINDOW, END_WINDOW)
demarcating logical windows, with DATA tuples carried inside the currently open window:

	RESET_WINDOW(w0) BEGIN_WINDOW(w0) DATA* END_WINDOW(w0) BEGIN_WINDOW(w1) DATA* END_WINDOW(w1) ...

A fresh RESET_WINDOW is inserted right before the BEGIN_WINDOW which starts a new reset epoch.
*/
package tuple

import "fmt"

// Type represents the type of tuple.
type Type int16

const (
	Data        Type = iota + 1 // application record
	BeginWindow                 // opens a window
	EndWindow                   // closes the window opened by the matching BeginWindow
	ResetWindow                 // declares a new reset epoch and the window width in effect
)

func (t Type) String() string {
	switch t {
	case Data:
		return "DATA"
	case BeginWindow:
		return "BEGIN_WINDOW"
	case EndWindow:
		return "END_WINDOW"
	case ResetWindow:
		return "RESET_WINDOW"
	default:
		return "UNKNOWN"
	}
}

// IsControl returns true for the window demarcation types.
func (t Type) IsControl() bool {
	return t == BeginWindow || t == EndWindow || t == ResetWindow
}

// Tuple is the unit of transfer between a producer and a consumer.
type Tuple struct {
	Type Type
	// WindowID is set for control tuples, DATA tuples belong to the currently open window.
	WindowID WindowID
	// BaseSeconds and IntervalMillis are only meaningful for ResetWindow.
	BaseSeconds    uint32
	IntervalMillis int32
	Payload        []byte
}

// NewResetWindow returns a RESET_WINDOW tuple.
func NewResetWindow(id WindowID, baseSeconds uint32, intervalMillis int32) *Tuple {
	return &Tuple{Type: ResetWindow, WindowID: id, BaseSeconds: baseSeconds, IntervalMillis: intervalMillis}
}

// NewBeginWindow returns a BEGIN_WINDOW tuple.
func NewBeginWindow(id WindowID) *Tuple {
	return &Tuple{Type: BeginWindow, WindowID: id}
}

// NewEndWindow returns an END_WINDOW tuple.
func NewEndWindow(id WindowID) *Tuple {
	return &Tuple{Type: EndWindow, WindowID: id}
}

// NewData returns a DATA tuple carrying the payload.
func NewData(payload []byte) *Tuple {
	return &Tuple{Type: Data, Payload: payload}
}

// IsControl returns true if the tuple is a window demarcation tuple.
func (t *Tuple) IsControl() bool {
	return t.Type.IsControl()
}

func (t *Tuple) String() string {
	switch t.Type {
	case Data:
		return fmt.Sprintf("%s(%d bytes)", t.Type, len(t.Payload))
	case ResetWindow:
		return fmt.Sprintf("%s(%s, base=%d, interval=%dms)", t.Type, t.WindowID, t.BaseSeconds, t.IntervalMillis)
	default:
		return fmt.Sprintf("%s(%s)", t.Type, t.WindowID)
	}
}
