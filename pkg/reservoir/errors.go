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

package reservoir

import "fmt"

// OverflowErr is returned when the producer adds to a full reservoir. It is a provisioning error, the
// tuple is not dropped and the caller must not retry.
type OverflowErr struct {
	Name     string
	Capacity int
}

func (e OverflowErr) Error() string {
	return fmt.Sprintf("(%s) reservoir overflow, capacity %d exhausted", e.Name, e.Capacity)
}

// UnderflowErr is returned by Get on an empty reservoir.
type UnderflowErr struct {
	Name string
}

func (e UnderflowErr) Error() string {
	return fmt.Sprintf("(%s) reservoir underflow", e.Name)
}
