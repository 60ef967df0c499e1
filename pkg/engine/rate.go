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

package engine

const (
	// rateSmoothing is the number of samples the input rate is averaged over
	rateSmoothing = 30.0
	rateDecay     = 2.0 / (rateSmoothing + 1.0)
)

// inputRate is the exponentially weighted moving average of the DATA tuples per second read by a node, sampled
// from consecutive snapshots.
type inputRate struct {
	last  *Snapshot
	value float64
	init  bool
}

func dataTuples(s *Snapshot) int64 {
	var n int64
	for _, c := range s.Inputs {
		n += c.Data
	}
	return n
}

// add samples the snapshot and returns the smoothed rate, false until two snapshots were seen.
func (r *inputRate) add(s *Snapshot) (float64, bool) {
	last := r.last
	r.last = s
	if last == nil {
		return 0, false
	}
	elapsed := s.Time.Sub(last.Time).Seconds()
	if elapsed <= 0 {
		return r.value, r.init
	}
	sample := float64(dataTuples(s)-dataTuples(last)) / elapsed
	if !r.init {
		r.value = sample
		r.init = true
	} else {
		r.value += rateDecay * (sample - r.value)
	}
	return r.value, true
}
