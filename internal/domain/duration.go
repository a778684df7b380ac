/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany..
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// MinSlideDuration is the shortest a page may play, in seconds.
const MinSlideDuration = 5.0

// EffectiveDuration is trimEnd if set, else duration if set, else 0.
// An explicit zero trimEnd counts as zero.
func EffectiveDuration(el Element) float64 {
	if el.TrimEnd != nil {
		return *el.TrimEnd
	}
	if el.Duration != nil {
		return *el.Duration
	}
	return 0
}

// RequiredDuration is the longest effective video duration on the page,
// never below MinSlideDuration.
func RequiredDuration(elements []Element) float64 {
	d := MinSlideDuration
	for _, el := range elements {
		if el.Type != ElementVideo {
			continue
		}
		if e := EffectiveDuration(el); e > d {
			d = e
		}
	}
	return d
}

// RecomputeDuration replaces Duration and nothing else.
func (p *Page) RecomputeDuration() {
	p.Duration = RequiredDuration(p.Elements)
}

// RecomputeStartTimes sets each page's StartTime to the sum of the
// durations before it.
func RecomputeStartTimes(pages []Page) {
	var t float64
	for i := range pages {
		pages[i].StartTime = t
		t += pages[i].Duration
	}
}

// TotalDuration sums page durations.
func TotalDuration(pages []Page) float64 {
	var t float64
	for _, p := range pages {
		t += p.Duration
	}
	return t
}

// Float returns a pointer to v, for optional numeric fields.
func Float(v float64) *float64 { return &v }
