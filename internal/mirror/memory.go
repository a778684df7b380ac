/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package mirror

import (
	"errors"
	"sync"
)

// ErrSlotFull is returned by a MemorySlot whose byte limit would be exceeded.
var ErrSlotFull = errors.New("memory slot full")

// MemorySlot is an in-process Slot. A positive MaxBytes caps the total size
// of stored values.
type MemorySlot struct {
	MaxBytes int

	mu sync.Mutex
	m  map[string]string
}

// NewMemorySlot returns an empty slot without a size limit.
func NewMemorySlot() *MemorySlot { return &MemorySlot{m: map[string]string{}} }

// Get returns the value stored under key.
func (s *MemorySlot) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok, nil
}

// Set stores value under key, or returns ErrSlotFull when MaxBytes would be exceeded.
func (s *MemorySlot) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = map[string]string{}
	}
	if s.MaxBytes > 0 {
		total := len(value)
		for k, v := range s.m {
			if k != key {
				total += len(v)
			}
		}
		if total > s.MaxBytes {
			return ErrSlotFull
		}
	}
	s.m[key] = value
	return nil
}

// Remove deletes key; a missing key is not an error.
func (s *MemorySlot) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// Len returns the number of stored keys.
func (s *MemorySlot) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
