/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"fmt"
	"testing"

	"slidecraft/internal/domain"
)

func payload(name string, pages int) domain.Payload {
	p := domain.Payload{Name: name, VideoTracks: []any{}}
	for i := 0; i < pages; i++ {
		p.Pages = append(p.Pages, domain.Page{ID: fmt.Sprintf("p%d", i), Duration: 5})
	}
	p.Settings.Duration = domain.TotalDuration(p.Pages)
	return p
}

func TestSaveHistoryLatestAndList(t *testing.T) {
	s := openTemp(t, Options{})
	ctx := context.Background()

	if rec, err := s.LatestSave(ctx, "proj"); err != nil || rec != nil {
		t.Fatalf("empty history: %+v, %v", rec, err)
	}
	for i := 1; i <= 3; i++ {
		if err := s.RecordSave(ctx, "proj", payload(fmt.Sprintf("v%d", i), i), 0); err != nil {
			t.Fatalf("RecordSave: %v", err)
		}
	}
	if err := s.RecordSave(ctx, "other", payload("o", 1), 1); err != nil {
		t.Fatalf("RecordSave other: %v", err)
	}

	rec, err := s.LatestSave(ctx, "proj")
	if err != nil || rec == nil {
		t.Fatalf("LatestSave: %v", err)
	}
	if rec.Name != "v3" || rec.Pages != 3 || rec.Duration != 15 {
		t.Fatalf("unexpected latest: %+v", rec)
	}
	p, err := rec.Decode()
	if err != nil || len(p.Pages) != 3 {
		t.Fatalf("Decode: %+v %v", p, err)
	}

	list, err := s.ListSaves(ctx, "proj", 10)
	if err != nil || len(list) != 3 || list[0].Name != "v3" || list[2].Name != "v1" {
		t.Fatalf("ListSaves(proj) = %+v, %v", list, err)
	}
	all, err := s.ListSaves(ctx, "", 10)
	if err != nil || len(all) != 4 {
		t.Fatalf("ListSaves(all) = %d, %v", len(all), err)
	}
}

func TestRecordSaveKeepsLastN(t *testing.T) {
	s := openTemp(t, Options{HistoryKeep: 2})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := s.RecordSave(ctx, "proj", payload(fmt.Sprintf("v%d", i), 1), 0); err != nil {
			t.Fatalf("RecordSave: %v", err)
		}
	}
	list, err := s.ListSaves(ctx, "proj", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "v4" || list[1].Name != "v3" {
		t.Fatalf("history after prune = %+v", list)
	}
	n, err := s.PruneSaves(ctx, "proj", 1)
	if err != nil || n != 1 {
		t.Fatalf("PruneSaves = %d, %v", n, err)
	}
}

func TestRecordSaveRequiresProject(t *testing.T) {
	s := openTemp(t, Options{})
	if err := s.RecordSave(context.Background(), "", payload("x", 1), 0); err == nil {
		t.Fatalf("expected error for empty project id")
	}
}
