/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package mocks holds testify mocks for the engine's collaborators.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"slidecraft/internal/domain"
	"slidecraft/internal/materialize"
)

// ProjectStore is a mock for editor.ProjectStore.
type ProjectStore struct {
	mock.Mock
}

func (m *ProjectStore) Create(ctx context.Context, p domain.Payload) (*domain.Project, error) {
	args := m.Called(ctx, p)
	if proj, ok := args.Get(0).(*domain.Project); ok {
		return proj, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProjectStore) Update(ctx context.Context, id string, p domain.Payload) (*domain.Project, error) {
	args := m.Called(ctx, id, p)
	if proj, ok := args.Get(0).(*domain.Project); ok {
		return proj, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProjectStore) Get(ctx context.Context, id string) (*domain.Project, error) {
	args := m.Called(ctx, id)
	if proj, ok := args.Get(0).(*domain.Project); ok {
		return proj, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProjectStore) List(ctx context.Context, f domain.ProjectFilter) ([]domain.Project, error) {
	args := m.Called(ctx, f)
	if list, ok := args.Get(0).([]domain.Project); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProjectStore) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// Uploader is a mock for materialize.Uploader.
type Uploader struct {
	mock.Mock
}

func (m *Uploader) Upload(ctx context.Context, req materialize.UploadRequest) (materialize.UploadResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(materialize.UploadResult)
	return res, args.Error(1)
}

// History is a mock for editor.History.
type History struct {
	mock.Mock
}

func (m *History) RecordSave(ctx context.Context, projectID string, p domain.Payload, failedUploads int) error {
	args := m.Called(ctx, projectID, p, failedUploads)
	return args.Error(0)
}
