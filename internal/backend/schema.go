/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	gojsonschema "github.com/xeipuuv/gojsonschema"
)

//go:embed schema/payload.json
var payloadSchemaJSON []byte

var (
	payloadSchemaOnce sync.Once
	payloadSchema     *gojsonschema.Schema
	payloadSchemaErr  error
)

// ValidationError lists why a payload was rejected.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "invalid payload: " + strings.Join(e.Messages, "; ")
}

// ValidatePayload checks a raw project payload against the embedded schema.
func ValidatePayload(raw []byte) error {
	payloadSchemaOnce.Do(func() {
		payloadSchema, payloadSchemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(payloadSchemaJSON))
	})
	if payloadSchemaErr != nil {
		return fmt.Errorf("load payload schema: %w", payloadSchemaErr)
	}
	res, err := payloadSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return &ValidationError{Messages: []string{err.Error()}}
	}
	if res.Valid() {
		return nil
	}
	ve := &ValidationError{}
	for _, e := range res.Errors() {
		ve.Messages = append(ve.Messages, e.String())
	}
	return ve
}
