/*
Copyright 2024 Blnk Finance Authors.

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

package model

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// RegistryEntry is one laser-marked board in a registry document.
type RegistryEntry struct {
	SerialNo string `json:"serial_no"`
}

// RegistryDocument is written by the laser-marking station and maps board
// serials to the batch they belong to. It is never modified here.
type RegistryDocument struct {
	BatchID string          `json:"model_id"`
	Entries []RegistryEntry `json:"laser_marking"`
}

func (r *RegistryDocument) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Entries, validation.NotNil),
	)
}

// Contains reports whether serial is listed in the document.
func (r *RegistryDocument) Contains(serial string) bool {
	for _, entry := range r.Entries {
		if entry.SerialNo == serial {
			return true
		}
	}
	return false
}
