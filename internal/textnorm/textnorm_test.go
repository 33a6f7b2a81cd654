// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := map[string]string{
		"":                       "",
		"¿Cuántos clientes hay?": "¿cuantos clientes hay?",
		"Año":                    "ano",
		"Evolución MENSUAL":      "evolucion mensual",
		"plain":                  "plain",
	}
	for in, want := range tests {
		assert.Equal(t, want, Fold(in), in)
	}
}

func TestWords(t *testing.T) {
	assert.Equal(t, []string{"ventas", "por", "mes", "fecha_venta"}, Words("¿ventas, por mes? (fecha_venta)"))
	assert.Empty(t, Words("¿?"))
}

func TestContainsAny(t *testing.T) {
	assert.True(t, ContainsAny("ventas por mes", []string{"x", "por mes"}))
	assert.False(t, ContainsAny("ventas", []string{"", "mes"}))
}
