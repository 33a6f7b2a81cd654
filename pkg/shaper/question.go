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
package shaper

import (
	"strings"

	"github.com/teradata-labs/nl2sql/internal/textnorm"
)

// normalizeText lowercases s and strips diacritics.
func normalizeText(s string) string {
	return textnorm.Fold(s)
}

// minFieldRunes is the shortest field name a question can ask for.
const minFieldRunes = 3

// mentionsField reports whether the normalized question names the field as
// whole words, either verbatim or with underscores read as spaces.
func mentionsField(question, field string) bool {
	f := normalizeText(field)
	if question == "" || len([]rune(f)) < minFieldRunes {
		return false
	}
	words := textnorm.Words(question)
	if containsSequence(words, []string{f}) {
		return true
	}
	return containsSequence(words, textnorm.Words(strings.ReplaceAll(f, "_", " ")))
}

// containsSequence reports whether seq occurs in words as consecutive items.
func containsSequence(words, seq []string) bool {
	if len(seq) == 0 || len(seq) > len(words) {
		return false
	}
	for i := 0; i+len(seq) <= len(words); i++ {
		match := true
		for j, w := range seq {
			if words[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	return textnorm.ContainsAny(s, needles)
}

// keywords splits a normalized question into words of at least three letters.
func keywords(question string) []string {
	var out []string
	for _, w := range textnorm.Words(question) {
		if len([]rune(w)) >= 3 {
			out = append(out, w)
		}
	}
	return out
}
