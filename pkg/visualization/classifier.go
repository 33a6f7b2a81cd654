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
package visualization

import (
	"fmt"

	"go.uber.org/zap"
)

// Classifier applies the rule cascade. It is stateless after construction
// and safe for concurrent use.
type Classifier struct {
	cfg   Config
	rules []Rule
}

// NewClassifier creates a classifier with the default rules.
func NewClassifier(cfg Config) *Classifier {
	return NewClassifierWithRules(cfg, DefaultRules())
}

// NewClassifierWithRules creates a classifier evaluating rules in the given order.
func NewClassifierWithRules(cfg Config, rules []Rule) *Classifier {
	cfg.setDefaults()
	return &Classifier{cfg: cfg, rules: append([]Rule(nil), rules...)}
}

// Rules returns the rules in evaluation order.
func (c *Classifier) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

// Config returns the effective policy.
func (c *Classifier) Config() Config {
	return c.cfg
}

// Classify returns the first matching rule's decision. It never fails: when
// no rule matches, or a rule panics on an unexpected row shape, the result
// is a table.
func (c *Classifier) Classify(in Input) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			c.cfg.Logger.Warn("visualization classification failed, falling back to table",
				zap.String("panic", fmt.Sprint(r)))
			decision = Decision{
				Category: CategoryTable,
				Metadata: map[string]interface{}{"reason": "classification_error"},
				Rule:     "fallback",
			}
		}
	}()

	d := analyze(in, c.cfg)
	for _, rule := range c.rules {
		if dec, ok := rule.Apply(d, c.cfg); ok {
			dec.Rule = rule.Name
			return dec
		}
	}

	dec := table("default_table", d)
	dec.Rule = "fallback"
	return dec
}
