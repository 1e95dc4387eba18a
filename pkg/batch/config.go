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
// Package batch fans one inner node out over an items sequence, either
// sequentially or with a bounded worker pool. Each item runs in an
// isolated shallow copy of the shared store; results always come back in
// input order.
package batch

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/pflow/pkg/ir"
)

// ErrorHandling selects what happens when an item fails.
type ErrorHandling string

const (
	// FailFast aborts the batch on the first item error.
	FailFast ErrorHandling = "fail_fast"
	// Continue records item errors and keeps going.
	Continue ErrorHandling = "continue"
)

// Defaults for batch configuration.
const (
	DefaultAlias         = "item"
	DefaultMaxConcurrent = 10
	DefaultMaxRetries    = 1
)

// Config is the coerced batch configuration.
type Config struct {
	Alias         string
	Parallel      bool
	MaxConcurrent int
	MaxRetries    int
	RetryWait     time.Duration
	ErrorHandling ErrorHandling
}

// ParseConfig coerces a batch spec into a Config. Human-authored
// workflows may carry booleans and numbers as strings; invalid values
// log a warning and fall back to the documented default instead of
// failing the compile.
func ParseConfig(spec *ir.BatchSpec, logger *zap.Logger) Config {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := Config{
		Alias:         DefaultAlias,
		MaxConcurrent: DefaultMaxConcurrent,
		MaxRetries:    DefaultMaxRetries,
		ErrorHandling: FailFast,
	}
	if spec == nil {
		return cfg
	}

	if s, ok := spec.As.(string); ok && s != "" {
		cfg.Alias = s
	} else if spec.As != nil {
		logger.Warn("invalid batch.as, using default",
			zap.Any("value", spec.As), zap.String("default", DefaultAlias))
	}

	cfg.Parallel = coerceBool(spec.Parallel, false, "batch.parallel", logger)

	if n := coerceInt(spec.MaxConcurrent, DefaultMaxConcurrent, "batch.max_concurrent", logger); n >= 1 {
		cfg.MaxConcurrent = n
	} else if spec.MaxConcurrent != nil {
		logger.Warn("batch.max_concurrent must be >= 1, using default",
			zap.Any("value", spec.MaxConcurrent), zap.Int("default", DefaultMaxConcurrent))
	}

	if n := coerceInt(spec.MaxRetries, DefaultMaxRetries, "batch.max_retries", logger); n >= 1 {
		cfg.MaxRetries = n
	} else if spec.MaxRetries != nil {
		logger.Warn("batch.max_retries must be >= 1, using default",
			zap.Any("value", spec.MaxRetries), zap.Int("default", DefaultMaxRetries))
	}

	if secs := coerceFloat(spec.RetryWait, 0, "batch.retry_wait", logger); secs > 0 {
		cfg.RetryWait = time.Duration(secs * float64(time.Second))
	} else if secs < 0 {
		logger.Warn("batch.retry_wait must not be negative, using 0",
			zap.Any("value", spec.RetryWait))
	}

	switch v := spec.ErrorHandling.(type) {
	case nil:
	case string:
		switch ErrorHandling(strings.ToLower(strings.TrimSpace(v))) {
		case FailFast:
			cfg.ErrorHandling = FailFast
		case Continue:
			cfg.ErrorHandling = Continue
		default:
			logger.Warn("invalid batch.error_handling, using fail_fast",
				zap.String("value", v))
		}
	default:
		logger.Warn("invalid batch.error_handling, using fail_fast",
			zap.Any("value", spec.ErrorHandling))
	}

	return cfg
}

// coerceBool accepts bools, the strings {true,1,yes} / {false,0,no,""}
// case-insensitively, and the numbers 0 and 1.
func coerceBool(v any, def bool, field string, logger *zap.Logger) bool {
	switch val := v.(type) {
	case nil:
		return def
	case bool:
		return val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1", "yes":
			logger.Warn("coerced string to boolean", zap.String("field", field), zap.String("value", val))
			return true
		case "false", "0", "no", "":
			logger.Warn("coerced string to boolean", zap.String("field", field), zap.String("value", val))
			return false
		}
	case int:
		if val == 0 || val == 1 {
			return val == 1
		}
	case float64:
		if val == 0 || val == 1 {
			return val == 1
		}
	}
	logger.Warn("invalid boolean value, using default",
		zap.String("field", field), zap.Any("value", v), zap.Bool("default", def))
	return def
}

func coerceInt(v any, def int, field string, logger *zap.Logger) int {
	switch val := v.(type) {
	case nil:
		return def
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		if val == float64(int(val)) {
			return int(val)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			logger.Warn("coerced string to integer", zap.String("field", field), zap.String("value", val))
			return n
		}
	}
	logger.Warn("invalid integer value, using default",
		zap.String("field", field), zap.Any("value", v), zap.Int("default", def))
	return def
}

func coerceFloat(v any, def float64, field string, logger *zap.Logger) float64 {
	switch val := v.(type) {
	case nil:
		return def
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			logger.Warn("coerced string to number", zap.String("field", field), zap.String("value", val))
			return f
		}
	}
	logger.Warn("invalid numeric value, using default",
		zap.String("field", field), zap.Any("value", v), zap.Float64("default", def))
	return def
}

// String implements fmt.Stringer for log output.
func (c Config) String() string {
	return fmt.Sprintf("alias=%s parallel=%t max_concurrent=%d max_retries=%d retry_wait=%s error_handling=%s",
		c.Alias, c.Parallel, c.MaxConcurrent, c.MaxRetries, c.RetryWait, c.ErrorHandling)
}
