package config

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/ignite/perf-brain/internal/engine/curiosity"
)

const weightSumTolerance = 1e-6

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterStructValidation(weightsSumToOne, curiosity.Weights{})
	})
	return validate
}

func weightsSumToOne(sl validator.StructLevel) {
	w := sl.Current().Interface().(curiosity.Weights)
	if math.Abs(w.Sum()-1) > weightSumTolerance {
		sl.ReportError(w.Impact, "Impact", "Impact", "weights_sum", "")
	}
}

// Validate checks the whole configuration.
func (cfg *Config) Validate() error {
	if err := validatorInstance().Struct(cfg); err != nil {
		return formatValidationErrors(err)
	}
	if cfg.DataSource.Type == "memory" && cfg.DataSource.FixturePath == "" {
		return errors.New("invalid config: datasource.fixture_path is required for the memory datasource")
	}
	if cfg.Dispatch.Type == "webhook" && cfg.Dispatch.WebhookURL == "" {
		return errors.New("invalid config: dispatch.webhook_url is required for the webhook dispatcher")
	}
	if budget := cfg.Brain.CycleTimeout() + cfg.Brain.PersistTimeout(); cfg.Lock.TTL() <= budget {
		return fmt.Errorf("invalid config: lock.ttl_seconds (%d) must exceed brain.cycle_timeout_seconds + brain.persist_timeout_seconds (%s)",
			cfg.Lock.TTLSeconds, budget)
	}
	if cfg.Storage.Type == "dynamodb" && cfg.Storage.DynamoDBTable == "" {
		return errors.New("invalid config: storage.dynamodb_table is required for dynamodb storage")
	}
	return nil
}

// Validate checks only the brain parameters.
func (b BrainConfig) Validate() error {
	if err := validatorInstance().Struct(b); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "weights_sum":
			msgs = append(msgs, fmt.Sprintf("%s: scoring weights must sum to 1", strings.TrimSuffix(fe.Namespace(), ".Impact")))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s: must be one of [%s], got %v", fe.Namespace(), fe.Param(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
		}
	}
	sort.Strings(msgs)
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
