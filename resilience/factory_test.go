package resilience

import "testing"

func TestCreateCircuitBreaker_DefaultDependencies(t *testing.T) {
	cb, err := CreateCircuitBreaker("instance-42", Dependencies{})
	if err != nil {
		t.Fatalf("CreateCircuitBreaker() error = %v", err)
	}
	if got := cb.GetState(); got != "closed" {
		t.Errorf("GetState() = %q, want closed", got)
	}
}

func TestCreateCircuitBreaker_CustomMetrics(t *testing.T) {
	metrics := &countingMetrics{}
	cb, err := CreateCircuitBreaker("instance-7", Dependencies{Metrics: metrics})
	if err != nil {
		t.Fatalf("CreateCircuitBreaker() error = %v", err)
	}
	_ = cb
}

type countingMetrics struct {
	successes, failures, rejections int
}

func (c *countingMetrics) RecordSuccess(name string)                      { c.successes++ }
func (c *countingMetrics) RecordFailure(name string, errorType string)    { c.failures++ }
func (c *countingMetrics) RecordStateChange(name string, from, to string) {}
func (c *countingMetrics) RecordRejection(name string)                    { c.rejections++ }
