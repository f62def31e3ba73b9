package cvgate

import "time"

// Metrics defines the interface for tracking gate operations and performance.
type Metrics interface {
	// RecordAdmission records a call admission decision.
	RecordAdmission(category Category, plan string, allowed bool)

	// RecordAdmissionDuration records the latency of a CheckAndConsume call.
	RecordAdmissionDuration(category Category, duration time.Duration)

	// RecordEditCheck records a document-edit permission decision.
	RecordEditCheck(plan string, allowed bool)

	// RecordStorageOperation records the duration and status of a storage operation.
	RecordStorageOperation(operation string, duration time.Duration, err error)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordAdmission(category Category, plan string, allowed bool)               {}
func (n *NoopMetrics) RecordAdmissionDuration(category Category, duration time.Duration)          {}
func (n *NoopMetrics) RecordEditCheck(plan string, allowed bool)                                  {}
func (n *NoopMetrics) RecordStorageOperation(operation string, duration time.Duration, err error) {}
