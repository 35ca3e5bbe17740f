package unified

import "context"

// Strategy executes a normalized request on one backend.
type Strategy interface {
	Method() Method
	Execute(ctx context.Context, req *NormalizedRequest) (interface{}, error)
}

// CheckResult is the deduplicator's view of an operation key.
type CheckResult struct {
	IsDuplicate bool
	// InFlight is set when the existing record is still pending.
	InFlight bool
	Existing *UnifiedResponse
}

type DedupMetrics struct {
	ActiveOperations  int64 `json:"activeOperations"`
	TotalCompleted    int64 `json:"totalCompleted"`
	TotalFailed       int64 `json:"totalFailed"`
	TotalDeduplicated int64 `json:"totalDeduplicated"`
	TotalEvicted      int64 `json:"totalEvicted"`
}

type Deduplicator interface {
	Check(ctx context.Context, req *NormalizedRequest) (CheckResult, error)
	CreateOperationContext(ctx context.Context, req *NormalizedRequest) (bool, error)
	Wait(ctx context.Context, key string) (*UnifiedResponse, error)
	CompleteOperation(ctx context.Context, key string, resp *UnifiedResponse) error
	FailOperation(ctx context.Context, key string, resp *UnifiedResponse, cause error) error
	GetMetrics() DedupMetrics
	Shutdown()
}

type HealthMonitor interface {
	// Start runs the first health sweep before returning.
	Start(ctx context.Context) error
	GetSystemHealth() SystemHealth
	GetOptimalProtocolPath(req *NormalizedRequest) PathDecision
	Shutdown()
}

// HintEvaluator raises routing hints on requests whose caller left them unset.
type HintEvaluator interface {
	Apply(ctx context.Context, req *NormalizedRequest, explicit Explicit)
}

// Recorder receives every terminal outcome that was actually executed.
type Recorder interface {
	Record(req *NormalizedRequest, resp *UnifiedResponse)
}
