package asynq

const (
	// ExpirySweepTask marks active licenses past their expiry as expired.
	ExpirySweepTask = "license:expiry_sweep"
)

type ExpirySweepPayload struct {
	// TraceID correlates the sweep run across scheduler and worker logs.
	TraceID string `json:"trace_id"`
}
