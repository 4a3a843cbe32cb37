package metrics

const (
	ExecutionTimeMetric    = "execution_time"
	ExecutionSuccessMetric = "execution_success"
	ExecutionErrorMetric   = "execution_error"
	ExecutionFailureMetric = "execution_failure"

	RepoTag     = "repo"
	WorkflowTag = "workflow"
	JobTag      = "job"
	TriggerTag  = "trigger"
	StatusTag   = "status"

	// Trigger evaluation results per workflow discovery pass.
	TriggerMatchMetric = "trigger_match"
	TriggerSkipMetric  = "trigger_skip"

	// Superseded runs canceled by a newer revision.
	RunStaleMetric = "run_stale"

	// Toolchain downloads are counted per tool.
	ToolchainDownloadMetric = "toolchain_download"
	ToolTag                 = "tool"

	// Dependency cache effectiveness.
	DepCacheHitMetric  = "dep_cache_hit"
	DepCacheMissMetric = "dep_cache_miss"
)
