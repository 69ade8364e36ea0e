package domain

// Stage represents the current position of an execution in the workflow
type Stage string

const (
	StageInit          Stage = "init"
	StageSplit         Stage = "split"
	StageSizeCheck     Stage = "size_check"
	StageSingleChunk   Stage = "single_chunk"
	StageChunkPipeline Stage = "chunk_pipeline"
	StageAggregate     Stage = "aggregate"
	StagePublish       Stage = "publish"
	StageFinalize      Stage = "finalize"
	StageErrorHandling Stage = "error_handling"
)

// ExecutionStatus represents the lifecycle state of an execution
type ExecutionStatus string

const (
	ExecutionRunning ExecutionStatus = "running"
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
)

// Terminal returns true once no further transitions can occur
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionSuccess || s == ExecutionFailed
}

// ErrorKind classifies a task failure
type ErrorKind string

const (
	// ErrorKindNone marks a result without an error.
	ErrorKindNone ErrorKind = ""
	// ErrorKindRateLimited marks an item whose local rate-limit retries were exhausted.
	ErrorKindRateLimited ErrorKind = "rate_limited"
	// ErrorKindTransient marks a fault expected to succeed on retry.
	ErrorKindTransient ErrorKind = "transient"
	// ErrorKindPermanent marks an item that cannot be processed.
	ErrorKindPermanent ErrorKind = "permanent"
)

// Severity levels for review suggestions
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityMajor    Severity = "MAJOR"
	SeverityMinor    Severity = "MINOR"
	SeverityNormal   Severity = "NORMAL"
)

// Platform identifies the code-hosting platform a PR lives on
type Platform string

const (
	PlatformGitHub Platform = "github"
	PlatformGitLab Platform = "gitlab"
)
