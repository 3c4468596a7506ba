// Package types defines the public domain types for the baton trigger-and-await orchestrator.
package types

// BackendKind identifies an external workflow system.
type BackendKind string

// BackendKind values enumerate the supported workflow backends.
const (
	BackendGitHubActions  BackendKind = "github-actions"
	BackendJenkins        BackendKind = "jenkins"
	BackendAzureDevOps    BackendKind = "azure-devops"
	BackendStepFunctions  BackendKind = "step-functions"
	BackendCloudWorkflows BackendKind = "cloud-workflows"
)

// RunPhase represents the coarse lifecycle phase of a remote run.
type RunPhase string

// RunPhase values enumerate the remote run lifecycle phases.
const (
	PhasePending   RunPhase = "PENDING"
	PhaseRunning   RunPhase = "RUNNING"
	PhaseCompleted RunPhase = "COMPLETED"
)

// Outcome is the normalized result a backend reports for a completed run.
type Outcome string

// Outcome values enumerate the normalized completion results.
const (
	OutcomeSuccess   Outcome = "SUCCESS"
	OutcomeFailure   Outcome = "FAILURE"
	OutcomeCancelled Outcome = "CANCELLED"
	OutcomeNeutral   Outcome = "NEUTRAL"
	OutcomeUnknown   Outcome = "UNKNOWN"
)

// VerdictCode is the uniform terminal result of one orchestration.
type VerdictCode string

// VerdictCode values enumerate the terminal orchestration results.
const (
	VerdictSucceeded VerdictCode = "SUCCEEDED"
	VerdictFailed    VerdictCode = "FAILED"
	VerdictCancelled VerdictCode = "CANCELLED"
	VerdictTimedOut  VerdictCode = "TIMED_OUT"
)

// NoticeLevel grades the severity of a dispatched notice.
type NoticeLevel string

// NoticeLevel values enumerate the notice severities.
const (
	NoticeInfo     NoticeLevel = "INFO"
	NoticeWarning  NoticeLevel = "WARNING"
	NoticeCritical NoticeLevel = "CRITICAL"
)

// SinkKind defines the notice sink type.
type SinkKind string

// SinkKind values enumerate the supported notice sink backends.
const (
	SinkConsole     SinkKind = "console"
	SinkWebhook     SinkKind = "webhook"
	SinkFile        SinkKind = "file"
	SinkSNS         SinkKind = "sns"
	SinkEventBridge SinkKind = "eventbridge"
	SinkPubSub      SinkKind = "pubsub"
	SinkS3          SinkKind = "s3"
)

// StoreKind defines the journal store backend.
type StoreKind string

// StoreKind values enumerate the supported journal stores.
const (
	StoreMemory    StoreKind = "memory"
	StoreDynamoDB  StoreKind = "dynamodb"
	StoreRedis     StoreKind = "redis"
	StorePostgres  StoreKind = "postgres"
	StoreFirestore StoreKind = "firestore"
)
