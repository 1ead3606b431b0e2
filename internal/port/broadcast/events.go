package broadcast

// Event names emitted by the orchestration services. Adapters forward these
// verbatim as the message type on the wire.
const (
	EventRunStarted        = "run.started"
	EventRunPhase          = "run.phase"
	EventRunFailed         = "run.failed"
	EventRunCompleted      = "run.completed"
	EventRunRecommendation = "run.recommendation"

	EventTaskStarted  = "task.started"
	EventTaskFinished = "task.finished"

	EventApprovalRequested  = "approval.requested"
	EventApprovalVote       = "approval.vote"
	EventApprovalGranted    = "approval.granted"
	EventApprovalRejected   = "approval.rejected"
	EventApprovalOverridden = "approval.overridden"
	EventApprovalCancelled  = "approval.cancelled"
	EventApprovalExpired    = "approval.expired"
)
