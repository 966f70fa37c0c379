package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/docbed/docbed/pkg/logger"
)

// JobStatus is the coarse lifecycle of a workflow handle.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Handle identifies one workflow run.
type Handle struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
	Name       string `json:"name"`
	// Attached marks a handle that joined an already-running instance
	// instead of starting a fresh one.
	Attached bool `json:"attached"`
}

// UploadWorkflowID derives the deterministic workflow id for a document,
// so a second upload of the same subject attaches instead of racing.
func UploadWorkflowID(doc Doc, collectionName string) string {
	id := fmt.Sprintf("upload-%s-%s", doc.SubjectType, doc.SubjectID)
	if collectionName != "" {
		id += "-v" + collectionName
	}
	return id
}

// EmbeddingWorkflowID derives the deterministic workflow id for a
// standalone embedding run.
func EmbeddingWorkflowID(subjectType, subjectID string) string {
	return fmt.Sprintf("embedding-%s-%s", subjectType, subjectID)
}

// Service starts and tracks pipeline workflows. Starts are attach-or-
// create: a deterministic id that is already running is joined, anything
// else starts fresh with the AllowDuplicate reuse policy.
type Service struct {
	client    client.Client
	taskQueue string
}

func NewService(c client.Client, taskQueue string) *Service {
	if taskQueue == "" {
		taskQueue = TaskQueue
	}
	return &Service{client: c, taskQueue: taskQueue}
}

func (s *Service) StartUpload(ctx context.Context, req UploadRequest) (*Handle, error) {
	workflowID := UploadWorkflowID(req.Doc, req.CollectionName)
	return s.attachOrStart(ctx, workflowID, "upload", UploadWorkflow, req)
}

func (s *Service) StartEmbedding(ctx context.Context, req EmbeddingRequest) (*Handle, error) {
	workflowID := EmbeddingWorkflowID(req.SubjectType, req.SubjectID)
	if !req.VFileID.IsZero() {
		workflowID = fmt.Sprintf("embedding-vfile-%s", req.VFileID)
	}
	return s.attachOrStart(ctx, workflowID, "embedding", EmbeddingWorkflow, req)
}

func (s *Service) attachOrStart(
	ctx context.Context,
	workflowID, name string,
	workflowFn any,
	req any,
) (*Handle, error) {
	if desc, err := s.client.DescribeWorkflowExecution(ctx, workflowID, ""); err == nil {
		info := desc.GetWorkflowExecutionInfo()
		if info.GetStatus() == enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING {
			logger.FromContext(ctx).Info("attaching to running workflow", "workflow_id", workflowID)
			return &Handle{
				WorkflowID: workflowID,
				RunID:      info.GetExecution().GetRunId(),
				Name:       name,
				Attached:   true,
			}, nil
		}
	} else {
		var notFound *serviceerror.NotFound
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("describing workflow %s: %w", workflowID, err)
		}
	}
	options := client.StartWorkflowOptions{
		ID:                    workflowID,
		TaskQueue:             s.taskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}
	run, err := s.client.ExecuteWorkflow(ctx, options, workflowFn, req)
	if err != nil {
		return nil, fmt.Errorf("starting workflow %s: %w", workflowID, err)
	}
	return &Handle{WorkflowID: workflowID, RunID: run.GetRunID(), Name: name}, nil
}

// Describe reports the coarse status of a handle.
func (s *Service) Describe(ctx context.Context, handle Handle) (JobStatus, error) {
	desc, err := s.client.DescribeWorkflowExecution(ctx, handle.WorkflowID, handle.RunID)
	if err != nil {
		return "", fmt.Errorf("describing workflow %s: %w", handle.WorkflowID, err)
	}
	return statusFromExecution(desc.GetWorkflowExecutionInfo().GetStatus()), nil
}

func statusFromExecution(status enumspb.WorkflowExecutionStatus) JobStatus {
	switch status {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING:
		return JobStatusRunning
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return JobStatusCompleted
	default:
		return JobStatusFailed
	}
}

// Result fetches a handle's outcome. With wait set it blocks until the
// run finishes or the timeout expires; otherwise it snapshots the state
// query, which works mid-run.
func (s *Service) Result(
	ctx context.Context,
	handle Handle,
	wait bool,
	timeout time.Duration,
) (*UploadState, error) {
	if wait {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		var state UploadState
		run := s.client.GetWorkflow(ctx, handle.WorkflowID, handle.RunID)
		if err := run.Get(ctx, &state); err != nil {
			return &state, fmt.Errorf("waiting for workflow %s: %w", handle.WorkflowID, err)
		}
		return &state, nil
	}
	value, err := s.client.QueryWorkflow(ctx, handle.WorkflowID, handle.RunID, QueryState)
	if err != nil {
		return nil, fmt.Errorf("querying workflow %s: %w", handle.WorkflowID, err)
	}
	var state UploadState
	if err := value.Get(&state); err != nil {
		return nil, fmt.Errorf("decoding workflow state: %w", err)
	}
	return &state, nil
}
