package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/relay/pkg/schema"
)

// DispatchResponse is returned by POST /api/v1/tasks.
type DispatchResponse struct {
	ExecutionID string `json:"execution_id"`
	TaskID      string `json:"task_id"`
	Status      string `json:"status"`
}

// BatchDispatchResponse is returned by POST /api/v1/tasks/batch.
type BatchDispatchResponse struct {
	BatchID    string             `json:"batch_id"`
	Dispatched []DispatchResponse `json:"dispatched"`
}

// dispatchTaskHandler handles POST /api/v1/tasks.
func (s *Server) dispatchTaskHandler(c *echo.Context) error {
	var task schema.TaskExecution
	if err := c.Bind(&task); err != nil {
		return badRequest(c, "malformed task payload")
	}
	if err := schema.Validate(&task, schema.KindTaskExecution); err != nil {
		return renderError(c, err)
	}

	state := s.tasks.Dispatch(&task)
	s.broadcastDispatch(&task, state.ExecutionID)

	return c.JSON(http.StatusOK, &DispatchResponse{
		ExecutionID: state.ExecutionID,
		TaskID:      task.TaskID,
		Status:      state.Status,
	})
}

// dispatchBatchHandler handles POST /api/v1/tasks/batch. The batch is
// all-or-nothing: any invalid member rejects the whole payload.
func (s *Server) dispatchBatchHandler(c *echo.Context) error {
	var batch schema.TaskBatch
	if err := c.Bind(&batch); err != nil {
		return badRequest(c, "malformed batch payload")
	}
	if err := schema.Validate(&batch, schema.KindTaskBatch); err != nil {
		return renderError(c, err)
	}

	resp := &BatchDispatchResponse{BatchID: batch.BatchID}
	for i := range batch.Tasks {
		task := &batch.Tasks[i]
		state := s.tasks.Dispatch(task)
		s.broadcastDispatch(task, state.ExecutionID)
		resp.Dispatched = append(resp.Dispatched, DispatchResponse{
			ExecutionID: state.ExecutionID,
			TaskID:      task.TaskID,
			Status:      state.Status,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// taskStatusHandler handles GET /api/v1/tasks/:id/status.
func (s *Server) taskStatusHandler(c *echo.Context) error {
	taskID := c.Param("id")
	if err := schema.Validate(&schema.StatusRequest{TaskID: taskID}, schema.KindStatusRequest); err != nil {
		return renderError(c, err)
	}

	if state := s.tasks.Get(taskID); state != nil {
		return c.JSON(http.StatusOK, state)
	}

	// Fall back to durable end-task history for tasks finished before a
	// restart.
	if s.deps.EndTask != nil {
		recs, err := s.deps.EndTask.History(c.Request().Context(), taskID, 1)
		if err != nil {
			return renderError(c, err)
		}
		if len(recs) > 0 {
			rec := recs[0]
			status := "failed"
			if rec.Reason == string(schema.EndReasonSuccess) {
				status = "completed"
			}
			return c.JSON(http.StatusOK, &TaskState{
				TaskID:       rec.TaskID,
				TaskType:     taskTypeFromMetadata(rec.Metadata),
				Status:       status,
				DispatchedAt: rec.CreatedAt,
				UpdatedAt:    rec.CreatedAt,
				CompletedAt:  rec.ProcessedAt,
			})
		}
	}
	return notFound(c, "unknown task "+taskID)
}

// broadcastDispatch pushes the dispatched task to connected executors.
// Best-effort; the status poll endpoint is the durable contract.
func (s *Server) broadcastDispatch(task *schema.TaskExecution, executionID string) {
	if s.deps.Hub == nil {
		return
	}
	frame, err := json.Marshal(map[string]any{
		"type":         "task.dispatch",
		"execution_id": executionID,
		"task":         task,
	})
	if err != nil {
		slog.Error("Failed to marshal dispatch frame", "task_id", task.TaskID, "error", err)
		return
	}
	s.deps.Hub.Broadcast(frame)
}

func taskTypeFromMetadata(md map[string]any) string {
	if md == nil {
		return ""
	}
	tt, _ := md["task_type"].(string)
	return tt
}
