package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"faqminer/internal/database"
	"faqminer/internal/jobs"
	"faqminer/internal/models"

	"github.com/labstack/echo/v4"
)

// TriggerJobResponse is returned when a processing job is enqueued
type TriggerJobResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TriggerProcessingHandler enqueues and starts an FAQ processing job
// @Summary Trigger FAQ processing
// @Description Starts a background job that classifies unprocessed emails and mines FAQ groups from them
// @Tags Jobs
// @Produce json
// @Success 202 {object} TriggerJobResponse
// @Failure 500 {object} TriggerJobResponse
// @Router /api/jobs/process [post]
func TriggerProcessingHandler(orch *jobs.Orchestrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		job, err := orch.Enqueue(c.Request().Context(), models.JobTypeFAQProcessing)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, TriggerJobResponse{
				Success: false,
				Error:   fmt.Sprintf("failed to enqueue job: %v", err),
			})
		}

		// The job outlives the request
		go orch.Run(context.Background(), job.ID)

		return c.JSON(http.StatusAccepted, TriggerJobResponse{Success: true, JobID: job.ID})
	}
}

// JobStatusHandler returns the persisted state of one job
// @Summary Get job status
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} models.ProcessingJob
// @Failure 404 {object} map[string]string
// @Router /api/jobs/{id} [get]
func JobStatusHandler(store *database.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		job, err := store.GetJob(c.Request().Context(), c.Param("id"))
		if err != nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
		}
		return c.JSON(http.StatusOK, job)
	}
}

// ListJobsHandler returns recent jobs, newest first
// @Summary List recent jobs
// @Tags Jobs
// @Produce json
// @Success 200 {array} models.ProcessingJob
// @Failure 500 {object} map[string]string
// @Router /api/jobs [get]
func ListJobsHandler(store *database.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		recent, err := store.ListRecentJobs(c.Request().Context(), 20)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load jobs"})
		}
		return c.JSON(http.StatusOK, recent)
	}
}

// JobEventsHandler streams job progress as server-sent events until the job
// reaches a terminal state or the client disconnects
// @Summary Stream job events
// @Description Server-sent event stream of progress, complete and error events for one job
// @Tags Jobs
// @Produce text/event-stream
// @Param id path string true "Job ID"
// @Success 200 {string} string "event stream"
// @Failure 404 {object} map[string]string
// @Router /api/jobs/{id}/events [get]
func JobEventsHandler(store *database.Store, hub *jobs.Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		jobID := c.Param("id")

		job, err := store.GetJob(c.Request().Context(), jobID)
		if err != nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
		}

		res := c.Response()
		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set("Cache-Control", "no-cache")
		res.Header().Set("Connection", "keep-alive")
		res.WriteHeader(http.StatusOK)

		// A job that already finished gets its terminal event replayed from
		// the persisted record
		if job.IsTerminal() {
			writeSSE(res, terminalEvent(job))
			return nil
		}

		ch := hub.Subscribe(jobID)
		defer hub.Unsubscribe(jobID, ch)

		ctx := c.Request().Context()
		for {
			select {
			case <-ctx.Done():
				return nil
			case event, ok := <-ch:
				if !ok {
					return nil
				}
				if err := writeSSE(res, event); err != nil {
					return nil
				}
				if event.Type == jobs.EventComplete || event.Type == jobs.EventError {
					return nil
				}
			}
		}
	}
}

func writeSSE(res *echo.Response, event jobs.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(res, "data: %s\n\n", payload); err != nil {
		return err
	}
	res.Flush()
	return nil
}

func terminalEvent(job *models.ProcessingJob) jobs.Event {
	if job.Status == models.JobStatusError {
		message := job.ErrorMessage
		if message == "" {
			message = "job failed"
		}
		return jobs.Event{Type: jobs.EventError, JobID: job.ID, Message: message}
	}
	return jobs.Event{Type: jobs.EventComplete, JobID: job.ID, Processed: job.ProcessedItems}
}
