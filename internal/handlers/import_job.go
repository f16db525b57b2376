package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"faqminer/internal/config"
	"faqminer/internal/k8s"

	"github.com/labstack/echo/v4"
)

// TriggerImportResponse is returned when a mailbox import job is launched
type TriggerImportResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	JobName string `json:"job_name,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ImportJobStatus summarizes a Kubernetes import job
type ImportJobStatus struct {
	JobName        string  `json:"job_name"`
	Status         string  `json:"status"`
	Active         int32   `json:"active"`
	Succeeded      int32   `json:"succeeded"`
	Failed         int32   `json:"failed"`
	StartTime      *string `json:"start_time,omitempty"`
	CompletionTime *string `json:"completion_time,omitempty"`
}

// TriggerMailboxImportHandler launches a Kubernetes Job that imports the
// mounted mail archive into the database
// @Summary Trigger mailbox import job
// @Description Launches a Kubernetes Job that parses EML and MBOX archives and ingests the emails
// @Tags Admin
// @Produce json
// @Success 200 {object} TriggerImportResponse
// @Failure 500 {object} TriggerImportResponse
// @Router /api/admin/import-mailbox [post]
func TriggerMailboxImportHandler(cfg *config.Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		jobName := fmt.Sprintf("mailbox-import-%d", time.Now().Unix())

		k8sClient, err := k8s.NewClient(cfg.ImportNamespace)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, TriggerImportResponse{
				Success: false,
				Error:   fmt.Sprintf("failed to create Kubernetes client: %v", err),
			})
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := k8sClient.CreateImportJob(ctx, jobName, cfg.ImportImage); err != nil {
			return c.JSON(http.StatusInternalServerError, TriggerImportResponse{
				Success: false,
				Error:   fmt.Sprintf("failed to create Kubernetes job: %v", err),
			})
		}

		return c.JSON(http.StatusOK, TriggerImportResponse{
			Success: true,
			Message: "Mailbox import job triggered successfully",
			JobName: jobName,
		})
	}
}

// MailboxImportStatusHandler reports the status of a mailbox import job
// @Summary Get mailbox import job status
// @Tags Admin
// @Produce json
// @Param jobName path string true "Job name"
// @Success 200 {object} ImportJobStatus
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/admin/import-mailbox/{jobName} [get]
func MailboxImportStatusHandler(cfg *config.Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		jobName := c.Param("jobName")

		k8sClient, err := k8s.NewClient(cfg.ImportNamespace)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": fmt.Sprintf("failed to create Kubernetes client: %v", err),
			})
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		job, err := k8sClient.GetJobStatus(ctx, jobName)
		if err != nil {
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": fmt.Sprintf("job not found: %v", err),
			})
		}

		status := "pending"
		switch {
		case job.Status.Active > 0:
			status = "running"
		case job.Status.Succeeded > 0:
			status = "completed"
		case job.Status.Failed > 0:
			status = "failed"
		}

		var startTime, completionTime *string
		if job.Status.StartTime != nil {
			st := job.Status.StartTime.Format(time.RFC3339)
			startTime = &st
		}
		if job.Status.CompletionTime != nil {
			ct := job.Status.CompletionTime.Format(time.RFC3339)
			completionTime = &ct
		}

		return c.JSON(http.StatusOK, ImportJobStatus{
			JobName:        jobName,
			Status:         status,
			Active:         job.Status.Active,
			Succeeded:      job.Status.Succeeded,
			Failed:         job.Status.Failed,
			StartTime:      startTime,
			CompletionTime: completionTime,
		})
	}
}
