// internal/common/camunda/runner.go
package camunda

import (
	"context"
	"time"

	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/common/logger"
	"permit-workers/internal/common/metrics"
	"permit-workers/internal/common/observability"
	"permit-workers/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ExecuteFunc runs one job under ctx and returns the variables to complete it with.
type ExecuteFunc func(ctx context.Context) (interface{}, error)

// Runner gives every task the same job lifecycle: schema validation,
// a bounded context, metrics and tracing, then completion or error handling.
type Runner struct {
	validator *validation.Validator
	errors    *apperrors.ErrorHandler
	obs       *observability.Observability
	client    *Client
	logger    logger.Logger
}

// NewRunner builds a runner. validator and client may be nil; without a
// client completions are sent once with no retry.
func NewRunner(validator *validation.Validator, obs *observability.Observability, client *Client, log logger.Logger) *Runner {
	if obs == nil {
		obs = observability.NewNoop()
	}
	return &Runner{
		validator: validator,
		errors:    apperrors.NewErrorHandler(log),
		obs:       obs,
		client:    client,
		logger:    log,
	}
}

func (r *Runner) Run(client worker.JobClient, job entities.Job, timeout time.Duration, exec ExecuteFunc) {
	start := time.Now()
	taskType := job.Type
	metrics.WorkerJobsActive.WithLabelValues(taskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(taskType).Dec()

	r.logger.Info("processing job", map[string]interface{}{
		"taskType":    taskType,
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx, span := r.obs.StartSpan(ctx, "job "+taskType,
		attribute.String("task_type", taskType),
		attribute.Int64("job_key", job.Key),
	)
	defer span.End()

	output, err := r.execute(ctx, job, exec)
	status := "completed"
	if err == nil {
		err = r.complete(ctx, client, job, output)
	}
	if err != nil {
		status = "failed"
		code := apperrors.CodeOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(code))
		metrics.WorkerJobsFailed.WithLabelValues(taskType, string(code)).Inc()

		// The job context may already be spent; reporting the failure gets its own.
		reportCtx, reportCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer reportCancel()
		r.errors.HandleJobError(reportCtx, client, job, err)
	} else {
		metrics.WorkerJobsCompleted.WithLabelValues(taskType).Inc()
	}

	elapsed := time.Since(start)
	metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(elapsed.Seconds())
	r.obs.RecordJobProcessed(ctx, taskType, status)
	r.obs.RecordJobDuration(ctx, taskType, elapsed, status)
}

// execute validates the job variables and runs exec. Errors come back in the
// workflow taxonomy.
func (r *Runner) execute(ctx context.Context, job entities.Job, exec ExecuteFunc) (interface{}, error) {
	if r.validator != nil {
		if err := r.validator.Validate(job.Type, job.Variables); err != nil {
			return nil, err
		}
	}
	out, err := exec(ctx)
	if err != nil {
		return nil, apperrors.AsStandard(err)
	}
	return out, nil
}

func (r *Runner) complete(ctx context.Context, client worker.JobClient, job entities.Job, output interface{}) error {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		return apperrors.NewInternalError(err)
	}

	send := func(ctx context.Context) (interface{}, error) { return cmd.Send(ctx) }
	if r.client != nil {
		_, err = r.client.ExecuteWithRetry(ctx, send, "complete job")
	} else {
		_, err = send(ctx)
	}
	if err != nil {
		r.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return err
	}
	return nil
}
