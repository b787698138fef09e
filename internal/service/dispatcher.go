package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/samudra-hr/hris-api/internal/models"
	"github.com/samudra-hr/hris-api/internal/workflow"
	"github.com/samudra-hr/hris-api/pkg/artifact"
	"github.com/samudra-hr/hris-api/pkg/config"
	"github.com/samudra-hr/hris-api/pkg/jobs"
)

// ArtifactGenerator renders and stores a document, returning its id.
type ArtifactGenerator interface {
	Generate(kind artifact.TemplateKind, doc artifact.Document) (string, error)
}

type effectStore interface {
	GetEffect(ctx context.Context, instanceID string, seq int64, kind string) (*models.SideEffectRecord, error)
	MarkEffectCompleted(ctx context.Context, effectID string, resultID *string) error
	MarkEffectFailed(ctx context.Context, effectID string, causeMsg string, terminal bool) error
}

type scheduleWriter interface {
	CreateSchedule(ctx context.Context, entries []models.RepaymentEntry) error
	ListByInstance(ctx context.Context, instanceID string) ([]models.RepaymentEntry, error)
}

type employeeReader interface {
	GetByID(ctx context.Context, id string) (*models.Employee, error)
}

type effectMetrics interface {
	ObserveEffect(kind, status string)
}

// effectJob is the queue payload: everything the handler needs without
// reloading the instance.
type effectJob struct {
	EffectID   string
	InstanceID string
	Seq        int64
	Kind       string
	Domain     models.Domain
	SubjectID  string
	ToState    models.State
	Action     models.Action
	Payload    []byte
	ActorID    string
	Reason     string
}

// Dispatcher performs the side effects of committed transitions off the
// request path. A failed effect is retried with exponential backoff and
// never reverses the transition: the commit is the fact of record, the
// artifact a downstream consequence.
type Dispatcher struct {
	queue      *jobs.Queue
	store      effectStore
	ledger     scheduleWriter
	employees  employeeReader
	generator  ArtifactGenerator
	notifier   Notifier
	metrics    effectMetrics
	logger     *zap.Logger
	maxRetries int
	tenorDflt  int
}

// NewDispatcher wires the queue and collaborators.
func NewDispatcher(store effectStore, ledger scheduleWriter, employees employeeReader, generator ArtifactGenerator, notifier Notifier, metrics effectMetrics, cfg config.WorkflowConfig, advCfg config.AdvancesConfig, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	retries := cfg.DispatcherRetries
	if retries <= 0 {
		retries = 5
	}
	tenor := advCfg.DefaultTenorMonths
	if tenor <= 0 {
		tenor = 3
	}

	d := &Dispatcher{
		store:      store,
		ledger:     ledger,
		employees:  employees,
		generator:  generator,
		notifier:   notifier,
		metrics:    metrics,
		logger:     logger,
		maxRetries: retries,
		tenorDflt:  tenor,
	}
	d.queue = jobs.NewQueue("workflow-effects", d.handle, jobs.QueueConfig{
		Workers:    cfg.DispatcherWorkers,
		BufferSize: cfg.EffectQueueBuffer,
		MaxRetries: retries,
		BaseDelay:  cfg.DispatcherBackoff,
		Logger:     logger,
		OnExhaust:  d.exhausted,
	})
	return d
}

// Start launches the worker pool.
func (d *Dispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains the worker pool.
func (d *Dispatcher) Stop() {
	d.queue.Stop()
}

// Dispatch enqueues the declared effects of a committed transition. The
// caller is never blocked on their completion; an enqueue failure is logged
// and left for the retry sweep.
func (d *Dispatcher) Dispatch(instance *models.WorkflowInstance, record *models.TransitionRecord, effects []models.SideEffectRecord) {
	reason := ""
	if record.Reason != nil {
		reason = *record.Reason
	}
	for _, effect := range effects {
		job := jobs.Job{
			ID:   effect.ID,
			Type: effect.Kind,
			Payload: effectJob{
				EffectID:   effect.ID,
				InstanceID: instance.ID,
				Seq:        record.Seq,
				Kind:       effect.Kind,
				Domain:     instance.Domain,
				SubjectID:  instance.SubjectID,
				ToState:    record.ToState,
				Action:     record.Action,
				Payload:    instance.Payload,
				ActorID:    record.ActorID,
				Reason:     reason,
			},
		}
		if err := d.queue.Enqueue(job); err != nil {
			d.logger.Error("failed to enqueue side effect",
				zap.String("instance_id", instance.ID),
				zap.String("kind", effect.Kind),
				zap.Error(err))
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(effectJob)
	if !ok {
		d.logger.Error("unexpected effect payload type", zap.String("job_id", job.ID))
		return nil
	}

	// Idempotency: the (instance, seq, kind) record is the delivery ledger.
	// A redelivered job for a completed effect does nothing.
	effect, err := d.store.GetEffect(ctx, payload.InstanceID, payload.Seq, payload.Kind)
	if err != nil {
		return d.fail(ctx, job, payload, fmt.Errorf("load effect record: %w", err))
	}
	if effect.Status == models.EffectStatusCompleted {
		return nil
	}

	var resultID *string
	switch payload.Kind {
	case workflow.EffectGenerateDocument:
		id, genErr := d.generateDocument(ctx, payload)
		if genErr != nil {
			return d.fail(ctx, job, payload, genErr)
		}
		resultID = &id
	case workflow.EffectScheduleRepayments:
		id, schedErr := d.scheduleRepayments(ctx, payload)
		if schedErr != nil {
			return d.fail(ctx, job, payload, schedErr)
		}
		resultID = &id
	case workflow.EffectNotify:
		if notifyErr := d.notify(ctx, payload); notifyErr != nil {
			return d.fail(ctx, job, payload, notifyErr)
		}
	default:
		d.logger.Warn("unknown side-effect kind", zap.String("kind", payload.Kind))
		return nil
	}

	if err := d.store.MarkEffectCompleted(ctx, payload.EffectID, resultID); err != nil {
		return d.fail(ctx, job, payload, fmt.Errorf("record effect completion: %w", err))
	}
	if d.metrics != nil {
		d.metrics.ObserveEffect(payload.Kind, string(models.EffectStatusCompleted))
	}
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, job jobs.Job, payload effectJob, cause error) error {
	terminal := job.Attempt >= d.maxRetries
	if err := d.store.MarkEffectFailed(ctx, payload.EffectID, cause.Error(), terminal); err != nil {
		d.logger.Error("failed to record effect failure", zap.String("effect_id", payload.EffectID), zap.Error(err))
	}
	if d.metrics != nil {
		d.metrics.ObserveEffect(payload.Kind, string(models.EffectStatusFailed))
	}
	return cause
}

func (d *Dispatcher) exhausted(_ context.Context, job jobs.Job, err error) {
	d.logger.Error("side effect permanently failed",
		zap.String("job_id", job.ID),
		zap.String("kind", job.Type),
		zap.Error(err))
}

func (d *Dispatcher) generateDocument(ctx context.Context, payload effectJob) (string, error) {
	employee, err := d.employees.GetByID(ctx, payload.SubjectID)
	if err != nil {
		return "", fmt.Errorf("load employee %s: %w", payload.SubjectID, err)
	}

	switch payload.Domain {
	case models.DomainDocumentRequest:
		req, err := workflow.ParseDocumentRequestPayload(payload.Payload)
		if err != nil {
			return "", err
		}
		return d.generator.Generate(templateForDocumentType(req.DocumentType), artifact.Document{
			Title:    documentTitle(req.DocumentType),
			Subtitle: "Human Resources Office",
			Fields: []artifact.Field{
				{Label: "Employee", Value: employee.FullName},
				{Label: "Position", Value: employee.Position},
				{Label: "Department", Value: employee.Department},
				{Label: "Employed since", Value: employee.HiredAt.Format("2006-01-02")},
			},
			Footer: "Issued electronically through the HR workflow service.",
		})

	case models.DomainSalaryAdvance:
		entries, err := d.ledger.ListByInstance(ctx, payload.InstanceID)
		if err != nil {
			return "", fmt.Errorf("load repayment schedule: %w", err)
		}
		rows := make([][]string, 0, len(entries))
		for _, entry := range entries {
			rows = append(rows, []string{
				entry.DueDate.Format("2006-01"),
				fmt.Sprintf("%d", entry.Amount),
			})
		}
		return d.generator.Generate(artifact.TemplateAdvanceSchedule, artifact.Document{
			Title:    "Salary Advance Agreement",
			Subtitle: "Repayment Schedule",
			Fields: []artifact.Field{
				{Label: "Employee", Value: employee.FullName},
				{Label: "Advance reference", Value: payload.InstanceID},
			},
			Table:  &artifact.Table{Headers: []string{"Deduction month", "Amount"}, Rows: rows},
			Footer: "Deductions are applied to the monthly payroll run.",
		})

	case models.DomainContractLifecycle:
		terms, err := workflow.ParseContractPayload(payload.Payload)
		if err != nil {
			return "", err
		}
		fields := []artifact.Field{
			{Label: "Employee", Value: employee.FullName},
			{Label: "Position", Value: terms.Position},
			{Label: "Contract type", Value: terms.ContractType},
			{Label: "Monthly salary", Value: fmt.Sprintf("%d", terms.Salary)},
			{Label: "Start date", Value: terms.StartDate},
		}
		if terms.EndDate != "" {
			fields = append(fields, artifact.Field{Label: "End date", Value: terms.EndDate})
		}
		if terms.AmendsInstanceID != "" {
			fields = append(fields, artifact.Field{Label: "Amends contract", Value: terms.AmendsInstanceID})
		}
		return d.generator.Generate(artifact.TemplateContract, artifact.Document{
			Title:  "Employment Contract",
			Fields: fields,
			Footer: "Signed and archived electronically. The terms above are final.",
		})
	}

	return "", fmt.Errorf("no document template for domain %s", payload.Domain)
}

func (d *Dispatcher) scheduleRepayments(ctx context.Context, payload effectJob) (string, error) {
	adv, err := workflow.ParseSalaryAdvancePayload(payload.Payload)
	if err != nil {
		return "", err
	}
	tenor := adv.TenorMonths
	if tenor <= 0 {
		tenor = d.tenorDflt
	}

	// Equal installments; the last one absorbs rounding remainder. First
	// deduction lands the month after approval.
	per := adv.Amount / int64(tenor)
	entries := make([]models.RepaymentEntry, 0, tenor)
	start := time.Now().UTC()
	remaining := adv.Amount
	for i := 1; i <= tenor; i++ {
		amount := per
		if i == tenor {
			amount = remaining
		}
		remaining -= amount
		entries = append(entries, models.RepaymentEntry{
			InstanceID: payload.InstanceID,
			SubjectID:  payload.SubjectID,
			Seq:        i,
			DueDate:    start.AddDate(0, i, 0),
			Amount:     amount,
		})
	}
	if err := d.ledger.CreateSchedule(ctx, entries); err != nil {
		return "", fmt.Errorf("create repayment schedule: %w", err)
	}
	return fmt.Sprintf("schedule-%s", payload.InstanceID), nil
}

func (d *Dispatcher) notify(ctx context.Context, payload effectJob) error {
	event := fmt.Sprintf("workflow.%s.%s", payload.Domain, payload.Action)
	body := map[string]interface{}{
		"instanceId": payload.InstanceID,
		"state":      payload.ToState,
		"actorId":    payload.ActorID,
	}
	if payload.Reason != "" {
		body["reason"] = payload.Reason
	}
	return d.notifier.Notify(ctx, payload.SubjectID, event, body)
}

func templateForDocumentType(docType string) artifact.TemplateKind {
	switch docType {
	case "employment_attestation":
		return artifact.TemplateAttestation
	default:
		return artifact.TemplateWorkCertificate
	}
}

func documentTitle(docType string) string {
	switch docType {
	case "employment_attestation":
		return "Employment Attestation"
	case "salary_statement":
		return "Salary Statement"
	default:
		return "Work Certificate"
	}
}
