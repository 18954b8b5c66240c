package manage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthos/healthos/internal/platform/metrics"
	"github.com/healthos/healthos/internal/platform/predictor"
)

const DefaultPredictorTimeout = 5 * time.Second

var ErrUnknownKind = errors.New("unknown prediction kind")

type sourceCounter struct {
	model    atomic.Int64
	fallback atomic.Int64
}

// Service answers Manage agent requests. Every prediction tries the external
// model once and falls back to the local heuristics on any failure, so the
// prediction methods never return an error.
type Service struct {
	predictor predictor.Predictor
	mode      string
	timeout   time.Duration
	repo      PredictionRepository
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
	startedAt time.Time
	counts    map[predictor.Kind]*sourceCounter
}

func NewService(p predictor.Predictor, logger zerolog.Logger) *Service {
	if p == nil {
		p = predictor.Disabled{}
	}
	s := &Service{
		predictor: p,
		mode:      predictor.ModeNone,
		timeout:   DefaultPredictorTimeout,
		logger:    logger.With().Str("component", "manage").Logger(),
		now:       time.Now,
		counts: map[predictor.Kind]*sourceCounter{
			predictor.KindWaitTime:     {},
			predictor.KindTriage:       {},
			predictor.KindOptimization: {},
		},
	}
	s.startedAt = s.now()
	return s
}

// SetRepository attaches the prediction log. Without one, predictions are not
// recorded and the dashboard is empty.
func (s *Service) SetRepository(repo PredictionRepository) {
	s.repo = repo
}

func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SetTimeout bounds each predictor call. Zero disables the bound.
func (s *Service) SetTimeout(d time.Duration) {
	s.timeout = d
}

// SetMode records the configured predictor mode for Status.
func (s *Service) SetMode(mode string) {
	s.mode = mode
}

// -- Predictions --

func (s *Service) PredictWaitTime(ctx context.Context, q QueueState) Outcome[WaitTimePrediction] {
	return predict(ctx, s, predictor.KindWaitTime, q, "", checkWaitTime, func() WaitTimePrediction {
		return EstimateWaitTime(q)
	})
}

func (s *Service) ClassifyTriage(ctx context.Context, p PatientInfo) Outcome[TriageResult] {
	return predict(ctx, s, predictor.KindTriage, p, p.PatientID, checkTriage, func() TriageResult {
		return ClassifyTriage(p)
	})
}

func (s *Service) OptimizeResources(ctx context.Context, q QueueState) Outcome[ResourceOptimization] {
	return predict(ctx, s, predictor.KindOptimization, q, "", checkOptimization, func() ResourceOptimization {
		return OptimizeResources(q)
	})
}

// predict runs one model attempt for kind. A payload is accepted only if it
// decodes into T and passes check; otherwise fallback answers.
func predict[T any](ctx context.Context, s *Service, kind predictor.Kind, input any, patientID string,
	check func(T) error, fallback func() T) Outcome[T] {

	start := time.Now()
	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var out Outcome[T]
	raw, err := predictor.Invoke(callCtx, s.predictor, predictor.Request{Type: kind, Data: input})
	s.metrics.ObservePredictorCall(string(kind), time.Since(start))
	if err == nil {
		err = decodePayload(raw, &out.Result, check)
	}

	if err != nil {
		reason := string(predictor.ReasonOf(err))
		s.logger.Warn().
			Err(err).
			Str("kind", string(kind)).
			Str("predictor", s.predictor.Name()).
			Str("reason", reason).
			Msg("predictor failed, using fallback heuristics")
		out = Outcome[T]{Result: fallback(), Source: SourceFallback, FallbackReason: reason}
	} else {
		out.Source = SourceModel
	}

	s.count(kind, out.Source)
	s.metrics.RecordPrediction(string(kind), string(out.Source), out.FallbackReason)
	s.record(ctx, kind, input, out.Result, out.Source, out.FallbackReason, patientID, time.Since(start))
	return out
}

func decodePayload[T any](raw json.RawMessage, dst *T, check func(T) error) error {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return &predictor.Error{Reason: predictor.ReasonDecode, Err: err}
	}
	if err := check(v); err != nil {
		return &predictor.Error{Reason: predictor.ReasonInvalid, Err: err}
	}
	*dst = v
	return nil
}

func checkWaitTime(w WaitTimePrediction) error {
	if w.PredictedWaitTime < MinWaitTime || w.PredictedWaitTime > MaxWaitTime {
		return fmt.Errorf("predicted_wait_time %d outside [%d,%d]", w.PredictedWaitTime, MinWaitTime, MaxWaitTime)
	}
	if w.Confidence < 0 || w.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", w.Confidence)
	}
	if w.QueuePosition < 0 {
		return fmt.Errorf("queue_position %d is negative", w.QueuePosition)
	}
	return nil
}

func checkTriage(t TriageResult) error {
	if t.UrgencyLevel < MinUrgency || t.UrgencyLevel > MaxUrgency {
		return fmt.Errorf("urgency_level %d outside [%d,%d]", t.UrgencyLevel, MinUrgency, MaxUrgency)
	}
	if t.RecommendedDepartment == "" {
		return fmt.Errorf("recommended_department is empty")
	}
	if t.Confidence < 0 || t.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", t.Confidence)
	}
	return nil
}

func checkOptimization(r ResourceOptimization) error {
	if r.OptimalStaffAllocation < 1 {
		return fmt.Errorf("optimal_staff_allocation %d below 1", r.OptimalStaffAllocation)
	}
	if r.OptimalRoomAllocation < 1 {
		return fmt.Errorf("optimal_room_allocation %d below 1", r.OptimalRoomAllocation)
	}
	if r.CurrentEfficiency < 0 {
		return fmt.Errorf("current_efficiency %v is negative", r.CurrentEfficiency)
	}
	return nil
}

func (s *Service) count(kind predictor.Kind, src Source) {
	c, ok := s.counts[kind]
	if !ok {
		return
	}
	if src == SourceModel {
		c.model.Add(1)
	} else {
		c.fallback.Add(1)
	}
}

// record writes to the prediction log. Failures are logged and counted but
// never change the answer.
func (s *Service) record(ctx context.Context, kind predictor.Kind, input, result any, src Source,
	reason, patientID string, latency time.Duration) {

	if s.repo == nil {
		return
	}
	req, err := json.Marshal(input)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", string(kind)).Msg("encode prediction request")
		return
	}
	resp, err := json.Marshal(result)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", string(kind)).Msg("encode prediction response")
		return
	}

	rec := &PredictionRecord{
		ID:        uuid.New(),
		Kind:      string(kind),
		Source:    src,
		Request:   req,
		Response:  resp,
		LatencyMs: int(latency.Milliseconds()),
		CreatedAt: s.now().UTC(),
	}
	if patientID != "" {
		rec.PatientID = &patientID
	}
	if reason != "" {
		rec.FallbackReason = &reason
	}

	// Recorded even when the request context is already cancelled.
	if err := s.repo.Create(context.WithoutCancel(ctx), rec); err != nil {
		s.metrics.RecordLogFailure()
		s.logger.Error().Err(err).Str("kind", string(kind)).Msg("record prediction")
	}
}

// -- Check-in --

// CheckIn triages the patient and estimates their wait against the supplied
// department queue. The patient joins at the back of the queue.
func (s *Service) CheckIn(ctx context.Context, req CheckInRequest) (*CheckIn, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	triage := s.ClassifyTriage(ctx, req.Patient)

	queue := req.Queue
	if queue.Department == "" {
		queue.Department = triage.Result.RecommendedDepartment
	}
	wait := s.PredictWaitTime(ctx, queue)

	ci := &CheckIn{
		ID:            uuid.New(),
		PatientID:     req.Patient.PatientID,
		Department:    triage.Result.RecommendedDepartment,
		QueuePosition: req.Queue.QueueLength + 1,
		Triage:        triage.Result,
		Wait:          wait.Result,
		TriageSource:  triage.Source,
		WaitSource:    wait.Source,
		CheckedInAt:   s.now().UTC(),
	}

	s.logger.Info().
		Str("check_in_id", ci.ID.String()).
		Str("patient_id", ci.PatientID).
		Str("department", ci.Department).
		Int("urgency_level", ci.Triage.UrgencyLevel).
		Int("queue_position", ci.QueuePosition).
		Msg("patient checked in")
	return ci, nil
}

// -- Status and reporting --

func (s *Service) Status() Status {
	counts := make(map[string]map[Source]int64, len(s.counts))
	for kind, c := range s.counts {
		counts[string(kind)] = map[Source]int64{
			SourceModel:    c.model.Load(),
			SourceFallback: c.fallback.Load(),
		}
	}
	return Status{
		Predictor: s.predictor.Name(),
		Mode:      s.mode,
		Counts:    counts,
		StartedAt: s.startedAt,
	}
}

// Dashboard summarises the prediction log since the given time.
func (s *Service) Dashboard(ctx context.Context, since time.Time) (*Dashboard, error) {
	d := &Dashboard{Since: since, Kinds: []KindSummary{}}
	if s.repo == nil {
		return d, nil
	}
	kinds, err := s.repo.Summarize(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("summarize prediction log: %w", err)
	}
	var fallbacks int
	for _, k := range kinds {
		d.Total += k.Total
		fallbacks += k.Fallbacks
	}
	if kinds != nil {
		d.Kinds = kinds
	}
	if d.Total > 0 {
		d.FallbackRate = float64(fallbacks) / float64(d.Total)
	}
	return d, nil
}

// ListPredictions pages through the prediction log, newest first. kind may be
// empty to include every kind.
func (s *Service) ListPredictions(ctx context.Context, kind string, limit, offset int) ([]*PredictionRecord, int, error) {
	if kind != "" && !knownKind(kind) {
		return nil, 0, fmt.Errorf("%w %q", ErrUnknownKind, kind)
	}
	if s.repo == nil {
		return []*PredictionRecord{}, 0, nil
	}
	return s.repo.List(ctx, kind, limit, offset)
}

func knownKind(kind string) bool {
	switch predictor.Kind(kind) {
	case predictor.KindWaitTime, predictor.KindTriage, predictor.KindOptimization:
		return true
	}
	return false
}
