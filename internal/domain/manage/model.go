package manage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QueueState is a snapshot of one department's load. It is built per request
// and never stored by the decision core.
type QueueState struct {
	QueueLength     int    `json:"queue_length" yaml:"queue_length"`
	CurrentWaitTime int    `json:"current_wait_time" yaml:"current_wait_time"`
	StaffAvailable  int    `json:"staff_available" yaml:"staff_available"`
	RoomsAvailable  int    `json:"rooms_available" yaml:"rooms_available"`
	HourOfDay       int    `json:"hour_of_day" yaml:"hour_of_day"`
	DayOfWeek       int    `json:"day_of_week" yaml:"day_of_week"`
	Department      string `json:"department,omitempty" yaml:"department,omitempty"`
}

// Validate rejects queue states the heuristics are not defined for.
func (q QueueState) Validate() error {
	if q.QueueLength < 0 {
		return fmt.Errorf("queue_length must be >= 0")
	}
	if q.CurrentWaitTime < 0 {
		return fmt.Errorf("current_wait_time must be >= 0")
	}
	if q.StaffAvailable < 1 {
		return fmt.Errorf("staff_available must be >= 1")
	}
	if q.RoomsAvailable < 1 {
		return fmt.Errorf("rooms_available must be >= 1")
	}
	if q.HourOfDay < 0 || q.HourOfDay > 23 {
		return fmt.Errorf("hour_of_day must be between 0 and 23")
	}
	if q.DayOfWeek < 0 || q.DayOfWeek > 6 {
		return fmt.Errorf("day_of_week must be between 0 and 6")
	}
	return nil
}

// PatientInfo describes a patient presenting for triage.
type PatientInfo struct {
	PatientID         string   `json:"patient_id" yaml:"patient_id"`
	Age               int      `json:"age" yaml:"age"`
	UrgencyLevel      int      `json:"urgency_level" yaml:"urgency_level"`
	Department        string   `json:"department" yaml:"department"`
	MedicalComplexity float64  `json:"medical_complexity" yaml:"medical_complexity"`
	Symptoms          []string `json:"symptoms,omitempty" yaml:"symptoms,omitempty"`
	PainLevel         *float64 `json:"pain_level,omitempty" yaml:"pain_level,omitempty"`
}

func (p PatientInfo) Validate() error {
	if p.PatientID == "" {
		return fmt.Errorf("patient_id is required")
	}
	if p.Age < 0 {
		return fmt.Errorf("age must be >= 0")
	}
	if p.UrgencyLevel < MinUrgency || p.UrgencyLevel > MaxUrgency {
		return fmt.Errorf("urgency_level must be between %d and %d", MinUrgency, MaxUrgency)
	}
	if p.MedicalComplexity < 0 {
		return fmt.Errorf("medical_complexity must be >= 0")
	}
	if p.PainLevel != nil && (*p.PainLevel < 0 || *p.PainLevel > 10) {
		return fmt.Errorf("pain_level must be between 0 and 10")
	}
	return nil
}

type WaitTimePrediction struct {
	PredictedWaitTime int     `json:"predicted_wait_time"`
	Confidence        float64 `json:"confidence"`
	QueuePosition     int     `json:"queue_position"`
	EstimatedWaitTime string  `json:"estimated_wait_time"`
}

type TriageResult struct {
	UrgencyLevel          int     `json:"urgency_level"`
	UrgencyDescription    string  `json:"urgency_description"`
	RecommendedDepartment string  `json:"recommended_department"`
	EstimatedWaitTime     string  `json:"estimated_wait_time"`
	Confidence            float64 `json:"confidence"`
}

type ResourceOptimization struct {
	OptimalStaffAllocation int      `json:"optimal_staff_allocation"`
	OptimalRoomAllocation  int      `json:"optimal_room_allocation"`
	CurrentEfficiency      float64  `json:"current_efficiency"`
	Recommendations        []string `json:"recommendations"`
}

// Source tells whether a result came from the model or the heuristics.
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// Outcome is a façade result together with where it came from.
type Outcome[T any] struct {
	Result         T      `json:"data"`
	Source         Source `json:"source"`
	FallbackReason string `json:"fallback_reason,omitempty"`
}

// CheckInRequest is a patient arriving at a department desk together with
// the department's current queue.
type CheckInRequest struct {
	Patient PatientInfo `json:"patient"`
	Queue   QueueState  `json:"queue"`
}

func (r CheckInRequest) Validate() error {
	if err := r.Patient.Validate(); err != nil {
		return err
	}
	return r.Queue.Validate()
}

// CheckIn is the outcome of a digital check-in.
type CheckIn struct {
	ID            uuid.UUID          `json:"id"`
	PatientID     string             `json:"patient_id"`
	Department    string             `json:"department"`
	QueuePosition int                `json:"queue_position"`
	Triage        TriageResult       `json:"triage"`
	Wait          WaitTimePrediction `json:"wait"`
	TriageSource  Source             `json:"triage_source"`
	WaitSource    Source             `json:"wait_source"`
	CheckedInAt   time.Time          `json:"checked_in_at"`
}

// PredictionRecord maps to the prediction_log table.
type PredictionRecord struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	Kind           string          `db:"kind" json:"kind"`
	Source         Source          `db:"source" json:"source"`
	PatientID      *string         `db:"patient_id" json:"patient_id,omitempty"`
	Request        json.RawMessage `db:"request" json:"request"`
	Response       json.RawMessage `db:"response" json:"response"`
	FallbackReason *string         `db:"fallback_reason" json:"fallback_reason,omitempty"`
	LatencyMs      int             `db:"latency_ms" json:"latency_ms"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// KindSummary aggregates the prediction log for one kind.
type KindSummary struct {
	Kind         string  `json:"kind"`
	Total        int     `json:"total"`
	Fallbacks    int     `json:"fallbacks"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// Dashboard is the operations overview for a time window.
type Dashboard struct {
	Since        time.Time     `json:"since"`
	Kinds        []KindSummary `json:"kinds"`
	Total        int           `json:"total"`
	FallbackRate float64       `json:"fallback_rate"`
}

// Status reports the predictor in use and how requests were answered since
// the process started.
type Status struct {
	Predictor string                      `json:"predictor"`
	Mode      string                      `json:"mode"`
	Counts    map[string]map[Source]int64 `json:"counts"`
	StartedAt time.Time                   `json:"started_at"`
}
