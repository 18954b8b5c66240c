package manage

import (
	"fmt"
	"math"
	"strings"
)

// Bounds shared by the model contract and the heuristics.
const (
	MinUrgency  = 1
	MaxUrgency  = 5
	MinWaitTime = 5
	MaxWaitTime = 180

	minutesPerPatient   = 15
	fallbackTriageConf  = 0.8
	minWaitConfidence   = 0.6
	maxWaitConfidence   = 0.95
	maxOptimalStaff     = 10
	maxOptimalRooms     = 15
	lowEfficiencyLimit  = 0.8
	highEfficiencyLimit = 1.2
)

var urgencyDescriptions = map[int]string{
	1: "Non-urgent",
	2: "Low urgency",
	3: "Medium urgency",
	4: "High urgency",
	5: "Emergency",
}

// UrgencyDescription returns the label for a triage level. Levels outside
// the table read as "Medium urgency".
func UrgencyDescription(level int) string {
	if d, ok := urgencyDescriptions[level]; ok {
		return d
	}
	return "Medium urgency"
}

// departmentRules are evaluated in order; the first rule with a keyword
// found in any symptom decides the department.
var departmentRules = []struct {
	keywords   []string
	department string
}{
	{[]string{"chest", "heart"}, "Cardiology"},
	{[]string{"head", "brain"}, "Neurology"},
	{[]string{"bone", "joint"}, "Orthopedics"},
}

// EstimateWaitTime predicts the wait for the next patient from queue length,
// staffing and time of week. It never fails.
func EstimateWaitTime(q QueueState) WaitTimePrediction {
	staff := q.StaffAvailable
	if staff < 1 {
		staff = 1
	}

	base := float64(q.QueueLength * minutesPerPatient)
	staffFactor := clampFloat(5/float64(staff), 0.5, 2.0)

	timeFactor := 1.0
	switch {
	case isOffPeak(q.HourOfDay):
		timeFactor = 0.7
	case q.HourOfDay >= 10 && q.HourOfDay <= 14:
		timeFactor = 1.3
	}

	dayFactor := 1.0
	if q.DayOfWeek >= 5 {
		dayFactor = 0.8
	}

	predicted := int(math.Round(base * staffFactor * timeFactor * dayFactor))
	predicted = clampInt(predicted, MinWaitTime, MaxWaitTime)

	return WaitTimePrediction{
		PredictedWaitTime: predicted,
		Confidence:        clampFloat(1-float64(q.QueueLength)/20, minWaitConfidence, maxWaitConfidence),
		QueuePosition:     q.QueueLength,
		EstimatedWaitTime: fmt.Sprintf("%d minutes", predicted),
	}
}

// ClassifyTriage raises the caller's urgency for elderly and complex
// patients and routes by symptom keywords.
func ClassifyTriage(p PatientInfo) TriageResult {
	level := clampInt(p.UrgencyLevel, MinUrgency, MaxUrgency)
	if p.Age > 65 {
		level = min(MaxUrgency, level+1)
	}
	if p.MedicalComplexity > 5 {
		level = min(MaxUrgency, level+1)
	}

	return TriageResult{
		UrgencyLevel:          level,
		UrgencyDescription:    UrgencyDescription(level),
		RecommendedDepartment: routeDepartment(p.Symptoms, p.Department),
		EstimatedWaitTime:     fmt.Sprintf("%d minutes", level*minutesPerPatient),
		Confidence:            fallbackTriageConf,
	}
}

func routeDepartment(symptoms []string, fallback string) string {
	lowered := make([]string, len(symptoms))
	for i, s := range symptoms {
		lowered[i] = strings.ToLower(s)
	}
	for _, rule := range departmentRules {
		for _, s := range lowered {
			for _, kw := range rule.keywords {
				if strings.Contains(s, kw) {
					return rule.department
				}
			}
		}
	}
	return fallback
}

// OptimizeResources recommends staff and room counts for the queue and
// compares them with the staff on hand. CurrentEfficiency is a plain ratio
// and is not bounded.
func OptimizeResources(q QueueState) ResourceOptimization {
	queue := max(q.QueueLength, 0)
	staff := clampInt(ceilDiv(queue, 3)+2, 1, maxOptimalStaff)
	rooms := clampInt(ceilDiv(queue, 2)+3, 1, maxOptimalRooms)

	if isOffPeak(q.HourOfDay) {
		staff = max(1, staff/2)
		rooms = max(1, rooms/2)
	}

	efficiency := float64(q.StaffAvailable) / float64(max(staff, 1))

	recs := []string{
		fmt.Sprintf("Allocate %d staff members", staff),
		fmt.Sprintf("Use %d rooms", rooms),
		"Consider adjusting based on patient flow",
	}
	if efficiency < lowEfficiencyLimit {
		recs = append(recs, "Consider increasing staff allocation")
	} else if efficiency > highEfficiencyLimit {
		recs = append(recs, "Consider reducing staff allocation")
	}

	return ResourceOptimization{
		OptimalStaffAllocation: staff,
		OptimalRoomAllocation:  rooms,
		CurrentEfficiency:      efficiency,
		Recommendations:        recs,
	}
}

// isOffPeak covers the overnight hours, before 09:00 and after 17:59.
func isOffPeak(hour int) bool {
	return hour < 9 || hour > 17
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
