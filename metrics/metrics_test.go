package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_BasicRegistration(t *testing.T) {
	if QueuePlayers == nil {
		t.Fatalf("QueuePlayers is nil")
	}
	if QueueStateTransitions == nil {
		t.Fatalf("QueueStateTransitions is nil")
	}
	if ServerAssignments == nil {
		t.Fatalf("ServerAssignments is nil")
	}
	if AssignmentDuration == nil {
		t.Fatalf("AssignmentDuration is nil")
	}
	if RconCommands == nil {
		t.Fatalf("RconCommands is nil")
	}
}

func TestMetrics_ServerAssignments(t *testing.T) {
	tests := []struct {
		name  string
		label string
		incN  int
	}{
		{name: "success label", label: "success", incN: 1},
		{name: "failure label", label: "failure", incN: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(ServerAssignments.WithLabelValues(tt.label))
			for i := 0; i < tt.incN; i++ {
				ServerAssignments.WithLabelValues(tt.label).Inc()
			}
			after := testutil.ToFloat64(ServerAssignments.WithLabelValues(tt.label))
			diff := after - before
			if diff != float64(tt.incN) {
				t.Fatalf("counter diff mismatch\nexpected: %#v\nactual: %#v", float64(tt.incN), diff)
			}
		})
	}
}

func TestMetrics_QueuePlayers(t *testing.T) {
	QueuePlayers.Set(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(QueuePlayers))
	QueuePlayers.Set(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(QueuePlayers))
}

func TestMetrics_AssignmentDuration(t *testing.T) {
	tests := []struct {
		name    string
		observe float64
	}{
		{name: "small", observe: 0.1},
		{name: "large", observe: 3.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			AssignmentDuration.Observe(tt.observe)
			count := testutil.CollectAndCount(AssignmentDuration)
			assert.Greater(t, count, 0, "histogram not collected; count=%#v", count)
		})
	}
}
