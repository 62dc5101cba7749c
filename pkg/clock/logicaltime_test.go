package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestLogicalTime_After(t *testing.T) {
	tests := []struct {
		name  string
		t     LogicalTime
		o     LogicalTime
		after bool
	}{
		{
			name:  "greater seconds",
			t:     LogicalTime{Secs: 10, Inc: 0},
			o:     LogicalTime{Secs: 9, Inc: 100},
			after: true,
		},
		{
			name:  "equal seconds greater increment",
			t:     LogicalTime{Secs: 10, Inc: 5},
			o:     LogicalTime{Secs: 10, Inc: 4},
			after: true,
		},
		{
			name:  "equal",
			t:     LogicalTime{Secs: 10, Inc: 5},
			o:     LogicalTime{Secs: 10, Inc: 5},
			after: false,
		},
		{
			name:  "lesser seconds",
			t:     LogicalTime{Secs: 9, Inc: 100},
			o:     LogicalTime{Secs: 10, Inc: 0},
			after: false,
		},
		{
			name:  "zero vs zero",
			t:     LogicalTime{},
			o:     LogicalTime{},
			after: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.after, tt.t.After(tt.o))
		})
	}
}

func TestLogicalTime_Timestamp(t *testing.T) {
	lt := NewLogicalTime(primitive.Timestamp{T: 100, I: 2})
	assert.Equal(t, LogicalTime{Secs: 100, Inc: 2}, lt)
	assert.Equal(t, primitive.Timestamp{T: 100, I: 2}, lt.Timestamp())
}

func TestLogicalTime_String(t *testing.T) {
	assert.Equal(t, "Timestamp(100, 2)", LogicalTime{Secs: 100, Inc: 2}.String())
}

func TestComponent_String(t *testing.T) {
	assert.Equal(t, "clusterTime", ClusterTime.String())
	assert.Equal(t, "configTime", ConfigTime.String())
}
