package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccelerationMode(t *testing.T) {
	tests := []struct {
		in   string
		want AccelerationMode
	}{
		{"AUTO", AccelerationAuto},
		{"auto", AccelerationAuto},
		{"DSP", AccelerationDSP},
		{" gpu ", AccelerationGPU},
		{"NONE", AccelerationNone},
		{"None", AccelerationNone},
		{"nnapi", AccelerationNNAPI},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAccelerationMode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseAccelerationMode("TPU")
	assert.ErrorContains(t, err, `"TPU"`)
}

func TestAccelerationModeNames(t *testing.T) {
	assert.Equal(t, "NONE", AccelerationNone.Name())
	assert.Equal(t, "None", AccelerationNone.String())
	assert.Equal(t, "AccelerationMode(42)", AccelerationMode(42).String())
	assert.False(t, AccelerationAuto.IsConcrete())
	assert.True(t, AccelerationNNAPI.IsConcrete())
	assert.False(t, AccelerationMode(-1).IsConcrete())
}

func TestAccelerationModeJSON(t *testing.T) {
	b, err := json.Marshal(Preferences{Confidence: 0.25, Acceleration: AccelerationGPU})
	require.NoError(t, err)
	assert.JSONEq(t, `{"confidence":0.25,"accelerationType":"GPU"}`, string(b))

	var p Preferences
	require.NoError(t, json.Unmarshal([]byte(`{"confidence":0.7,"accelerationType":"dsp"}`), &p))
	assert.Equal(t, AccelerationDSP, p.Acceleration)

	assert.Error(t, json.Unmarshal([]byte(`{"accelerationType":"TPU"}`), &p))
	_, err = json.Marshal(AccelerationMode(9))
	assert.Error(t, err)
}

func TestAccelerationModes(t *testing.T) {
	modes := AccelerationModes()
	require.Len(t, modes, 5)

	names := make([]string, 0, len(modes))
	for _, m := range modes {
		names = append(names, m.Name)
		assert.NotEmpty(t, m.Description)
	}
	assert.Equal(t, []string{"AUTO", "DSP", "GPU", "NONE", "NNAPI"}, names)
	assert.True(t, modes[AccelerationNNAPI].IsModernAPI)
	assert.False(t, modes[AccelerationGPU].IsModernAPI)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Auto (None)", DisplayName(AccelerationAuto, AccelerationNone))
	assert.Equal(t, "Auto (DSP)", DisplayName(AccelerationAuto, AccelerationDSP))
	assert.Equal(t, "GPU", DisplayName(AccelerationGPU, AccelerationGPU))
}
