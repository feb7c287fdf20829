package models

import (
	"fmt"
	"strings"
)

// AccelerationMode selects the hardware backend that executes the network.
type AccelerationMode int

const (
	// AccelerationAuto tries DSP, GPU and None in that order.
	AccelerationAuto AccelerationMode = iota
	AccelerationDSP
	AccelerationGPU
	AccelerationNone
	AccelerationNNAPI
)

type accelerationMeta struct {
	name        string
	label       string
	description string
	modernAPI   bool
}

var accelerationTable = []accelerationMeta{
	AccelerationAuto: {
		name:        "AUTO",
		label:       "Auto",
		description: "Automatically picks the first working backend from DSP, GPU and None.",
	},
	AccelerationDSP: {
		name:        "DSP",
		label:       "DSP",
		description: "Runs the model on a dedicated DSP/NPU accelerator. Requires a quantized model.",
	},
	AccelerationGPU: {
		name:        "GPU",
		label:       "GPU",
		description: "Runs the model on the GPU.",
	},
	AccelerationNone: {
		name:        "NONE",
		label:       "None",
		description: "No acceleration, the model runs on the CPU.",
	},
	AccelerationNNAPI: {
		name:        "NNAPI",
		label:       "NNAPI",
		description: "Delegates execution to the platform neural network API, which picks the most suitable hardware.",
		modernAPI:   true,
	},
}

// AccelerationInfo describes a mode for preference pickers.
type AccelerationInfo struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
	IsModernAPI bool   `json:"isModernAPI"`
}

// AccelerationModes lists every supported mode in declaration order.
func AccelerationModes() []AccelerationInfo {
	out := make([]AccelerationInfo, 0, len(accelerationTable))
	for _, m := range accelerationTable {
		out = append(out, AccelerationInfo{
			Name:        m.name,
			Label:       m.label,
			Description: m.description,
			IsModernAPI: m.modernAPI,
		})
	}
	return out
}

func (m AccelerationMode) valid() bool {
	return m >= AccelerationAuto && int(m) < len(accelerationTable)
}

// Name is the stable identifier used in config files and persisted preferences.
func (m AccelerationMode) Name() string {
	if !m.valid() {
		return fmt.Sprintf("AccelerationMode(%d)", int(m))
	}
	return accelerationTable[m].name
}

// String returns the human label.
func (m AccelerationMode) String() string {
	if !m.valid() {
		return fmt.Sprintf("AccelerationMode(%d)", int(m))
	}
	return accelerationTable[m].label
}

// IsConcrete reports whether m names an actual backend rather than Auto.
func (m AccelerationMode) IsConcrete() bool {
	return m.valid() && m != AccelerationAuto
}

// ParseAccelerationMode accepts either the name or the label, case-insensitively.
func ParseAccelerationMode(s string) (AccelerationMode, error) {
	s = strings.TrimSpace(s)
	for i, m := range accelerationTable {
		if strings.EqualFold(s, m.name) || strings.EqualFold(s, m.label) {
			return AccelerationMode(i), nil
		}
	}
	return AccelerationAuto, fmt.Errorf("unknown acceleration mode %q", s)
}

func (m AccelerationMode) MarshalText() ([]byte, error) {
	if !m.valid() {
		return nil, fmt.Errorf("invalid acceleration mode %d", int(m))
	}
	return []byte(m.Name()), nil
}

func (m *AccelerationMode) UnmarshalText(text []byte) error {
	parsed, err := ParseAccelerationMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// DisplayName formats the mode shown next to the statistics. When Auto was
// requested the resolved backend is shown in parentheses.
func DisplayName(requested, resolved AccelerationMode) string {
	if requested == AccelerationAuto {
		return fmt.Sprintf("%s (%s)", requested, resolved)
	}
	return requested.String()
}
