package p2d

import (
	"fmt"

	"github.com/ghodss/yaml"
)

// Segment is one leg of an applied current/voltage protocol. Modes:
// "CC" drives the configured current (amperes, discharge positive) for
// Duration seconds or until a voltage cutoff; "CV" holds the terminal
// voltage until the current magnitude drops below CurrentCutoff; "rest"
// is CC at zero current.
type Segment struct {
	Mode              string  `yaml:"mode"`
	Current           float64 `yaml:"current"`
	Voltage           float64 `yaml:"voltage"`
	Duration          float64 `yaml:"duration"`
	VoltageCutoffLow  float64 `yaml:"voltageCutoffLow"`
	VoltageCutoffHigh float64 `yaml:"voltageCutoffHigh"`
	CurrentCutoff     float64 `yaml:"currentCutoff"`
}

type Protocol struct {
	Segments []Segment `yaml:"segments"`
}

func (p *Protocol) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, p); err != nil {
		return err
	}
	return p.Validate()
}

func (p *Protocol) Validate() error {
	if len(p.Segments) == 0 {
		return fmt.Errorf("protocol has no segments")
	}
	for i := range p.Segments {
		s := &p.Segments[i]
		if _, err := s.control(); err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
		switch s.Mode {
		case "CV", "cv":
			if s.Duration <= 0 && s.CurrentCutoff <= 0 {
				return fmt.Errorf("segment %d: CV needs a duration or a current cutoff", i)
			}
		default:
			if s.Duration <= 0 && s.VoltageCutoffLow <= 0 && s.VoltageCutoffHigh <= 0 {
				return fmt.Errorf("segment %d: CC needs a duration or a voltage cutoff", i)
			}
		}
	}
	return nil
}

func (s *Segment) control() (Control, error) {
	switch s.Mode {
	case "CC", "cc", "":
		return Control{Mode: CC, Current: s.Current}, nil
	case "rest", "Rest":
		return Control{Mode: CC, Current: 0}, nil
	case "CV", "cv":
		return Control{Mode: CV, Voltage: s.Voltage}, nil
	}
	return Control{}, fmt.Errorf("unknown segment mode %q", s.Mode)
}

func (s *Segment) String() string {
	switch s.Mode {
	case "CV", "cv":
		return fmt.Sprintf("CV %.4g V (cutoff %.4g A)", s.Voltage, s.CurrentCutoff)
	case "rest", "Rest":
		return fmt.Sprintf("rest %.4g s", s.Duration)
	}
	return fmt.Sprintf("CC %.4g A for %.4g s", s.Current, s.Duration)
}
