package domain

import "fmt"

// Stage is a conversation's position in its category flow.
type Stage int

const (
	// StageInitial waits for the affected items.
	StageInitial Stage = iota
	// StagePhotoRequested waits for a photo of the items.
	StagePhotoRequested
	// StageAdditionalInfo waits for any additional details.
	StageAdditionalInfo
	// StageResolutionChoice waits for "report only" or "want resolution".
	StageResolutionChoice
	// StageFinalResolution waits for refund or reorder.
	StageFinalResolution
	// StageGeneralChat answers order-related free text. No category routes here yet.
	StageGeneralChat
	// StagePaymentResponse follows a payment option selection.
	StagePaymentResponse
)

var stageNames = [...]string{
	StageInitial:          "initial",
	StagePhotoRequested:   "photo_requested",
	StageAdditionalInfo:   "additional_info",
	StageResolutionChoice: "resolution_choice",
	StageFinalResolution:  "final_resolution",
	StageGeneralChat:      "general_chat",
	StagePaymentResponse:  "payment_response",
}

// String returns the wire name of the stage.
func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// MarshalText encodes the stage by name.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a stage name.
func (s *Stage) UnmarshalText(text []byte) error {
	stage, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = stage
	return nil
}

// ParseStage returns the stage with the given wire name.
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}
