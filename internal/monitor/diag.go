package monitor

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

type Diagnostic struct {
	Severity       Severity       `json:"severity"`
	Code           string         `json:"code"`
	Summary        string         `json:"summary"`
	Detail         string         `json:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
}

// TransmitFailure describes a failed frame write.
func TransmitFailure(err error, bytes int) Diagnostic {
	return Diagnostic{
		Severity: Err,
		Code:     "TX.FAIL",
		Summary:  "Frame transmission failed",
		Detail:   err.Error(),
		LikelyCauses: []string{
			"transmit channel uninstalled or claimed by another driver",
			"pin cannot stream at the configured clock",
		},
		SuggestedFixes: []string{
			"check the channel and pin settings",
			"try driver: sim to rule out wiring",
		},
		Evidence: map[string]any{"bytes": bytes},
	}
}
