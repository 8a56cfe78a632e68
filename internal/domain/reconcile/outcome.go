package reconcile

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ehr/labimport/internal/platform/fhir"
)

type Diagnostic struct {
	SampleID string `json:"sampleId"`
	Message  string `json:"message"`
	Success  bool   `json:"success"`
}

// Outcome is the transient result of one pass.
type Outcome struct {
	State        State
	UpdatedCount int
	Diagnostics  []Diagnostic
	Updates      []FieldUpdate
	Err          error
}

func (o *Outcome) addDiagnostic(sampleID, msg string, success bool) {
	o.Diagnostics = append(o.Diagnostics, Diagnostic{SampleID: sampleID, Message: msg, Success: success})
}

// Success reports whether at least one row was staged and nothing aborted.
func (o *Outcome) Success() bool {
	return o.Err == nil && len(o.Updates) > 0
}

// Warnings returns the row-level problems of an otherwise successful pass.
func (o *Outcome) Warnings() []Diagnostic {
	var out []Diagnostic
	for _, d := range o.Diagnostics {
		if !d.Success {
			out = append(out, d)
		}
	}
	return out
}

func (o *Outcome) joinDiagnostics() string {
	parts := make([]string, 0, len(o.Diagnostics))
	for _, d := range o.Diagnostics {
		if !d.Success {
			parts = append(parts, d.SampleID+": "+d.Message)
		}
	}
	return strings.Join(parts, "; ")
}

// Message is the operator-facing summary.
func (o *Outcome) Message() string {
	if o.Err != nil {
		return o.Err.Error()
	}
	msg := fmt.Sprintf("%d sample(s) updated", o.UpdatedCount)
	if w := o.joinDiagnostics(); w != "" {
		msg += "; not imported: " + w
	}
	return msg
}

func (o *Outcome) MarshalJSON() ([]byte, error) {
	type view struct {
		State        State         `json:"state"`
		Success      bool          `json:"success"`
		Message      string        `json:"message"`
		UpdatedCount int           `json:"updatedCount"`
		Diagnostics  []Diagnostic  `json:"diagnostics"`
		Warnings     []Diagnostic  `json:"warnings,omitempty"`
		Updates      []FieldUpdate `json:"updates,omitempty"`
	}
	v := view{
		State:        o.State,
		Success:      o.Success(),
		Message:      o.Message(),
		UpdatedCount: o.UpdatedCount,
		Diagnostics:  o.Diagnostics,
		Updates:      o.Updates,
	}
	if v.Diagnostics == nil {
		v.Diagnostics = []Diagnostic{}
	}
	if v.Success {
		v.Warnings = o.Warnings()
	}
	return json.Marshal(v)
}

// OperationOutcome renders the pass as a FHIR OperationOutcome. An abort is
// one error issue; otherwise each row becomes an information or warning
// issue.
func (o *Outcome) OperationOutcome() *fhir.OperationOutcome {
	if o.Err != nil {
		code := fhir.IssueTypeProcessing
		if _, ok := o.Err.(*DuplicateSampleError); ok {
			code = fhir.IssueTypeDuplicate
		}
		return fhir.NewOperationOutcome(fhir.IssueSeverityError, code, o.Err.Error())
	}
	b := fhir.NewOutcomeBuilder()
	for _, d := range o.Diagnostics {
		severity, code := fhir.IssueSeverityInformation, fhir.IssueTypeInformational
		if !d.Success {
			severity, code = fhir.IssueSeverityWarning, fhir.IssueTypeProcessing
			if d.Message == MsgNotFound {
				code = fhir.IssueTypeNotFound
			}
		}
		b.AddIssueWithLocation(severity, code, d.SampleID+": "+d.Message, d.SampleID)
	}
	return b.Build()
}
