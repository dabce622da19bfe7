// Package verify runs the relying-party verification pipeline over a badge
// artifact and reports one named check per stage.
package verify

import "fmt"

// Status is the outcome of a check.
type Status string

// Check statuses.
const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
	// StatusPending marks a check that could not run because a stage it
	// depends on did not succeed.
	StatusPending Status = "pending"
)

// Check names in report order.
const (
	CheckExtraction  = "extraction"
	CheckStructure   = "structure"
	CheckIssuer      = "issuer"
	CheckController  = "controller"
	CheckProof       = "proof"
	CheckAchievement = "achievement"
	CheckValidity    = "validity"
)

// Check is the result of one pipeline stage.
type Check struct {
	Name    string         `json:"name"`
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Report is the full outcome of a verification run. Credential is nil when
// no credential could be extracted from the artifact.
type Report struct {
	Checks     []Check        `json:"checks"`
	Credential map[string]any `json:"credential"`
}

// Valid reports whether a credential was extracted and no check failed.
// Warnings and pending checks do not invalidate a report.
func (r *Report) Valid() bool {
	if r.Credential == nil {
		return false
	}
	for _, c := range r.Checks {
		if c.Status == StatusError {
			return false
		}
	}
	return true
}

// Find returns the check named name.
func (r *Report) Find(name string) (Check, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return Check{}, false
}

// Names returns the check names in report order.
func (r *Report) Names() []string {
	names := make([]string, len(r.Checks))
	for i, c := range r.Checks {
		names[i] = c.Name
	}
	return names
}

func successf(name, format string, args ...any) Check {
	return Check{Name: name, Status: StatusSuccess, Message: fmt.Sprintf(format, args...)}
}

func warningf(name, format string, args ...any) Check {
	return Check{Name: name, Status: StatusWarning, Message: fmt.Sprintf(format, args...)}
}

func errorf(name, format string, args ...any) Check {
	return Check{Name: name, Status: StatusError, Message: fmt.Sprintf(format, args...)}
}

func pendingf(name, format string, args ...any) Check {
	return Check{Name: name, Status: StatusPending, Message: fmt.Sprintf(format, args...)}
}

func (c Check) with(details map[string]any) Check {
	c.Details = details
	return c
}
