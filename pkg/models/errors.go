package models

import (
	"time"

	"github.com/ajitpratap0/thor/pkg/errors"
)

// ErrorTimeLayout is the layout of ErrorRecord.ErrorTime.
const ErrorTimeLayout = "2006-01-02 15:04:05"

// ErrorRecord is one recovered failure in a run.
type ErrorRecord struct {
	ErrorName        string `json:"ErrorName"`
	ErrorTime        string `json:"ErrorTime"`
	ErrorDescription string `json:"ErrorDescription"`
}

// NewErrorRecord builds a record named after err's type.
func NewErrorRecord(err error, description string, now time.Time) ErrorRecord {
	return ErrorRecord{
		ErrorName:        errors.Name(err),
		ErrorTime:        now.Local().Format(ErrorTimeLayout),
		ErrorDescription: description,
	}
}

// ErrorDescriptor is the error summary of a run. Disable marks a session
// the site refused to serve.
type ErrorDescriptor struct {
	Disable   bool          `json:"Disable"`
	ErrorData []ErrorRecord `json:"error_data"`
}

// Append adds records to the descriptor.
func (d *ErrorDescriptor) Append(records ...ErrorRecord) {
	d.ErrorData = append(d.ErrorData, records...)
}
