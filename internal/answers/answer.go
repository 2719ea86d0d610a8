package answers

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAnswer is returned for an answer whose compliant flag
	// disagrees with its non-compliance records.
	ErrInvalidAnswer = errors.New("invalid answer")
	// ErrRecordNotFound is returned when a non-compliance index is out of range.
	ErrRecordNotFound = errors.New("non-compliance record not found")
	// ErrAnswerNotFound is returned when an item has not been answered.
	ErrAnswerNotFound = errors.New("answer not found")
	// ErrUnknownAudit is returned when answers are written for a missing audit.
	ErrUnknownAudit = errors.New("unknown audit")
)

// NonComplianceRecord documents one finding against a checklist item.
// Any text field may be empty while the audit is still being filled in.
type NonComplianceRecord struct {
	Location       string   `json:"location"`
	Finding        string   `json:"finding"`
	Recommendation string   `json:"recommendation"`
	Photos         []string `json:"photos"`
}

// AuditAnswer is the verdict for one checklist item. Compliant is true
// exactly when NonComplianceData is empty; build values with Compliant or
// NonCompliant and check foreign ones with Validate.
type AuditAnswer struct {
	Compliant         bool                  `json:"compliant"`
	NonComplianceData []NonComplianceRecord `json:"non_compliance_data"`
}

// Compliant returns a compliant answer with no records.
func Compliant() AuditAnswer {
	return AuditAnswer{Compliant: true, NonComplianceData: []NonComplianceRecord{}}
}

// NonCompliant returns a non-compliant answer carrying the given records.
// At least one record is required.
func NonCompliant(records ...NonComplianceRecord) (AuditAnswer, error) {
	if len(records) == 0 {
		return AuditAnswer{}, fmt.Errorf("%w: non-compliant answer needs at least one record", ErrInvalidAnswer)
	}
	a := AuditAnswer{Compliant: false, NonComplianceData: make([]NonComplianceRecord, len(records))}
	for i, r := range records {
		a.NonComplianceData[i] = r.Clone()
	}
	return a, nil
}

// Validate reports whether the compliant flag matches the records.
func (a AuditAnswer) Validate() error {
	if a.Compliant && len(a.NonComplianceData) > 0 {
		return fmt.Errorf("%w: compliant answer carries %d non-compliance record(s)", ErrInvalidAnswer, len(a.NonComplianceData))
	}
	if !a.Compliant && len(a.NonComplianceData) == 0 {
		return fmt.Errorf("%w: non-compliant answer has no records", ErrInvalidAnswer)
	}
	return nil
}

// Clone returns a deep copy.
func (a AuditAnswer) Clone() AuditAnswer {
	out := AuditAnswer{Compliant: a.Compliant, NonComplianceData: make([]NonComplianceRecord, len(a.NonComplianceData))}
	for i, r := range a.NonComplianceData {
		out.NonComplianceData[i] = r.Clone()
	}
	return out
}

// WithRecord appends a record and forces the answer non-compliant.
func (a AuditAnswer) WithRecord(r NonComplianceRecord) AuditAnswer {
	out := a.Clone()
	out.NonComplianceData = append(out.NonComplianceData, r.Clone())
	out.Compliant = false
	return out
}

// WithoutRecord removes the record at index. Removing the last record
// makes the answer compliant again.
func (a AuditAnswer) WithoutRecord(index int) (AuditAnswer, error) {
	if index < 0 || index >= len(a.NonComplianceData) {
		return AuditAnswer{}, fmt.Errorf("%w: index %d of %d", ErrRecordNotFound, index, len(a.NonComplianceData))
	}
	out := a.Clone()
	out.NonComplianceData = append(out.NonComplianceData[:index], out.NonComplianceData[index+1:]...)
	out.Compliant = len(out.NonComplianceData) == 0
	return out, nil
}

// WithRecordAt replaces the record at index without changing compliance.
func (a AuditAnswer) WithRecordAt(index int, r NonComplianceRecord) (AuditAnswer, error) {
	if index < 0 || index >= len(a.NonComplianceData) {
		return AuditAnswer{}, fmt.Errorf("%w: index %d of %d", ErrRecordNotFound, index, len(a.NonComplianceData))
	}
	out := a.Clone()
	out.NonComplianceData[index] = r.Clone()
	return out, nil
}

// Clone returns a deep copy of the record.
func (r NonComplianceRecord) Clone() NonComplianceRecord {
	out := r
	out.Photos = append([]string{}, r.Photos...)
	return out
}

// CloneAll deep-copies an item-id to answer mapping.
func CloneAll(m map[string]AuditAnswer) map[string]AuditAnswer {
	out := make(map[string]AuditAnswer, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}
