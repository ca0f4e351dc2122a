package core

// ExpiryLevel is the urgency of a license or permit expiry.
type ExpiryLevel string

const (
	ExpiryNone     ExpiryLevel = "none"
	ExpiryCritical ExpiryLevel = "critical"
	ExpiryExpired  ExpiryLevel = "expired"
)

// DefaultCriticalWindowDays is how many days ahead an expiry turns critical.
const DefaultCriticalWindowDays = 30

// SubjectType names what an expiry belongs to.
type SubjectType string

const (
	SubjectBird   SubjectType = "bird"
	SubjectPair   SubjectType = "breeding_pair"
	SubjectPermit SubjectType = "wildlife_permit"
)

// ExpiryStatus is the classification of one expiry date.
// DaysUntilExpiry is nil when there is no expiry date.
type ExpiryStatus struct {
	Level           ExpiryLevel `json:"level"`
	DaysUntilExpiry *int        `json:"days_until_expiry"`
}

// ExpiryRecord is anything carrying a license or permit number and an expiry date.
type ExpiryRecord struct {
	SubjectType SubjectType `json:"subject_type"`
	SubjectID   string      `json:"subject_id"`
	SubjectName string      `json:"subject_name"`
	Number      string      `json:"number"`
	ExpiryDate  Date        `json:"expiry_date"`
}

// ClassifyExpiry compares expiry to today in whole calendar days.
//
//	no expiry          -> none
//	days < 0           -> expired
//	0 <= days <= window -> critical
//	otherwise          -> none
func ClassifyExpiry(expiry, today Date, criticalWindowDays int) ExpiryStatus {
	if expiry.IsEmpty() {
		return ExpiryStatus{Level: ExpiryNone}
	}
	days := today.DaysUntil(expiry)
	st := ExpiryStatus{Level: ExpiryNone, DaysUntilExpiry: &days}
	switch {
	case days < 0:
		st.Level = ExpiryExpired
	case days <= criticalWindowDays:
		st.Level = ExpiryCritical
	}
	return st
}

// Classify is ClassifyExpiry applied to the record's expiry date.
func (r ExpiryRecord) Classify(today Date, criticalWindowDays int) ExpiryStatus {
	return ClassifyExpiry(r.ExpiryDate, today, criticalWindowDays)
}

// BirdExpiry returns the bird's license as an expiry record.
// ok is false when the bird has no license number and no expiry.
func BirdExpiry(b Bird) (ExpiryRecord, bool) {
	if b.LicenseNumber == "" && b.LicenseExpiry.IsEmpty() {
		return ExpiryRecord{}, false
	}
	return ExpiryRecord{
		SubjectType: SubjectBird,
		SubjectID:   b.ID,
		SubjectName: b.Name,
		Number:      b.LicenseNumber,
		ExpiryDate:  b.LicenseExpiry,
	}, true
}

// PairExpiry returns the pair's license as an expiry record.
func PairExpiry(p BreedingPair) (ExpiryRecord, bool) {
	if p.LicenseNumber == "" && p.LicenseExpiry.IsEmpty() {
		return ExpiryRecord{}, false
	}
	return ExpiryRecord{
		SubjectType: SubjectPair,
		SubjectID:   p.ID,
		SubjectName: p.PairName,
		Number:      p.LicenseNumber,
		ExpiryDate:  p.LicenseExpiry,
	}, true
}

// PermitExpiry returns the wildlife permit as an expiry record.
func PermitExpiry(p Permit) ExpiryRecord {
	name := p.PermitType
	if name == "" {
		name = p.PermitNumber
	}
	return ExpiryRecord{
		SubjectType: SubjectPermit,
		SubjectID:   p.ID,
		SubjectName: name,
		Number:      p.PermitNumber,
		ExpiryDate:  p.ExpiryDate,
	}
}
