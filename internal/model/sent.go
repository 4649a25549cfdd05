package model

// SentRecord is evidence that a project's PDF was delivered to an address on
// a given day. The (Project, Email, Date) triple is the dedup key.
type SentRecord struct {
	Project string `json:"project"`
	Email   string `json:"email"`
	Date    string `json:"date"` // YYYY-MM-DD
}

// SentRecords is the in-memory view of the sent log.
type SentRecords []SentRecord

// Contains is a linear scan; the log holds tens to low hundreds of rows.
func (s SentRecords) Contains(project, email, date string) bool {
	for _, r := range s {
		if r.Project == project && r.Email == email && r.Date == date {
			return true
		}
	}
	return false
}
