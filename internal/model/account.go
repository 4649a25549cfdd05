package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Account pairs one TeamGantt project with the customer who receives its
// Gantt chart.
type Account struct {
	ProjectID     ProjectID `json:"teamgantt_project_id" yaml:"teamgantt_project_id"`
	ProjectName   string    `json:"project_name" yaml:"project_name"`
	ProjectNumber string    `json:"project_number" yaml:"project_number"`
	Email         string    `json:"email" yaml:"email"`
	CC            []string  `json:"cc" yaml:"cc"`
	FirstName     string    `json:"first_name" yaml:"first_name"`
	LastName      string    `json:"last_name" yaml:"last_name"`
}

// Deliverable reports whether the account carries the two fields the
// pipeline cannot work without.
func (a Account) Deliverable() bool {
	return a.ProjectID != "" && strings.TrimSpace(a.Email) != ""
}

// ProjectID is TeamGantt's project identifier. Spreadsheets and API callers
// send it as either a number or a string, so both decode into the same value.
type ProjectID string

func (p *ProjectID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = ProjectID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("project id must be a string or number: %w", err)
	}
	*p = ProjectID(n.String())
	return nil
}

func (p ProjectID) String() string {
	return string(p)
}
