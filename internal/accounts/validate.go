package accounts

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"

	"github.com/ganttmailer/internal/model"
)

// ValidationError aggregates every problem found across all rows.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation errors: " + strings.Join(e.Problems, ", ")
}

// Validate filters out rows without a project number (blank spreadsheet
// rows), checks the rest against the default schema and converts them to
// accounts. It returns a *ValidationError listing every row's problems.
func Validate(rows []Row) ([]model.Account, error) {
	return ValidateWithSchema(rows, model.DefaultAccountSchema())
}

func ValidateWithSchema(rows []Row, schema model.AccountSchema) ([]model.Account, error) {
	var (
		accounts []model.Account
		problems []string
	)

	n := 0
	for _, row := range rows {
		if isEmpty(row[model.ColProjectNumber]) {
			continue
		}
		n++

		errs := checkRow(row, schema)
		if len(errs) > 0 {
			for _, e := range errs {
				problems = append(problems, fmt.Sprintf("row %d: %s", n, e))
			}
			continue
		}
		accounts = append(accounts, toAccount(row))
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return accounts, nil
}

func checkRow(row Row, schema model.AccountSchema) []string {
	var errs []string
	for _, f := range schema.Fields {
		v := row[f.ID]
		if isEmpty(v) {
			if f.Required {
				errs = append(errs, "Missing required field: "+f.ID)
			}
			continue
		}

		switch f.Type {
		case model.FieldString:
			if _, ok := v.(string); !ok {
				errs = append(errs, fmt.Sprintf("Invalid type for field %s: expected string", f.ID))
			}
		case model.FieldNumber:
			if _, ok := numberString(v); !ok {
				errs = append(errs, fmt.Sprintf("Invalid type for field %s: expected number", f.ID))
			}
		case model.FieldEmail:
			s, _ := v.(string)
			if !IsEmail(s) {
				errs = append(errs, "Invalid email format for field "+f.ID)
			}
		case model.FieldEmailList:
			s, ok := v.(string)
			if !ok {
				errs = append(errs, fmt.Sprintf("Invalid type for field %s: expected string", f.ID))
				continue
			}
			for _, addr := range SplitEmails(s) {
				if !IsEmail(addr) {
					errs = append(errs, fmt.Sprintf("Invalid email format in list for field %s: %s", f.ID, addr))
				}
			}
		}
	}
	return errs
}

func toAccount(row Row) model.Account {
	id, _ := numberString(row[model.ColProjectID])
	a := model.Account{
		ProjectID:     model.ProjectID(id),
		ProjectNumber: str(row[model.ColProjectNumber]),
		ProjectName:   str(row[model.ColProjectName]),
		FirstName:     str(row[model.ColFirstName]),
		LastName:      str(row[model.ColLastName]),
		Email:         strings.TrimSpace(str(row[model.ColEmail])),
		CC:            []string{},
	}
	if cc := str(row[model.ColEmailCC]); cc != "" {
		a.CC = SplitEmails(cc)
	}
	return a
}

// SplitEmails splits a comma-delimited address list and trims each entry.
func SplitEmails(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// IsEmail reports whether s is a single bare address (no display name) with
// a dotted domain.
func IsEmail(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	domain := s[at+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case float64:
		return t == 0
	case int:
		return t == 0
	case int64:
		return t == 0
	}
	return false
}

// numberString renders a numeric cell without a trailing ".0".
func numberString(v any) (string, bool) {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	}
	return "", false
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// ValidateAccounts checks accounts that arrive already decoded, such as an
// HTTP trigger payload, against the same rules as spreadsheet rows: a
// numeric project id, a bare recipient address and bare cc addresses.
func ValidateAccounts(list []model.Account) error {
	var problems []string
	add := func(n int, format string, args ...any) {
		problems = append(problems, fmt.Sprintf("row %d: ", n)+fmt.Sprintf(format, args...))
	}

	for i, a := range list {
		n := i + 1

		switch id := a.ProjectID.String(); {
		case id == "":
			add(n, "Missing required field: %s", model.ColProjectID)
		case !isDigits(id):
			add(n, "Invalid type for field %s: expected number", model.ColProjectID)
		}

		switch email := strings.TrimSpace(a.Email); {
		case email == "":
			add(n, "Missing required field: %s", model.ColEmail)
		case !IsEmail(email):
			add(n, "Invalid email format for field %s", model.ColEmail)
		}

		for _, addr := range a.CC {
			if !IsEmail(strings.TrimSpace(addr)) {
				add(n, "Invalid email format in list for field %s: %s", model.ColEmailCC, addr)
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
