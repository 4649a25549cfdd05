package model

// FieldType is the declared type of an account spreadsheet column.
type FieldType string

const (
	FieldString    FieldType = "string"
	FieldNumber    FieldType = "number"
	FieldEmail     FieldType = "email"
	FieldEmailList FieldType = "emailList"
)

// Column names of the accounts spreadsheet.
const (
	ColProjectNumber = "project number"
	ColProjectName   = "project name"
	ColProjectID     = "teamgantt project id"
	ColFirstName     = "customer first name"
	ColLastName      = "customer last name"
	ColEmail         = "customer email"
	ColEmailCC       = "customer email cc"
)

type Field struct {
	ID       string    `json:"id"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
}

// AccountSchema describes the columns of an accounts row in the order they
// are checked.
type AccountSchema struct {
	Fields []Field `json:"fields"`
}

// DefaultAccountSchema returns the fixed accounts spreadsheet schema.
func DefaultAccountSchema() AccountSchema {
	return AccountSchema{
		Fields: []Field{
			{ID: ColProjectNumber, Type: FieldString, Required: true},
			{ID: ColProjectName, Type: FieldString, Required: true},
			{ID: ColProjectID, Type: FieldNumber, Required: true},
			{ID: ColFirstName, Type: FieldString, Required: true},
			{ID: ColLastName, Type: FieldString, Required: true},
			{ID: ColEmail, Type: FieldEmail, Required: true},
			{ID: ColEmailCC, Type: FieldEmailList, Required: false},
		},
	}
}
