package concept

import "time"

// Datatype is the catalog datatype of a concept. Values outside the known
// set are allowed and classify as free text.
type Datatype string

const (
	DatatypeNumeric Datatype = "Numeric"
	DatatypeText    Datatype = "Text"
	DatatypeCoded   Datatype = "Coded"
	DatatypeNA      Datatype = "N/A"
)

// Concept maps to the concept table. Answers and SetMembers are loaded from
// concept_answer and concept_set_member in sort order.
type Concept struct {
	UUID         string     `db:"uuid" json:"uuid" yaml:"uuid"`
	Display      string     `db:"display" json:"display" yaml:"display"`
	Datatype     Datatype   `db:"datatype" json:"datatype" yaml:"datatype"`
	Units        *string    `db:"units" json:"units,omitempty" yaml:"units,omitempty"`
	LowAbsolute  *float64   `db:"low_absolute" json:"lowAbsolute,omitempty" yaml:"lowAbsolute,omitempty"`
	HiAbsolute   *float64   `db:"hi_absolute" json:"hiAbsolute,omitempty" yaml:"hiAbsolute,omitempty"`
	AllowDecimal *bool      `db:"allow_decimal" json:"allowDecimal,omitempty" yaml:"allowDecimal,omitempty"`
	Answers      []*Concept `json:"answers,omitempty" yaml:"answers,omitempty"`
	SetMembers   []*Concept `json:"setMembers,omitempty" yaml:"setMembers,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"-" yaml:"-"`
	UpdatedAt    time.Time  `db:"updated_at" json:"-" yaml:"-"`
}

func (c *Concept) IsCoded() bool   { return c.Datatype == DatatypeCoded }
func (c *Concept) IsNumeric() bool { return c.Datatype == DatatypeNumeric }
func (c *Concept) IsSet() bool     { return len(c.SetMembers) > 0 }

// HasAnswer reports whether uuid is one of the concept's legal answers.
func (c *Concept) HasAnswer(uuid string) bool {
	for _, a := range c.Answers {
		if a != nil && a.UUID == uuid {
			return true
		}
	}
	return false
}

// Summary is a flat search result without answers or members.
type Summary struct {
	UUID     string   `json:"uuid"`
	Display  string   `json:"display"`
	Datatype Datatype `json:"datatype"`
}

func (c *Concept) Summary() Summary {
	return Summary{UUID: c.UUID, Display: c.Display, Datatype: c.Datatype}
}
