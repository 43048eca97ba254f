package model

type Room struct {
	Base
	Name      string  `db:"name" json:"name"`
	Color     string  `db:"color" json:"color"`
	Floor     *string `db:"floor" json:"floor"`
	Equipment *string `db:"equipment" json:"equipment"`
}
