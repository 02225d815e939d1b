package model

// Row is one spreadsheet row as seen by a single combined read.
type Row struct {
	// Number is the 1-indexed row position in the worksheet.
	Number int `json:"number"`

	// Address is the recipient email address cell, possibly empty.
	Address string `json:"address"`

	// Status is the delivery status cell, possibly empty.
	Status string `json:"status"`
}

// Recipient is a row that is due to receive the email in this run.
type Recipient struct {
	Row     int    `json:"row"`
	Address string `json:"address"`
}

// StatusMarker classifies the text of a status cell.
type StatusMarker int

const (
	StatusUnset StatusMarker = iota
	StatusSent
	StatusUndelivered
	// StatusOther is any non-empty text that is neither marker.
	StatusOther
)

func (s StatusMarker) String() string {
	switch s {
	case StatusUnset:
		return "unset"
	case StatusSent:
		return "sent"
	case StatusUndelivered:
		return "undelivered"
	default:
		return "other"
	}
}

// Markers holds the literal texts written into status cells.
type Markers struct {
	Sent        string
	Undelivered string
}

// MarkersFrom returns the markers configured for a sheet.
func MarkersFrom(cfg SheetConfig) Markers {
	return Markers{Sent: cfg.SentText, Undelivered: cfg.UndeliveredText}
}

// ClassifyStatus maps the text of a status cell to a StatusMarker.
// Matching is exact.
func ClassifyStatus(cell string, m Markers) StatusMarker {
	switch cell {
	case "":
		return StatusUnset
	case m.Sent:
		return StatusSent
	case m.Undelivered:
		return StatusUndelivered
	default:
		return StatusOther
	}
}
