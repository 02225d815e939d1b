package sheet

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/sheet-mailer/internal/model"
)

func TestColumnName(t *testing.T) {
	tests := map[int]string{
		0:   "",
		1:   "A",
		5:   "E",
		26:  "Z",
		27:  "AA",
		52:  "AZ",
		53:  "BA",
		702: "ZZ",
		703: "AAA",
	}
	for col, want := range tests {
		assert.Equal(t, want, ColumnName(col), "column %d", col)
	}
}

func TestZipRowsPadsShorterColumn(t *testing.T) {
	rows := ZipRows(
		[]string{"Email", "a@x.com", "", "b@x.com"},
		[]string{"Status", "", ""},
	)

	assert.Equal(t, []model.Row{
		{Number: 1, Address: "Email", Status: "Status"},
		{Number: 2, Address: "a@x.com"},
		{Number: 3},
		{Number: 4, Address: "b@x.com"},
	}, rows)
}

func TestZipRowsEmpty(t *testing.T) {
	assert.Empty(t, ZipRows(nil, nil))
}
