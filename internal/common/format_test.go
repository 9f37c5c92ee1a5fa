package common

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	report := NewReport(&buf, 10)

	report.Title("POOL")
	report.Group("WALLET pool", "Resources: 2")
	report.Item(false, "addr-1", "ID: r1")
	report.Item(true, "addr-2", "ID: r2")
	report.Field("Added", 2)
	report.Close("SUMMARY")

	want := strings.Join([]string{
		"",
		"==========",
		"POOL",
		"==========",
		"",
		"┌─ WALLET pool",
		"│  Resources: 2",
		"├────────",
		"│   addr-1",
		"│     ID: r1",
		"└   addr-2",
		"      ID: r2",
		"Added:             2",
		"",
		"==========",
		"SUMMARY",
		"==========",
		"",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}
