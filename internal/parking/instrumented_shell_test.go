package parking

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func runShell(t *testing.T, f *instrumentedFixture, script string) string {
	t.Helper()
	var out bytes.Buffer
	shell := NewInstrumentedShell(f.lot, strings.NewReader(script), &out)
	shell.Run(context.Background())
	return out.String()
}

func TestInstrumentedShellSession(t *testing.T) {
	f := newInstrumentedFixture(t, 1)

	out := runShell(t, f, strings.Join([]string{
		"park KA01HH1234",
		"park KA01HH9999",
		"park KA01HH1234",
		"find KA01HH9999",
		"remove 1",
		"undo",
		"redo",
		"status",
		"bogus",
	}, "\n"))

	assert.Contains(t, out, "Allocated slot number: 1 to KA01HH1234")
	assert.Contains(t, out, "Lot full, KA01HH9999 queued (queue length 1)")
	assert.Contains(t, out, "Error: plate is already parked or waiting: KA01HH1234")
	assert.Contains(t, out, "Waiting, position 1")
	assert.Contains(t, out, "Slot number 1 is free, KA01HH1234 stayed 1 min, fee 0.50")
	assert.Contains(t, out, "Slot number 1 assigned to KA01HH9999")
	assert.Contains(t, out, "Undone park of KA01HH9999 in slot 1")
	assert.Contains(t, out, "Redone park of KA01HH9999 in slot 1")
	assert.Contains(t, out, "1\t\tKA01HH9999")
	assert.Contains(t, out, "Unknown command: bogus")
}

func TestInstrumentedShellEmptyHistoryAndBadInput(t *testing.T) {
	f := newInstrumentedFixture(t, 2)

	out := runShell(t, f, "undo\nredo\nremove x\nremove 2\nfind nobody\n")

	assert.Contains(t, out, "Nothing to undo")
	assert.Contains(t, out, "Nothing to redo")
	assert.Contains(t, out, "Invalid slot number")
	assert.Contains(t, out, "Error: slot not occupied or not found: slot 2")
	assert.Contains(t, out, "Not found")
}

func TestInstrumentedShellExitStopsReading(t *testing.T) {
	f := newInstrumentedFixture(t, 2)

	out := runShell(t, f, "park A\nexit\npark B\n")

	assert.Contains(t, out, "Allocated slot number: 1 to A")
	assert.NotContains(t, out, "to B")
}

func TestInstrumentedShellParkWithoutPlate(t *testing.T) {
	f := newInstrumentedFixture(t, 1)

	out := runShell(t, f, "park\n")

	assert.Regexp(t, `Allocated slot number: 1 to CAR\d+`, out)
}
