package progress

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

var (
	_ Reporter = (*CLIProgress)(nil)
	_ Reporter = (*NoOpProgress)(nil)
)

func TestCLIProgressWritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	p := NewCLIProgress(&buf)
	p.Start(-1, "Prefetching")
	p.Add(3)
	p.SetDescription("Prefetching Reports")
	p.Finish()

	if buf.Len() == 0 {
		t.Fatal("expected progress output")
	}
	if !strings.Contains(buf.String(), "Prefetching") {
		t.Errorf("description missing from output: %q", buf.String())
	}
}

func TestCLIProgressBeforeStartIsSafe(t *testing.T) {
	var buf bytes.Buffer
	p := NewCLIProgress(&buf)
	p.Add(1)
	p.SetDescription("x")
	p.Finish()
	if buf.Len() != 0 {
		t.Errorf("unexpected output before Start: %q", buf.String())
	}

	p.Error(errors.New("boom"))
	if !strings.Contains(buf.String(), "Error: boom") {
		t.Errorf("error not written: %q", buf.String())
	}
}
