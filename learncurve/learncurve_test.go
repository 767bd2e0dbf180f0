package learncurve

import "bytes"
import "math"
import "path/filepath"
import "strings"
import "testing"

const sampleLog = `{"level":"info","msg":"options","batch_size":128}
not json at all
{"epoch":1,"eval_loss":2.5,"eval_sec":1,"level":"info","msg":"epoch","train_loss":2.75,"train_sec":10}
{"epoch":2,"eval_loss":"+Inf","eval_sec":1.5,"level":"info","msg":"epoch","train_loss":2.25,"train_sec":10.5}
{"epoch":3,"eval_loss":2,"eval_sec":1,"level":"info","msg":"epoch","train_loss":2,"train_sec":10}
{"dev":2,"level":"info","msg":"final","test":2.125,"train":1.875}
`

func TestParse(t *testing.T) {
	c, err := Parse(strings.NewReader(sampleLog))
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Points) != 3 {
		t.Fatalf("got %d points", len(c.Points))
	}
	wantTime := []float64{11, 23, 34}
	for i, p := range c.Points {
		if p.Time != wantTime[i] || p.Epoch != i+1 {
			t.Errorf("point %d: %+v", i, p)
		}
	}
	if !math.IsInf(c.Points[1].Valid, 1) {
		t.Errorf("infinite loss read as %g", c.Points[1].Valid)
	}
	if c.Final == nil || c.Final.Test != 2.125 || c.Final.Train != 1.875 || c.Final.Dev != 2 {
		t.Errorf("final %+v", c.Final)
	}

	if _, err := Parse(strings.NewReader("{\"msg\":\"options\"}\n")); err == nil {
		t.Error("log without epochs accepted")
	}
}

func TestWriteCSV(t *testing.T) {
	c, _ := Parse(strings.NewReader(sampleLog))
	var buf bytes.Buffer
	if err := c.WriteCSV(&buf); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if lines[0] != "1.100000000000000000e+01,2.750000000000000000e+00,2.500000000000000000e+00" {
		t.Errorf("first row %q", lines[0])
	}
	if !strings.HasPrefix(lines[3], "2.125") {
		t.Errorf("final row should start with the test loss: %q", lines[3])
	}

	c.Final = nil
	buf.Reset()
	c.WriteCSV(&buf)
	if n := strings.Count(buf.String(), "\n"); n != 3 {
		t.Errorf("unfinished run wrote %d rows", n)
	}
}

func TestRender(t *testing.T) {
	c, _ := Parse(strings.NewReader(sampleLog))
	for _, format := range []string{"svg", "png"} {
		var buf bytes.Buffer
		if err := c.Render(&buf, format); err != nil {
			t.Fatalf("%s: %v", format, err)
		}
		if buf.Len() == 0 {
			t.Errorf("%s: empty output", format)
		}
	}
	if err := c.Render(&bytes.Buffer{}, "bmp"); err == nil {
		t.Error("unknown format accepted")
	}
	if err := c.SavePlot(filepath.Join(t.TempDir(), "curve.svg")); err != nil {
		t.Error(err)
	}
}
