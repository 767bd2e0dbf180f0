// Package learncurve extracts learning curves from the JSON training log
// written by train_charlm and renders them as CSV or as a two panel plot.
package learncurve

import "bufio"
import "encoding/csv"
import "encoding/json"
import "io"
import "math"
import "os"
import "strconv"

import "github.com/pkg/errors"

import "github.com/junosan/char-lm/trainer"

// Point is one epoch of a run.
type Point struct {
	Epoch int
	// Time is the cumulative training plus evaluation time in seconds.
	Time  float64
	Train float64
	Valid float64
}

// Final holds the losses of the best network.
type Final struct {
	Train, Dev, Test float64
}

// Curve is everything read from one log. Runs appended to the same log are
// concatenated.
type Curve struct {
	Points []Point
	Final  *Final
}

type entry struct {
	Msg       string       `json:"msg"`
	Epoch     int          `json:"epoch"`
	TrainLoss trainer.Loss `json:"train_loss"`
	EvalLoss  trainer.Loss `json:"eval_loss"`
	TrainSec  float64      `json:"train_sec"`
	EvalSec   float64      `json:"eval_sec"`
	Train     trainer.Loss `json:"train"`
	Dev       trainer.Loss `json:"dev"`
	Test      trainer.Loss `json:"test"`
}

// Parse reads JSON lines; lines that are not JSON objects or carry other
// messages are skipped.
func Parse(r io.Reader) (*Curve, error) {
	c := &Curve{}
	var cumul float64
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var e entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		switch e.Msg {
		case "epoch":
			cumul += e.TrainSec + e.EvalSec
			c.Points = append(c.Points, Point{
				Epoch: e.Epoch,
				Time:  cumul,
				Train: float64(e.TrainLoss),
				Valid: float64(e.EvalLoss),
			})
		case "final":
			c.Final = &Final{Train: float64(e.Train), Dev: float64(e.Dev), Test: float64(e.Test)}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "reading log")
	}
	if len(c.Points) == 0 {
		return nil, errors.New("no epoch records in log")
	}
	return c, nil
}

// ParseFile parses the log at name.
func ParseFile(name string) (*Curve, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "opening log %q", name)
	}
	defer f.Close()
	c, err := Parse(f)
	return c, errors.Wrapf(err, "log %q", name)
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'e', 18, 64)
}

// WriteCSV writes one "time,train,valid" row per epoch and, when the run
// finished, a last "test,train,valid" row.
func (c *Curve) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	for _, p := range c.Points {
		if err := cw.Write([]string{format(p.Time), format(p.Train), format(p.Valid)}); err != nil {
			return err
		}
	}
	if c.Final != nil {
		if err := cw.Write([]string{format(c.Final.Test), format(c.Final.Train), format(c.Final.Dev)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
