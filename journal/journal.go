// Package journal records training runs in a sqlite database so that
// learning curves of many runs can be compared with plain SQL.
package journal

import "database/sql"
import "encoding/json"
import "math"
import "time"

import "github.com/pkg/errors"
import _ "modernc.org/sqlite"

import "github.com/junosan/char-lm/trainer"

const schema = `
CREATE TABLE IF NOT EXISTS runs(
	id TEXT PRIMARY KEY,
	started REAL NOT NULL,
	options TEXT NOT NULL,
	seed INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS epochs(
	run_id TEXT NOT NULL REFERENCES runs(id),
	epoch INTEGER NOT NULL,
	trained_frames INTEGER NOT NULL,
	discarded_frames INTEGER NOT NULL,
	lr REAL NOT NULL,
	train_loss REAL,
	eval_loss REAL,
	best INTEGER NOT NULL,
	state TEXT NOT NULL,
	ts REAL NOT NULL,
	PRIMARY KEY(run_id, epoch)
);
CREATE TABLE IF NOT EXISTS finals(
	run_id TEXT PRIMARY KEY REFERENCES runs(id),
	trained_frames INTEGER NOT NULL,
	discarded_frames INTEGER NOT NULL,
	train REAL,
	dev REAL,
	test REAL
);`

// Journal is a trainer.Observer writing into sqlite. It is safe for use by
// one run at a time.
type Journal struct {
	db    *sql.DB
	runID string
}

// Open opens or creates the database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "journal %q", path)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "journal %q schema", path)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// BeginRun registers a run; subsequent records are attributed to it.
func (j *Journal) BeginRun(id string, options interface{}, seed int64) error {
	opts, err := json.Marshal(options)
	if err != nil {
		return errors.Wrap(err, "encoding run options")
	}
	_, err = j.db.Exec("INSERT INTO runs(id, started, options, seed) VALUES(?,?,?,?)",
		id, unixSeconds(time.Now()), string(opts), seed)
	if err != nil {
		return errors.Wrapf(err, "journal run %s", id)
	}
	j.runID = id
	return nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000.0
}

// nullable stores non-finite losses as NULL.
func nullable(l trainer.Loss) sql.NullFloat64 {
	f := float64(l)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

func (j *Journal) ObserveEpoch(r trainer.EpochRecord) error {
	best := 0
	if r.Best {
		best = 1
	}
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := j.db.Exec(`INSERT INTO epochs(run_id, epoch, trained_frames, discarded_frames, lr,
		train_loss, eval_loss, best, state, ts) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		j.run(r.RunID), r.Epoch, r.TrainedFrames, r.DiscardedFrames, r.LR,
		nullable(r.TrainLoss), nullable(r.EvalLoss), best, r.State.String(), unixSeconds(ts))
	return errors.Wrapf(err, "journal epoch %d", r.Epoch)
}

func (j *Journal) ObserveFinal(r trainer.FinalRecord) error {
	_, err := j.db.Exec(`INSERT INTO finals(run_id, trained_frames, discarded_frames, train, dev, test)
		VALUES(?,?,?,?,?,?)`,
		j.run(r.RunID), r.TrainedFrames, r.DiscardedFrames, nullable(r.Train), nullable(r.Dev), nullable(r.Test))
	return errors.Wrap(err, "journal final losses")
}

func (j *Journal) run(id string) string {
	if id != "" {
		return id
	}
	return j.runID
}

// Epoch is one row of the epochs table.
type Epoch struct {
	Epoch           int
	TrainedFrames   int64
	DiscardedFrames int64
	LR              float64
	TrainLoss       float64
	EvalLoss        float64
	Best            bool
	State           string
}

// Epochs returns the epochs of a run in order. Missing losses read as +Inf.
func (j *Journal) Epochs(runID string) ([]Epoch, error) {
	rows, err := j.db.Query(`SELECT epoch, trained_frames, discarded_frames, lr, train_loss, eval_loss, best, state
		FROM epochs WHERE run_id = ? ORDER BY epoch`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "query run %s", runID)
	}
	defer rows.Close()
	var out []Epoch
	for rows.Next() {
		var e Epoch
		var train, eval sql.NullFloat64
		if err := rows.Scan(&e.Epoch, &e.TrainedFrames, &e.DiscardedFrames, &e.LR, &train, &eval, &e.Best, &e.State); err != nil {
			return nil, errors.Wrapf(err, "scan run %s", runID)
		}
		e.TrainLoss = orInf(train)
		e.EvalLoss = orInf(eval)
		out = append(out, e)
	}
	return out, errors.Wrapf(rows.Err(), "query run %s", runID)
}

func orInf(v sql.NullFloat64) float64 {
	if v.Valid {
		return v.Float64
	}
	return math.Inf(1)
}

// Runs lists run ids, oldest first.
func (j *Journal) Runs() ([]string, error) {
	rows, err := j.db.Query("SELECT id FROM runs ORDER BY started, id")
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan runs")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "query runs")
}
