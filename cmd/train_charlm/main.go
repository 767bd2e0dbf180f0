package main

import "context"
import "encoding/json"
import "flag"
import "fmt"
import "math/rand"
import "os"
import "os/signal"
import "time"

import "github.com/google/uuid"
import "github.com/klauspost/cpuid/v2"
import "github.com/pkg/errors"
import "github.com/sirupsen/logrus"

import "github.com/junosan/char-lm/datasets"
import "github.com/junosan/char-lm/journal"
import "github.com/junosan/char-lm/monitor"
import "github.com/junosan/char-lm/net/hashctx"
import "github.com/junosan/char-lm/trainer"
import "github.com/junosan/char-lm/workspace"

// config is the optional JSON file given with -config.
type config struct {
	Trainer trainer.Options `json:"trainer"`
	Model   hashctx.Options `json:"model"`
}

// loadConfig reads name over c. Flags given on the command line are applied
// again afterwards so that they win over the file.
func loadConfig(name string, c *config) error {
	data, err := os.ReadFile(name)
	if err != nil {
		return errors.Wrapf(err, "reading config %q", name)
	}
	set := make(map[string]string)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = f.Value.String()
	})
	if err := json.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "parsing config %q", name)
	}
	for k, v := range set {
		if err := flag.Set(k, v); err != nil {
			return err
		}
	}
	return nil
}

func checkErr(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "train_charlm:", err)
		os.Exit(1)
	}
}

func main() {
	conf := config{Trainer: trainer.DefaultOptions(), Model: hashctx.DefaultOptions()}

	configFile := flag.String("config", "", "JSON file with \"trainer\" and \"model\" option objects")
	dataDir := flag.String("data_dir", "", "directory holding the train, dev and test files")
	saveTo := flag.String("save_to", "", "workspace for checkpoints, a directory or a .db file")
	loadFrom := flag.String("load_from", "", "workspace to resume weights from")
	seed := flag.Int64("seed", 0, "random seed, 0 picks one")
	logFormat := flag.String("log_format", "json", "log format, json or text")
	journalPath := flag.String("journal", "", "sqlite database receiving the run records")
	monitorAddr := flag.String("monitor", "", "address serving /stats and /ws, e.g. :8080")

	// override config settings from command line
	flag.IntVar(&conf.Trainer.BatchSize, "batch_size", conf.Trainer.BatchSize, "streams per window")
	flag.IntVar(&conf.Trainer.WindowSize, "window_size", conf.Trainer.WindowSize, "time steps per window")
	flag.IntVar(&conf.Trainer.StepSize, "step_size", conf.Trainer.StepSize, "time steps the window advances in training")
	flag.IntVar(&conf.Trainer.FramesPerEpoch, "frames_per_epoch", conf.Trainer.FramesPerEpoch, "training frames per epoch")
	flag.Float64Var(&conf.Trainer.LRInitVal, "lr_init_val", conf.Trainer.LRInitVal, "initial learning rate")
	flag.Float64Var(&conf.Trainer.LRLowerBound, "lr_lower_bound", conf.Trainer.LRLowerBound, "learning rate that ends training")
	flag.Float64Var(&conf.Trainer.LRDecayRate, "lr_decay_rate", conf.Trainer.LRDecayRate, "learning rate decay factor")
	flag.IntVar(&conf.Trainer.MaxRetry, "max_retry", conf.Trainer.MaxRetry, "non improving epochs before decay")
	flag.IntVar(&conf.Model.Order, "order", conf.Model.Order, "context length of the model")
	flag.IntVar(&conf.Model.Buckets, "buckets", conf.Model.Buckets, "minimum context table size")
	flag.StringVar(&conf.Model.UpdateType, "update_type", conf.Model.UpdateType, "sgd, momentum or nesterov")
	flag.StringVar(&conf.Model.ForceType, "force_type", conf.Model.ForceType, "vanilla, rmsprop, adadelta or adam")
	flag.Float64Var(&conf.Model.GradNormClip, "grad_norm_clip", conf.Model.GradNormClip, "gradient norm clip, 0 disables")
	flag.Parse()

	if *configFile != "" {
		checkErr(loadConfig(*configFile, &conf))
	}
	if *dataDir == "" || *saveTo == "" {
		fmt.Fprintln(os.Stderr, "data_dir and save_to are mandatory")
		flag.Usage()
		os.Exit(2)
	}

	log := logrus.New()
	log.SetOutput(os.Stdout)
	switch *logFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		checkErr(errors.Errorf("unknown log format %q", *logFormat))
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))
	runID := uuid.NewString()

	splits, err := datasets.LoadSplits(*dataDir)
	checkErr(err)
	o := conf.Trainer
	checkErr(o.Validate())
	iters := make(map[string]*datasets.DataIter, len(splits))
	for _, name := range datasets.Splits {
		iters[name], err = datasets.NewDataIter(splits[name], o.WindowSize, o.StepSize, o.BatchSize, rng)
		checkErr(err)
	}

	model, err := hashctx.New(conf.Model, rng)
	checkErr(err)

	log.WithFields(logrus.Fields{
		"run_id":    runID,
		"data_dir":  *dataDir,
		"load_from": *loadFrom,
		"save_to":   *saveTo,
		"seed":      *seed,
		"train":     splits["train"].Len(),
		"dev":       splits["dev"].Len(),
		"test":      splits["test"].Len(),
		"weights":   model.NWeights(),
		"cpu":       cpuid.CPU.BrandName,
		"cores":     cpuid.CPU.PhysicalCores,
		"threads":   cpuid.CPU.LogicalCores,
	}).Info("header")
	log.WithFields(o.Fields()).Info("options")
	log.WithFields(logrus.Fields{
		"order":          conf.Model.Order,
		"buckets":        model.Buckets(),
		"update_type":    conf.Model.UpdateType,
		"update_mu":      conf.Model.UpdateMu,
		"force_type":     conf.Model.ForceType,
		"force_ms_decay": conf.Model.ForceMsDecay,
		"grad_norm_clip": conf.Model.GradNormClip,
	}).Info("model")

	_, err = trainer.Resume(model, *loadFrom, log)
	checkErr(err)

	store, err := workspace.Open(*saveTo)
	checkErr(err)
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	t := &trainer.Trainer{
		Options: o,
		Model:   model,
		Train:   iters["train"],
		Dev:     iters["dev"],
		Test:    iters["test"],
		Store:   store,
		RunID:   runID,
		Log:     log,
	}

	if *journalPath != "" {
		j, err := journal.Open(*journalPath)
		checkErr(err)
		defer j.Close()
		checkErr(j.BeginRun(runID, conf, *seed))
		t.Observers = append(t.Observers, j)
	}

	if *monitorAddr != "" {
		m := monitor.New(runID, log)
		t.Observers = append(t.Observers, m)
		go func() {
			if err := m.ListenAndServe(ctx, *monitorAddr); err != nil {
				log.WithError(err).Error("monitor stopped")
			}
		}()
	}

	_, err = t.Run(ctx)
	if errors.Cause(err) == context.Canceled {
		log.Warn("interrupted, best weights restored")
		return
	}
	checkErr(err)
}
