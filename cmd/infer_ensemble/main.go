package main

import "flag"
import "fmt"
import "math"
import "math/rand"
import "os"
import "strings"

import "github.com/sirupsen/logrus"

import "github.com/junosan/char-lm/datasets"
import "github.com/junosan/char-lm/ensemble"
import "github.com/junosan/char-lm/net"
import "github.com/junosan/char-lm/net/hashctx"

func checkErr(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "infer_ensemble:", err)
		os.Exit(1)
	}
}

func loadModel(blob []byte) (net.Stepper, error) {
	return hashctx.Load(blob)
}

// crossEntropy adds -log p[target] of every row of p to sum.
func crossEntropy(sum []float64, p []float32, targets []int32, k int) {
	for b, tgt := range targets {
		v := float64(p[b*k+int(tgt)])
		sum[b] -= math.Log(math.Max(v, 1e-30))
	}
}

func main() {
	models := flag.String("models", "", "comma separated workspaces")
	text := flag.String("text", "", "text file to evaluate on")
	batchSize := flag.Int("batch_size", 16, "parallel streams")
	steps := flag.Int("steps", 4096, "time steps per stream")
	seed := flag.Int64("seed", 1, "random seed for stream offsets and state orderings")
	flag.Parse()

	if *models == "" || *text == "" {
		fmt.Fprintln(os.Stderr, "models and text are mandatory")
		flag.Usage()
		os.Exit(2)
	}
	log := logrus.New()

	rng := rand.New(rand.NewSource(*seed))
	corpus, err := datasets.LoadCorpus(*text)
	checkErr(err)
	batcher, err := datasets.NewTextBatcher(corpus, *batchSize, rng)
	checkErr(err)

	workspaces := strings.Split(*models, ",")
	indices := make([][]int32, len(workspaces))
	for i := range indices {
		indices[i] = make([]int32, *batchSize)
		for b, id := range rng.Perm(*batchSize) {
			indices[i][b] = int32(id)
		}
	}
	e, err := ensemble.Open(workspaces, *batchSize, indices, loadModel)
	checkErr(err)

	bs := *batchSize
	inDim, k := e.Dimensions()
	in := make([]float32, e.Len()*bs*inDim)
	input := [][]int32{make([]int32, bs)}
	target := [][]int32{make([]int32, bs)}
	single := make([][]float64, e.Len())
	for i := range single {
		single[i] = make([]float64, bs)
	}
	avg := make([]float64, bs)

	for t := 0; t < *steps; t++ {
		batcher.NextInto(input, target)
		for i := 0; i < e.Len(); i++ {
			for b, sym := range input[0] {
				off := (i*bs + b) * inDim
				hashctx.OneHot(in[off:off+inDim], byte(sym))
			}
		}
		out, err := e.RunOneStep(in)
		checkErr(err)
		n := bs * k
		for i := range single {
			crossEntropy(single[i], out[i*n:(i+1)*n], target[0], k)
		}
		crossEntropy(avg, e.Average(out), target[0], k)
	}

	frames := float64(*steps * bs)
	mean := func(v []float64) float64 {
		var s float64
		for _, x := range v {
			s += x
		}
		return s / frames
	}
	for i, ws := range workspaces {
		log.WithFields(logrus.Fields{"model": ws, "loss": mean(single[i])}).Info("single")
	}
	log.WithFields(logrus.Fields{"models": e.Len(), "frames": frames, "loss": mean(avg)}).Info("ensemble")
}
