package main

import "encoding/json"
import "flag"
import "fmt"
import "math/rand"
import "os"
import "strings"
import "time"

import "github.com/pkg/errors"

import "github.com/junosan/char-lm/datasets"
import "github.com/junosan/char-lm/net"
import "github.com/junosan/char-lm/net/hashctx"
import "github.com/junosan/char-lm/workspace"

type config struct {
	Model string `json:"model"`
	Chars int    `json:"chars"`
}

func checkErr(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "gen_text:", err)
		os.Exit(1)
	}
}

func main() {
	model := flag.String("model", "", "workspace holding the best checkpoint")
	chars := flag.Int("chars", 100, "number of characters to generate")
	configFile := flag.String("config", "", "JSON file with \"model\" and \"chars\" keys, used when the flags are not given")
	seed := flag.Int64("seed", 0, "random seed, 0 picks one")
	flag.Parse()

	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		checkErr(errors.Wrapf(err, "reading config %q", *configFile))
		var c config
		checkErr(errors.Wrapf(json.Unmarshal(data, &c), "parsing config %q", *configFile))
		set := make(map[string]bool)
		flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
		if !set["model"] && c.Model != "" {
			*model = c.Model
		}
		if !set["chars"] && c.Chars > 0 {
			*chars = c.Chars
		}
	}
	if *model == "" || flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: gen_text -model <workspace> [-chars n] <text>")
		os.Exit(2)
	}

	text := strings.ToLower(strings.Join(flag.Args(), " "))
	prime, err := datasets.EncodeString(text)
	checkErr(err)

	store, err := workspace.Open(*model)
	checkErr(err)
	blob, err := store.Load("best")
	store.Close()
	checkErr(err)
	m, err := hashctx.Load(blob)
	checkErr(err)

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	gen, err := net.Generate(m, prime, *chars, rand.New(rand.NewSource(*seed)))
	checkErr(err)
	fmt.Println(text + datasets.Decode(gen))
}
