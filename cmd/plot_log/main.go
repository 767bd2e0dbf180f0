package main

import "flag"
import "fmt"
import "os"

import "github.com/junosan/char-lm/learncurve"

func main() {
	plotTo := flag.String("plot", "", "write a figure instead of CSV, format from the extension (.svg or .png)")
	csvTo := flag.String("csv", "", "write CSV to this file instead of stdout")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: plot_log [-plot curve.svg] [-csv curve.csv] <log file>")
		os.Exit(2)
	}
	c, err := learncurve.ParseFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "plot_log:", err)
		os.Exit(1)
	}

	if *plotTo != "" {
		err = c.SavePlot(*plotTo)
	} else if *csvTo != "" {
		var f *os.File
		if f, err = os.Create(*csvTo); err == nil {
			err = c.WriteCSV(f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}
	} else {
		err = c.WriteCSV(os.Stdout)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "plot_log:", err)
		os.Exit(1)
	}
}
