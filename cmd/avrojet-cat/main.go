// Package main implements avrojet-cat, which streams the datums of Avro
// Object Container Files to stdout as JSON lines.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/avrojet/avrojet/pkg/ocf"
)

var jsonOut = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	var (
		maxRecords  int64
		schemaOnly  bool
		showVersion bool
	)
	flag.Int64Var(&maxRecords, "max", 0, "Stop after this many records (0 = all)")
	flag.BoolVar(&schemaOnly, "schema", false, "Print each file's embedded schema instead of its records")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "avrojet-cat - Stream Avro Object Container Files as JSON lines\n\n")
		fmt.Fprintf(os.Stderr, "Usage: avrojet-cat [options] <file.avro>... (use - for stdin)\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Println("avrojet-cat (avrojet)")
		return
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	var printed int64
	for _, path := range flag.Args() {
		if err := catFile(out, path, schemaOnly, maxRecords, &printed); err != nil {
			log.Fatalf("avrojet-cat: %s: %v", path, err)
		}
		if maxRecords > 0 && printed >= maxRecords {
			return
		}
	}
}

func catFile(out *bufio.Writer, path string, schemaOnly bool, maxRecords int64, printed *int64) error {
	var in io.Reader
	if path == "-" {
		in = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = bufio.NewReader(f)
	}

	r, err := ocf.NewReader(in)
	if err != nil {
		return err
	}

	if schemaOnly {
		fmt.Fprintln(out, r.Schema().Text())
		return nil
	}

	for r.Next() {
		var value interface{}
		if err := r.Decode(&value); err != nil {
			return err
		}
		line, err := jsonOut.Marshal(value)
		if err != nil {
			return err
		}
		out.Write(line)
		out.WriteByte('\n')
		*printed++
		if maxRecords > 0 && *printed >= maxRecords {
			return nil
		}
	}
	return r.Err()
}
