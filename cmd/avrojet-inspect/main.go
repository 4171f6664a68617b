// Package main implements avrojet-inspect, which prints the header and
// block statistics of Avro Object Container Files.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/avrojet/avrojet/pkg/ocf"
)

func main() {
	var (
		showCanonical bool
		showVersion   bool
	)
	flag.BoolVar(&showCanonical, "canonical", false, "Also print the schema's parsing canonical form")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "avrojet-inspect - Summarize Avro Object Container Files\n\n")
		fmt.Fprintf(os.Stderr, "Usage: avrojet-inspect [options] <file.avro>...\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Println("avrojet-inspect (avrojet)")
		return
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	for _, path := range flag.Args() {
		if err := inspect(path, showCanonical); err != nil {
			log.Fatalf("avrojet-inspect: %s: %v", path, err)
		}
	}
}

func inspect(path string, showCanonical bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	r, err := ocf.NewReader(bufio.NewReader(f))
	if err != nil {
		return err
	}

	// Drain the file to count blocks and datums.
	for r.Next() {
		var discard interface{}
		if err := r.Decode(&discard); err != nil {
			return err
		}
	}
	if err := r.Err(); err != nil {
		return err
	}

	fp := r.Schema().Fingerprint()
	sync := r.SyncMarker()

	fmt.Printf("%s\n", path)
	fmt.Printf("  size:        %d bytes\n", info.Size())
	fmt.Printf("  codec:       %s\n", r.Codec())
	fmt.Printf("  blocks:      %d\n", r.Blocks())
	fmt.Printf("  records:     %d\n", r.Objects())
	fmt.Printf("  sync marker: %x\n", sync)
	fmt.Printf("  fingerprint: %x (CRC-64-AVRO, little-endian)\n", fp)
	for key, value := range r.Metadata() {
		if key == ocf.MetaSchema || key == ocf.MetaCodec {
			continue
		}
		fmt.Printf("  meta %s: %q\n", key, value)
	}
	if showCanonical {
		fmt.Printf("  canonical:   %s\n", r.Schema().CanonicalForm())
	}
	return nil
}
