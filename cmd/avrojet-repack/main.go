// Package main implements avrojet-repack, which rewrites Avro Object
// Container Files with a different compression codec or block size.
// Input files are processed concurrently, bounded by a weighted semaphore.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
	"golang.org/x/sync/semaphore"

	"github.com/avrojet/avrojet/internal/config"
	"github.com/avrojet/avrojet/pkg/ocf"
)

func main() {
	var (
		configFile  string
		codecName   string
		blockKiB    int
		outDir      string
		concurrency int
		showVersion bool
	)
	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&codecName, "codec", "", "Target compression codec (null, deflate, snappy, bzip2, xz, zstandard)")
	flag.IntVar(&blockKiB, "block-kib", 0, "Block flush threshold in KiB")
	flag.StringVar(&outDir, "out-dir", ".", "Directory for rewritten files")
	flag.IntVar(&concurrency, "concurrency", 0, "Number of files processed in parallel")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "avrojet-repack - Rewrite Avro Object Container Files with a different codec\n\n")
		fmt.Fprintf(os.Stderr, "Usage: avrojet-repack [options] <file.avro>...\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  AVROJET_CODEC            Target compression codec\n")
		fmt.Fprintf(os.Stderr, "  AVROJET_BLOCK_SIZE_KIB   Block flush threshold\n")
		fmt.Fprintf(os.Stderr, "  AVROJET_CONCURRENCY      Parallel file count\n")
	}
	flag.Parse()

	if showVersion {
		fmt.Println("avrojet-repack (avrojet)")
		return
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.LoadFromFile(configFile)
		if err != nil {
			log.Fatalf("avrojet-repack: %v", err)
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)
	if codecName != "" {
		cfg.Codec = codecName
	}
	if blockKiB > 0 {
		cfg.BlockSizeKiB = blockKiB
	}
	if concurrency > 0 {
		cfg.Concurrency = concurrency
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("avrojet-repack: %v", err)
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		log.Fatalf("avrojet-repack: %v", err)
	}

	ctx := context.Background()
	sem := semaphore.NewWeighted(int64(cfg.Concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, path := range flag.Args() {
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Fatalf("avrojet-repack: %v", err)
		}
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			defer sem.Release(1)
			if err := repack(path, outDir, cfg); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: %w", path, err)
				}
				mu.Unlock()
				return
			}
			log.Printf("repacked %s (%s, %d KiB blocks)", filepath.Base(path), cfg.Codec, cfg.BlockSizeKiB)
		}(path)
	}
	wg.Wait()

	if firstErr != nil {
		log.Fatalf("avrojet-repack: %v", firstErr)
	}
}

func repack(path, outDir string, cfg *config.Config) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	r, err := ocf.NewReader(bufio.NewReader(in), ocf.WithReaderMaxAllocSize(cfg.MaxAlloc()))
	if err != nil {
		return err
	}

	outPath := filepath.Join(outDir, filepath.Base(path))
	if outPath == path {
		return fmt.Errorf("output would overwrite input, choose a different --out-dir")
	}
	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	buffered := bufio.NewWriter(out)
	w, err := ocf.NewWriter(buffered, r.Schema(),
		ocf.WithCodec(cfg.Codec),
		ocf.WithBlockSize(cfg.BlockSize()))
	if err != nil {
		return err
	}

	for r.Next() {
		var value interface{}
		if err := r.Decode(&value); err != nil {
			return err
		}
		if err := w.Write(value); err != nil {
			return err
		}
	}
	if err := r.Err(); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	if err := buffered.Flush(); err != nil {
		return err
	}
	return out.Sync()
}
