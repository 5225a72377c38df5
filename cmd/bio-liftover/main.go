package main

/*
bio-liftover maps genomic intervals from one assembly to another using a
UCSC chain file.  Inputs follow the BED core shape (contig, start, end,
optional strand in column 6); mapped records are written to -out and
records that cannot be mapped to -out plus the ".unmap" suffix, each
annotated with a reason token.
*/

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/liftover"
	"github.com/grailbio/liftover/chain"
	"github.com/grailbio/liftover/pipeline"
)

var (
	out        = flag.String("out", "", "Mapped output path; the unmapped companion gets a .unmap suffix. Defaults to <input>.mapped")
	threads    = flag.Int("threads", 0, "Maximum number of simultaneous mapping workers; 0 = all hardware threads, 1 = single-threaded fast path")
	compatMode = flag.String("compat-mode", "improved", "Mapping semantics; 'strict' reproduces the legacy tool byte for byte, 'improved' coalesces and sorts")
	chromid    = flag.String("chromid", "asis", "Output contig naming: 'asis', 'short' (strip chr), or 'long' (prepend chr)")
	batchSize  = flag.Int("batch-size", pipeline.DefaultOpts.BatchSize, "Number of input lines per worker batch")
	statsPath  = flag.String("stats", "", "Optional path for a TSV conversion summary")
)

func bioLiftoverUsage() {
	fmt.Printf("Usage: %s [OPTIONS] chainpath inputpath\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = bioLiftoverUsage
	shutdown := grail.Init()
	defer shutdown()

	allArgs := flag.Args()
	nPositionalArgs := flag.NArg()
	positionalArgs := allArgs[len(allArgs)-nPositionalArgs:]
	if nPositionalArgs != 2 {
		log.Fatalf("Expected exactly two positional arguments (chainpath and inputpath); please check flag syntax: '%s'", strings.Join(positionalArgs, " "))
	}
	chainPath, inputPath := positionalArgs[0], positionalArgs[1]

	mode, err := liftover.ParseCompatMode(*compatMode)
	if err != nil {
		log.Fatalf("%v", err)
	}
	policy, err := liftover.ParseChromidPolicy(*chromid)
	if err != nil {
		log.Fatalf("%v", err)
	}
	outputPath := *out
	if outputPath == "" {
		outputPath = inputPath + ".mapped"
	}

	ctx := vcontext.Background()
	start := time.Now()
	chainFile, err := chain.ParseFile(ctx, chainPath)
	if err != nil {
		log.Fatalf("%s: %v", chainPath, err)
	}
	index, err := liftover.NewIndex(chainFile)
	if err != nil {
		log.Fatalf("%s: %v", chainPath, err)
	}
	log.Printf("Loaded %d chains (%d aligned blocks) from %s in %s",
		len(chainFile.Chains), index.TotalBlocks(), chainPath, time.Since(start))

	mapper := liftover.NewMapper(index, mode, policy)
	stats, err := pipeline.Run(ctx, mapper, inputPath, outputPath, pipeline.Opts{
		Threads:   *threads,
		BatchSize: *batchSize,
	})
	if err != nil {
		log.Fatalf("%s: %v", inputPath, err)
	}
	log.Printf("%s: %d records, %d mapped (%d split), %d unmapped in %s",
		inputPath, stats.Total, stats.Mapped, stats.Split, stats.Unmapped, time.Since(start))
	if *statsPath != "" {
		if err := stats.WriteTSV(ctx, *statsPath); err != nil {
			log.Fatalf("%s: %v", *statsPath, err)
		}
	}
	log.Debug.Printf("exiting")
}
