package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gnssanalyze/rtk-advisor/internal/catalog"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to advisor.db")
	inPath := flag.String("in", "-", "JSON lines flag file, - for stdin")
	batch := flag.Int("batch", 500, "rows per transaction")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: catalog-import --db path/to/advisor.db [--in flags.jsonl] [--batch N]")
		os.Exit(2)
	}

	in := io.Reader(os.Stdin)
	if *inPath != "-" {
		f, err := os.Open(*inPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	n, err := run(*dbPath, in, *batch)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("imported %d flag rows into %s\n", n, *dbPath)
}

// #endregion main

// #region import

// run reads one catalog.Flag per line. Blank lines and lines starting with
// '#' are skipped. A row without "week" applies to every epoch.
func run(dbPath string, in io.Reader, batch int) (int, error) {
	if batch <= 0 {
		batch = 1
	}
	store, err := catalog.NewStore(dbPath)
	if err != nil {
		return 0, fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	var pending []catalog.Flag
	total := 0
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := store.UpsertFlags(pending); err != nil {
			return err
		}
		total += len(pending)
		pending = pending[:0]
		return nil
	}

	sc := bufio.NewScanner(in)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		f := catalog.Flag{Week: catalog.AllEpochs}
		if err := json.Unmarshal([]byte(text), &f); err != nil {
			return total, fmt.Errorf("line %d: %w", line, err)
		}
		if f.Coefficient < 0 {
			return total, fmt.Errorf("line %d: negative coefficient %g", line, f.Coefficient)
		}
		pending = append(pending, f)
		if len(pending) >= batch {
			if err := flush(); err != nil {
				return total, fmt.Errorf("line %d: %w", line, err)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return total, fmt.Errorf("read input: %w", err)
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

// #endregion import
