// Command barbench round-trips synthetic archives through a storage
// backend and reports throughput/latency, checking the result against a
// saved baseline to flag performance regressions — the archive-domain
// replacement for the teacher's S3 range/multipart load-test runner.
package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rtanaka/barchive/internal/archive"
	"github.com/rtanaka/barchive/internal/entry"
	"github.com/rtanaka/barchive/internal/storage"
	"github.com/rtanaka/barchive/internal/storage/localfs"
	"github.com/rtanaka/barchive/internal/storage/s3backend"
)

func main() {
	var (
		target       = flag.String("target", "file:///tmp/barbench", "storage specifier to bench against (file:// or s3://bucket)")
		provider     = flag.String("provider", "aws", "BackendConfig.Provider, for s3:// targets")
		region       = flag.String("region", "us-east-1", "BackendConfig.Region, for s3:// targets")
		endpoint     = flag.String("endpoint", "", "BackendConfig.Endpoint, for s3:// targets")
		accessKey    = flag.String("access-key", "", "access key, for s3:// targets")
		secretKey    = flag.String("secret-key", "", "secret key, for s3:// targets")
		entrySize    = flag.Int64("entry-size", 4<<20, "size in bytes of each archive's single entry")
		iterations   = flag.Int("iterations", 10, "number of write+read round trips to run")
		baselineFile = flag.String("baseline", "testdata/barbench_baseline.json", "path to the baseline file")
		threshold    = flag.Float64("threshold", 15.0, "regression threshold, in percent slower than baseline")
		updateBase   = flag.Bool("update-baseline", false, "write this run's results as the new baseline instead of comparing")
		verbose      = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	spec, err := storage.ParseSpecifier(*target)
	if err != nil {
		log.Fatalf("parse target: %v", err)
	}

	backend, path, err := openBackend(spec, *provider, *region, *endpoint, *accessKey, *secretKey)
	if err != nil {
		log.Fatalf("open backend: %v", err)
	}
	defer backend.Close(context.Background())

	logger.WithFields(logrus.Fields{
		"target":     *target,
		"entrySize":  *entrySize,
		"iterations": *iterations,
	}).Info("starting round-trip benchmark")

	result, err := runBenchmark(backend, path, *entrySize, *iterations, logger)
	if err != nil {
		log.Fatalf("benchmark failed: %v", err)
	}

	printResult(result)

	if *updateBase {
		if err := saveBaseline(*baselineFile, result); err != nil {
			log.Fatalf("save baseline: %v", err)
		}
		fmt.Println("baseline updated")
		return
	}

	baseline, err := loadBaseline(*baselineFile)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("no baseline found; run with -update-baseline to create one")
			return
		}
		log.Fatalf("load baseline: %v", err)
	}

	regressed, pctSlower := compareToBaseline(result, baseline, *threshold)
	if regressed {
		log.Fatalf("regression detected: write+read is %.1f%% slower than baseline (threshold %.1f%%)", pctSlower, *threshold)
	}
	fmt.Printf("within threshold: %.1f%% vs. baseline (threshold %.1f%%)\n", pctSlower, *threshold)
}

// openBackend dispatches spec.Scheme to a concrete storage.Backend and
// returns the backend plus the archive path relative to it — the same
// file-vs-hosted dispatch the interactive CLI front-end would do, scoped
// down here to the two backends worth benchmarking without a real storage
// credential prompt.
func openBackend(spec storage.Specifier, provider, region, endpoint, accessKey, secretKey string) (storage.Backend, string, error) {
	ctx := context.Background()
	switch spec.Scheme {
	case storage.SchemeFile:
		// Init sets Backend's root from spec.Path, so benchmark paths
		// written relative to that root must NOT repeat spec.Path.
		b := localfs.New("/")
		if _, err := b.Init(ctx, spec, nil); err != nil {
			return nil, "", err
		}
		return b, "", nil
	default:
		b := s3backend.New()
		s3Spec := spec
		if accessKey != "" {
			s3Spec.User = accessKey
		}
		if secretKey != "" {
			s3Spec.Password = secretKey
		}
		options := map[string]string{"provider": provider, "region": region, "endpoint": endpoint}
		if _, err := b.Init(ctx, s3Spec, options); err != nil {
			return nil, "", err
		}
		return b, spec.Path, nil
	}
}

// Result holds one benchmark run's aggregate timings, in nanoseconds per
// byte so baselines stay comparable across different -entry-size values.
type Result struct {
	EntrySize      int64   `json:"entry_size"`
	Iterations     int     `json:"iterations"`
	WriteNsPerByte float64 `json:"write_ns_per_byte"`
	ReadNsPerByte  float64 `json:"read_ns_per_byte"`
	TotalDuration  string  `json:"total_duration"`
}

func runBenchmark(backend storage.Backend, basePath string, entrySize int64, iterations int, logger *logrus.Logger) (*Result, error) {
	ctx := context.Background()
	ec := &archive.EngineContext{}

	payload := make([]byte, entrySize)
	if _, err := rand.Read(payload); err != nil {
		return nil, fmt.Errorf("generate payload: %w", err)
	}

	var totalWrite, totalRead time.Duration
	start := time.Now()

	for i := 0; i < iterations; i++ {
		name := fmt.Sprintf("barbench-%d.bar", i)
		path := name
		if basePath != "" {
			path = basePath + "/" + name
		}

		writeStart := time.Now()
		if err := writeArchive(ctx, ec, backend, path, payload); err != nil {
			return nil, fmt.Errorf("iteration %d write: %w", i, err)
		}
		totalWrite += time.Since(writeStart)

		readStart := time.Now()
		got, err := readArchive(ctx, ec, backend, path)
		if err != nil {
			return nil, fmt.Errorf("iteration %d read: %w", i, err)
		}
		totalRead += time.Since(readStart)

		if !bytes.Equal(got, payload) {
			return nil, fmt.Errorf("iteration %d: read-back data does not match what was written", i)
		}

		if err := backend.Delete(ctx, path); err != nil {
			logger.WithError(err).WithField("path", path).Warn("failed to clean up benchmark archive")
		}
	}

	totalBytes := float64(entrySize) * float64(iterations)
	return &Result{
		EntrySize:      entrySize,
		Iterations:     iterations,
		WriteNsPerByte: float64(totalWrite.Nanoseconds()) / totalBytes,
		ReadNsPerByte:  float64(totalRead.Nanoseconds()) / totalBytes,
		TotalDuration:  time.Since(start).String(),
	}, nil
}

func writeArchive(ctx context.Context, ec *archive.EngineContext, backend storage.Backend, path string, payload []byte) error {
	wh, err := backend.Create(ctx, path, int64(len(payload)))
	if err != nil {
		return err
	}

	w, err := ec.CreateArchive(ctx, wh, archive.WriterOptions{})
	if err != nil {
		wh.Close()
		return err
	}

	attrs := entry.Attributes{Name: "payload.bin", Size: uint64(len(payload)), ModTime: time.Now(), Permissions: 0o644}
	err = ec.WriteEntry(ctx, w, archive.WriteEntryKind{Kind: entry.KindFile, Attrs: attrs},
		func(ctx context.Context, ew *entry.Writer) error {
			return ew.WriteAll(ctx, bytes.NewReader(payload), nil)
		})
	if err != nil {
		wh.Close()
		return err
	}

	if err := ec.CloseArchive(ctx, w); err != nil {
		wh.Close()
		return err
	}
	return wh.Close()
}

func readArchive(ctx context.Context, ec *archive.EngineContext, backend storage.Backend, path string) ([]byte, error) {
	rh, err := backend.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rh.Close()

	r, err := ec.OpenArchive(ctx, rh)
	if err != nil {
		return nil, err
	}

	er, err := ec.ReadEntry(ctx, r)
	if err != nil {
		return nil, err
	}

	_, whole, err := er.ReadAll(true)
	if err != nil {
		return nil, err
	}

	_, err = ec.ReadEntry(ctx, r)
	if err != nil && err != io.EOF {
		return nil, err
	}

	return whole, nil
}

func printResult(r *Result) {
	fmt.Println("=== barbench results ===")
	fmt.Printf("entry size:   %d bytes\n", r.EntrySize)
	fmt.Printf("iterations:   %d\n", r.Iterations)
	fmt.Printf("write:        %.1f ns/byte\n", r.WriteNsPerByte)
	fmt.Printf("read:         %.1f ns/byte\n", r.ReadNsPerByte)
	fmt.Printf("total time:   %s\n", r.TotalDuration)
}

func saveBaseline(path string, r *Result) error {
	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, body, 0o644)
}

func loadBaseline(path string) (*Result, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Result
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// compareToBaseline reports whether the combined write+read cost grew by
// more than thresholdPct relative to baseline, and by how much.
func compareToBaseline(result, baseline *Result, thresholdPct float64) (regressed bool, pctSlower float64) {
	current := result.WriteNsPerByte + result.ReadNsPerByte
	prior := baseline.WriteNsPerByte + baseline.ReadNsPerByte
	if prior <= 0 {
		return false, 0
	}
	pctSlower = (current - prior) / prior * 100
	return pctSlower > thresholdPct, pctSlower
}
