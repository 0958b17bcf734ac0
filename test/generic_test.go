package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/rtanaka/barchive/internal/archive"
	"github.com/rtanaka/barchive/internal/entry"
	"github.com/rtanaka/barchive/internal/storage/localfs"
)

// buildTestArchive writes a minimal unencrypted, uncompressed archive
// containing one file entry and returns its encoded bytes, for tests
// that need real archive content rather than opaque bytes (the ingest
// endpoint only stores bytes; the listing endpoint must decode them).
func buildTestArchive(t *testing.T, name string, data []byte) []byte {
	t.Helper()
	ctx := context.Background()
	ec := &archive.EngineContext{}

	var buf bytes.Buffer
	w, err := ec.CreateArchive(ctx, &buf, archive.WriterOptions{})
	if err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}

	attrs := entry.Attributes{
		Name:        name,
		Size:        uint64(len(data)),
		ModTime:     time.Now(),
		Permissions: 0o644,
	}
	err = ec.WriteEntry(ctx, w, archive.WriteEntryKind{Kind: entry.KindFile, Attrs: attrs},
		func(ctx context.Context, ew *entry.Writer) error {
			return ew.WriteAll(ctx, bytes.NewReader(data), nil)
		})
	if err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}

	if err := ec.CloseArchive(ctx, w); err != nil {
		t.Fatalf("CloseArchive: %v", err)
	}
	return buf.Bytes()
}

// runEndToEndTest ingests a real archive through the gateway and confirms
// it can be HEAD'd, listed, and deleted, the archive-domain replacement
// for the teacher's PUT/GET object round-trip test.
func runEndToEndTest(t *testing.T, backend *localfs.Backend, jobName string) {
	gateway := StartGateway(t, backend, "")
	client := gateway.GetHTTPClient()

	entryName := "etc/hosts"
	payload := []byte("127.0.0.1 localhost\n")
	archiveBytes := buildTestArchive(t, entryName, payload)
	archivePath := fmt.Sprintf("%s/daily.bar", jobName)

	t.Run("ingest", func(t *testing.T) {
		putURL := fmt.Sprintf("http://%s/archives/%s", gateway.Addr, archivePath)
		req, err := http.NewRequest("PUT", putURL, bytes.NewReader(archiveBytes))
		if err != nil {
			t.Fatalf("failed to build PUT request: %v", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("PUT request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusCreated {
			body, _ := io.ReadAll(resp.Body)
			t.Fatalf("PUT failed with status %d: %s", resp.StatusCode, string(body))
		}
	})

	t.Run("head", func(t *testing.T) {
		headURL := fmt.Sprintf("http://%s/archives/%s", gateway.Addr, archivePath)
		resp, err := client.Head(headURL)
		if err != nil {
			t.Fatalf("HEAD request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("HEAD failed with status %d", resp.StatusCode)
		}
		if resp.ContentLength != int64(len(archiveBytes)) {
			t.Errorf("Content-Length = %d, want %d", resp.ContentLength, len(archiveBytes))
		}
	})

	t.Run("list entries", func(t *testing.T) {
		listURL := fmt.Sprintf("http://%s/archives/%s/entries", gateway.Addr, archivePath)
		resp, err := client.Get(listURL)
		if err != nil {
			t.Fatalf("list request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			t.Fatalf("list failed with status %d: %s", resp.StatusCode, string(body))
		}

		var rows []struct {
			Name string `json:"name"`
			Size uint64 `json:"size"`
			Kind string `json:"kind"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
			t.Fatalf("failed to decode listing JSON: %v", err)
		}
		if len(rows) != 1 {
			t.Fatalf("got %d rows, want 1", len(rows))
		}
		if rows[0].Name != entryName {
			t.Errorf("row name = %q, want %q", rows[0].Name, entryName)
		}
		if rows[0].Size != uint64(len(payload)) {
			t.Errorf("row size = %d, want %d", rows[0].Size, len(payload))
		}
		if rows[0].Kind != "FILE" {
			t.Errorf("row kind = %q, want FILE", rows[0].Kind)
		}
	})

	t.Run("delete", func(t *testing.T) {
		delURL := fmt.Sprintf("http://%s/archives/%s", gateway.Addr, archivePath)
		req, err := http.NewRequest("DELETE", delURL, nil)
		if err != nil {
			t.Fatalf("failed to build DELETE request: %v", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("DELETE request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("DELETE failed with status %d", resp.StatusCode)
		}
	})
}

// runChunkedUploadTest verifies that the gateway correctly decodes the
// chunked archive-ingestion framing (spec §9's generalization of the
// teacher's AWS chunked-upload handling) rather than storing the raw
// chunk-framed bytes.
func runChunkedUploadTest(t *testing.T, backend *localfs.Backend, jobName string) {
	gateway := StartGateway(t, backend, "")
	client := gateway.GetHTTPClient()

	entryName := "var/log/app.log"
	payload := []byte("line one\nline two\n")
	archiveBytes := buildTestArchive(t, entryName, payload)
	archivePath := fmt.Sprintf("%s/chunked.bar", jobName)

	// Split the archive into two chunks using the same chunk-size;chunk-
	// signature=...\r\ndata\r\n framing ChunkedTransferReader decodes.
	mid := len(archiveBytes) / 2
	chunk1 := archiveBytes[:mid]
	chunk2 := archiveBytes[mid:]

	var body bytes.Buffer
	fmt.Fprintf(&body, "%x;chunk-signature=sig1\r\n", len(chunk1))
	body.Write(chunk1)
	body.WriteString("\r\n")
	fmt.Fprintf(&body, "%x;chunk-signature=sig2\r\n", len(chunk2))
	body.Write(chunk2)
	body.WriteString("\r\n")
	body.WriteString("0;chunk-signature=final\r\n")

	putURL := fmt.Sprintf("http://%s/archives/%s", gateway.Addr, archivePath)
	req, err := http.NewRequest("PUT", putURL, bytes.NewReader(body.Bytes()))
	if err != nil {
		t.Fatalf("failed to build PUT request: %v", err)
	}
	req.Header.Set("x-archive-content-encoding", "chunked")
	req.Header.Set("x-archive-decoded-content-length", fmt.Sprintf("%d", len(archiveBytes)))

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("PUT request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		t.Fatalf("PUT failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	stored, err := backend.Open(context.Background(), archivePath)
	if err != nil {
		t.Fatalf("failed to open stored archive: %v", err)
	}
	defer stored.Close()

	got, err := io.ReadAll(stored)
	if err != nil {
		t.Fatalf("failed to read stored archive: %v", err)
	}
	if !bytes.Equal(got, archiveBytes) {
		t.Errorf("stored archive does not match the unchunked original (%d bytes vs %d)", len(got), len(archiveBytes))
	}
}

func TestGenericEndToEnd(t *testing.T) {
	backend := localfs.New(t.TempDir())
	runEndToEndTest(t, backend, "job-one")
}

func TestGenericChunkedUpload(t *testing.T) {
	backend := localfs.New(t.TempDir())
	runChunkedUploadTest(t, backend, "job-two")
}
