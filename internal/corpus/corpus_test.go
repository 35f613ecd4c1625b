package corpus

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spacebio/engine/internal/publication"
	"github.com/spacebio/engine/internal/semantic"
)

const sampleCSV = `title,authors,year,abstract_text,source_url
Mice in space,"Smith J, Lee K",2021,Bone density decreased.,https://example.org/1
Plant roots,N/A,2019.0,,https://example.org/2
Cardiac cells,Chen L,N/A,Beating rate changed.,
`

// npyBytes builds a version 1.0 .npy stream.
func npyBytes(t *testing.T, descr, shape string, data any) []byte {
	t.Helper()

	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }", descr, shape)
	total := 10 + len(header) + 1
	header += strings.Repeat(" ", (64-total%64)%64) + "\n"

	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY")
	buf.Write([]byte{1, 0})
	if err := binary.Write(&buf, binary.LittleEndian, uint16(len(header))); err != nil {
		t.Fatal(err)
	}
	buf.WriteString(header)
	if err := binary.Write(&buf, binary.LittleEndian, data); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestParseRecords(t *testing.T) {
	records, err := ParseRecords(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ParseRecords failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	want := []publication.Record{
		{ID: 0, Title: "Mice in space", Authors: "Smith J, Lee K", Year: 2021, Abstract: "Bone density decreased.", SourceURL: "https://example.org/1"},
		{ID: 1, Title: "Plant roots", Authors: publication.NotSpecified, Year: 2019, SourceURL: "https://example.org/2"},
		{ID: 2, Title: "Cardiac cells", Authors: "Chen L", Year: publication.Unknown, Abstract: "Beating rate changed."},
	}
	for i := range want {
		if records[i] != want[i] {
			t.Errorf("record %d = %+v, want %+v", i, records[i], want[i])
		}
	}
}

func TestParseRecords_OptionalColumns(t *testing.T) {
	records, err := ParseRecords(strings.NewReader("\ufeffTitle,Abstract\nOnly a title,Some text\n"))
	if err != nil {
		t.Fatalf("ParseRecords failed: %v", err)
	}
	rec := records[0]
	if rec.Title != "Only a title" || rec.Abstract != "Some text" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.Authors != publication.NotSpecified {
		t.Errorf("Authors = %q, want %q", rec.Authors, publication.NotSpecified)
	}
	if rec.Year.Known() {
		t.Errorf("Year should be unknown, got %v", rec.Year)
	}
}

func TestParseRecords_IntegrityErrors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{"empty file", ""},
		{"missing title column", "name,year\nx,2020\n"},
		{"empty title cell", "title,year\n  ,2020\n"},
		{"short row", "title,year\nx\n"},
		{"bad quoting", "title,year\n\"unterminated,2020\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecords(strings.NewReader(tt.csv))
			if !errors.Is(err, ErrDataIntegrity) {
				t.Errorf("expected ErrDataIntegrity, got %v", err)
			}
		})
	}
}

func TestDecodeVectors(t *testing.T) {
	t.Run("float32", func(t *testing.T) {
		data := npyBytes(t, "<f4", "(2, 3)", []float32{1, 2, 3, 4, 5, 6})
		vecs, err := DecodeVectors(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("DecodeVectors failed: %v", err)
		}
		if len(vecs) != 2 || len(vecs[0]) != 3 {
			t.Fatalf("unexpected shape: %d x %d", len(vecs), len(vecs[0]))
		}
		if vecs[1][0] != 4 || vecs[1][2] != 6 {
			t.Errorf("row 1 = %v, want [4 5 6]", vecs[1])
		}
	})

	t.Run("float64", func(t *testing.T) {
		data := npyBytes(t, "<f8", "(2, 2)", []float64{0.5, -0.5, 1, 0})
		vecs, err := DecodeVectors(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("DecodeVectors failed: %v", err)
		}
		if vecs[0][1] != -0.5 || vecs[1][0] != 1 {
			t.Errorf("unexpected vectors: %v", vecs)
		}
	})

	t.Run("one dimensional", func(t *testing.T) {
		data := npyBytes(t, "<f4", "(3,)", []float32{1, 2, 3})
		_, err := DecodeVectors(bytes.NewReader(data))
		if !errors.Is(err, ErrDataIntegrity) {
			t.Errorf("expected ErrDataIntegrity, got %v", err)
		}
	})

	t.Run("integer dtype", func(t *testing.T) {
		data := npyBytes(t, "<i4", "(1, 2)", []int32{1, 2})
		_, err := DecodeVectors(bytes.NewReader(data))
		if !errors.Is(err, ErrDataIntegrity) {
			t.Errorf("expected ErrDataIntegrity, got %v", err)
		}
	})

	t.Run("not npy", func(t *testing.T) {
		_, err := DecodeVectors(strings.NewReader("title,year\n"))
		if !errors.Is(err, ErrDataIntegrity) {
			t.Errorf("expected ErrDataIntegrity, got %v", err)
		}
	})
}

func TestWriteVectors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "vectors.npy")
	in := [][]float32{{0.6, 0.8}, {1, 0}, {0, -1}}

	n, err := WriteVectors(path, in)
	if err != nil {
		t.Fatalf("WriteVectors failed: %v", err)
	}
	if n <= 0 {
		t.Errorf("bytes written = %d", n)
	}

	out, err := ReadVectors(path)
	if err != nil {
		t.Fatalf("ReadVectors failed: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("read %d vectors, want %d", len(out), len(in))
	}
	for i := range in {
		for j := range in[i] {
			if math.Abs(float64(out[i][j]-in[i][j])) > 1e-7 {
				t.Errorf("vector[%d][%d] = %v, want %v", i, j, out[i][j], in[i][j])
			}
		}
	}

	if _, err := WriteVectors(path, [][]float32{{1, 2}, {1}}); err == nil {
		t.Error("expected error for ragged vectors")
	}
	if _, err := WriteVectors(path, nil); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	recordsPath := writeFile(t, dir, "papers.csv", []byte(sampleCSV))
	vectorsPath := writeFile(t, dir, "vectors.npy",
		npyBytes(t, "<f4", "(3, 2)", []float32{1, 0, 0, 1, 0.9, 0.1}))

	c, err := Load(Paths{Records: recordsPath, Vectors: vectorsPath})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Len() != 3 || c.Dimensions() != 2 {
		t.Errorf("Len=%d Dimensions=%d, want 3 and 2", c.Len(), c.Dimensions())
	}

	rec, ok := c.Record(2)
	if !ok || rec.Title != "Cardiac cells" {
		t.Errorf("Record(2) = %+v, %v", rec, ok)
	}
	if _, ok := c.Record(3); ok {
		t.Error("Record(3) should be out of range")
	}
	if v, ok := c.Vector(2); !ok || v[0] != 0.9 {
		t.Errorf("Vector(2) = %v, %v", v, ok)
	}

	hits, err := c.Ranker().Rank([]float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if hits[0].Index != 0 || hits[1].Index != 2 {
		t.Errorf("unexpected ranking: %+v", hits)
	}
}

func TestNewWithRanker(t *testing.T) {
	records := []publication.Record{{ID: 0, Title: "Bone"}, {ID: 1, Title: "Roots"}}
	ranker, err := semantic.NewBruteForce([][]float32{{1, 0, 0}, {0, 1, 0}})
	if err != nil {
		t.Fatalf("NewBruteForce failed: %v", err)
	}

	c, err := NewWithRanker(records, ranker)
	if err != nil {
		t.Fatalf("NewWithRanker failed: %v", err)
	}
	if c.Len() != 2 || c.Dimensions() != 3 {
		t.Errorf("Len=%d Dimensions=%d, want 2 and 3", c.Len(), c.Dimensions())
	}
	if c.Ranker() != semantic.Ranker(ranker) {
		t.Error("Ranker() should return the given index")
	}
	if _, ok := c.Vector(0); ok {
		t.Error("Vector(0) should be unavailable without a matrix")
	}

	if _, err := NewWithRanker(records[:1], ranker); !errors.Is(err, ErrDataIntegrity) {
		t.Errorf("count mismatch: error = %v, want ErrDataIntegrity", err)
	}
	if _, err := NewWithRanker(records, nil); !errors.Is(err, ErrDataIntegrity) {
		t.Errorf("nil ranker: error = %v, want ErrDataIntegrity", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	recordsPath := writeFile(t, dir, "papers.csv", []byte(sampleCSV))
	twoVectors := writeFile(t, dir, "two.npy", npyBytes(t, "<f4", "(2, 2)", []float32{1, 0, 0, 1}))

	tests := []struct {
		name  string
		paths Paths
		want  error
	}{
		{"missing records", Paths{Records: filepath.Join(dir, "nope.csv"), Vectors: twoVectors}, ErrDataUnavailable},
		{"missing vectors", Paths{Records: recordsPath, Vectors: filepath.Join(dir, "nope.npy")}, ErrDataUnavailable},
		{"count mismatch", Paths{Records: recordsPath, Vectors: twoVectors}, ErrDataIntegrity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Load(tt.paths)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if c != nil {
				t.Error("no corpus should be returned on error")
			}
		})
	}
}

func TestStore_LoadsOnce(t *testing.T) {
	var calls atomic.Int32
	store := NewStore(func() (*Corpus, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return New([]publication.Record{{Title: "a"}}, [][]float32{{1}})
	})

	if store.Loaded() {
		t.Fatal("store should start unloaded")
	}

	var wg sync.WaitGroup
	results := make([]*Corpus, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := store.Get(context.Background())
			if err != nil {
				t.Errorf("Get failed: %v", err)
			}
			results[i] = c
		}(i)
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("loader called %d times, want 1", got)
	}
	for i, c := range results {
		if c != results[0] {
			t.Errorf("caller %d got a different corpus", i)
		}
	}
	if !store.Loaded() {
		t.Error("store should be loaded")
	}
}

func TestStore_RetriesAfterFailure(t *testing.T) {
	var calls int
	store := NewStore(func() (*Corpus, error) {
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("%w: disk not mounted", ErrDataUnavailable)
		}
		return New(nil, nil)
	})

	if _, err := store.Get(context.Background()); !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
	if store.Loaded() {
		t.Error("failed load should leave the store unloaded")
	}

	c, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
	if calls != 2 {
		t.Errorf("loader called %d times, want 2", calls)
	}
}

func TestStore_CancelledContext(t *testing.T) {
	store := NewStore(func() (*Corpus, error) {
		t.Error("loader should not run with a cancelled context")
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Get(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
