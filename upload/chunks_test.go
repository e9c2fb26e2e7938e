package upload

import (
	"bytes"
	"testing"
)

func TestFileChunkSource_RoundTrip(t *testing.T) {
	cfg := testConfig()
	path, data := writeTestFile(t, 3*1024+300) // 4 parts, short last part

	plan, err := SelectPlan(int64(len(data)), TierRegular, cfg)
	if err != nil {
		t.Fatalf("SelectPlan failed: %v", err)
	}

	source, err := OpenFileChunkSource(path, plan)
	if err != nil {
		t.Fatalf("OpenFileChunkSource failed: %v", err)
	}
	defer source.Close()

	var joined []byte
	for i := 0; i < plan.TotalParts; i++ {
		chunk, err := source.ReadChunk(i)
		if err != nil {
			t.Fatalf("ReadChunk(%d) failed: %v", i, err)
		}
		if len(chunk.Data) == 0 {
			t.Fatalf("chunk %d is empty", i)
		}
		if chunk.Index != i {
			t.Errorf("chunk index mismatch: got %d, want %d", chunk.Index, i)
		}

		last := i == plan.TotalParts-1
		if chunk.Last != last {
			t.Errorf("chunk %d: Last = %v, want %v", i, chunk.Last, last)
		}
		if !last && int64(len(chunk.Data)) != plan.PartSize {
			t.Errorf("chunk %d: %d bytes, want full part size %d", i, len(chunk.Data), plan.PartSize)
		}
		if last && int64(len(chunk.Data)) != 300 {
			t.Errorf("last chunk: %d bytes, want 300", len(chunk.Data))
		}
		joined = append(joined, chunk.Data...)
	}

	if !bytes.Equal(joined, data) {
		t.Error("chunks joined in index order do not reproduce the file")
	}
}

func TestFileChunkSource_DeterministicReads(t *testing.T) {
	cfg := testConfig()
	path, data := writeTestFile(t, 2*1024+17)

	plan, err := SelectPlan(int64(len(data)), TierRegular, cfg)
	if err != nil {
		t.Fatalf("SelectPlan failed: %v", err)
	}

	source, err := OpenFileChunkSource(path, plan)
	if err != nil {
		t.Fatalf("OpenFileChunkSource failed: %v", err)
	}
	defer source.Close()

	first, err := source.ReadChunk(1)
	if err != nil {
		t.Fatalf("ReadChunk failed: %v", err)
	}
	second, err := source.ReadChunk(1)
	if err != nil {
		t.Fatalf("repeated ReadChunk failed: %v", err)
	}
	if !bytes.Equal(first.Data, second.Data) {
		t.Error("the same index must always yield the same bytes")
	}
}

func TestFileChunkSource_IndexOutOfRange(t *testing.T) {
	cfg := testConfig()
	path, data := writeTestFile(t, 1024)

	plan, err := SelectPlan(int64(len(data)), TierRegular, cfg)
	if err != nil {
		t.Fatalf("SelectPlan failed: %v", err)
	}

	source, err := OpenFileChunkSource(path, plan)
	if err != nil {
		t.Fatalf("OpenFileChunkSource failed: %v", err)
	}
	defer source.Close()

	if _, err := source.ReadChunk(-1); err == nil {
		t.Error("expected error for negative index")
	}
	if _, err := source.ReadChunk(plan.TotalParts); err == nil {
		t.Error("expected error for index past the plan")
	}
}
