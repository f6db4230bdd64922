package sink

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"firestige.xyz/netcarve/internal/config"
	"firestige.xyz/netcarve/internal/core"
)

func testFiles() []core.ExtractedFile {
	return []core.ExtractedFile{
		{
			ID: "file_1", Filename: "report.pdf", ContentType: "application/pdf",
			Size: 9, Data: []byte("%PDF-body"), PacketIDs: []uint64{2, 4},
			Src: "10.0.0.2:80", Dst: "10.0.0.1:40000", StreamKey: "10.0.0.1:40000-10.0.0.2:80", SourceType: "HTTP",
		},
		{
			ID: "file_2", Filename: "report.pdf", ContentType: "application/pdf",
			Size: 10, Data: []byte("%PDF-other"), PacketIDs: []uint64{7},
			SourceType: "HTTP",
		},
		{
			ID: "file_3", Filename: "../../etc/passwd", ContentType: "text/plain",
			Size: 4, Data: []byte("root"), SourceType: "FTP",
		},
	}
}

func TestDirectorySaveAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	d := NewDirectory(config.ExtractConfig{OutputDir: dir, Manifest: "manifest.yaml"}, "capture.pcap")

	m, err := d.SaveAll(testFiles())
	require.NoError(t, err)
	require.Len(t, m.Files, 3)
	assert.NotEmpty(t, m.Session)
	assert.Equal(t, dir, d.Dir())

	assert.Equal(t, "report.pdf", m.Files[0].Path)
	assert.Equal(t, "file_2_report.pdf", m.Files[1].Path)
	assert.Equal(t, "passwd", m.Files[2].Path)

	got, err := os.ReadFile(filepath.Join(dir, "report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-body"), got)

	got, err = os.ReadFile(filepath.Join(dir, "file_2_report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-other"), got)

	_, err = os.Stat(filepath.Join(dir, "passwd"))
	assert.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "manifest.yaml"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "data:")

	var decoded Manifest
	require.NoError(t, yaml.Unmarshal(raw, &decoded))
	assert.Equal(t, m.Session, decoded.Session)
	assert.Equal(t, "capture.pcap", decoded.Source)
	require.Len(t, decoded.Files, 3)
	assert.Equal(t, "file_1", decoded.Files[0].ID)
	assert.Equal(t, []uint64{2, 4}, decoded.Files[0].PacketIDs)
	assert.Equal(t, "HTTP", decoded.Files[0].SourceType)
	assert.Equal(t, "file_2_report.pdf", decoded.Files[1].Path)
}

func TestDirectorySaveAllEmpty(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "empty")
	d := NewDirectory(config.ExtractConfig{OutputDir: dir, Manifest: "m.yaml"}, "")

	m, err := d.SaveAll(nil)
	require.NoError(t, err)
	assert.Empty(t, m.Files)

	_, err = os.Stat(filepath.Join(dir, "m.yaml"))
	assert.NoError(t, err)
}

func TestDirectorySaveAllUnwritable(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	d := NewDirectory(config.ExtractConfig{OutputDir: filepath.Join(blocker, "out"), Manifest: "m.yaml"}, "")
	_, err := d.SaveAll(testFiles())
	assert.Error(t, err)
}

func TestSaveFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "blob.bin")
	require.NoError(t, SaveFile(core.ExtractedFile{Filename: "blob.bin", Data: []byte{1, 2, 3}}, path))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{"plain", "photo.jpg", "photo.jpg"},
		{"unix traversal", "../../x.sh", "x.sh"},
		{"windows path", `C:\Users\a\doc.docx`, "doc.docx"},
		{"empty", "", "unnamed.bin"},
		{"dots", "..", "unnamed.bin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := outputName(core.ExtractedFile{ID: "file_9", Filename: tt.filename}, map[string]struct{}{})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPacketWriter(t *testing.T) {
	var out bytes.Buffer
	w := NewPacketWriter(&out)

	pkts := []core.CapturedPacket{
		{ID: 1, Src: "10.0.0.1:1234", Dst: "10.0.0.2:80", Protocol: "HTTP", Length: 60, Raw: []byte{0xde, 0xad}},
		{ID: 2, Src: "10.0.0.2:80", Dst: "10.0.0.1:1234", Protocol: "TCP", Length: 54},
	}
	for i := range pkts {
		require.NoError(t, w.Write(&pkts[i]))
	}
	assert.Error(t, w.Write(nil))
	require.NoError(t, w.Close())
	assert.Equal(t, uint64(2), w.Count())

	sc := bufio.NewScanner(&out)
	var got []core.CapturedPacket
	for sc.Scan() {
		var p core.CapturedPacket
		require.NoError(t, json.Unmarshal(sc.Bytes(), &p))
		got = append(got, p)
	}
	require.Len(t, got, 2)
	assert.Equal(t, pkts[0].Raw, got[0].Raw)
	assert.Equal(t, "TCP", got[1].Protocol)
}

func TestPacketWriterConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packets.jsonl")
	w, err := CreatePacketFile(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				pkt := core.CapturedPacket{ID: uint64(g*50 + i + 1), Protocol: "UDP"}
				assert.NoError(t, w.Write(&pkt))
			}
		}(g)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 200, bytes.Count(raw, []byte("\n")))
	assert.Equal(t, uint64(200), w.Count())
}

func TestPacketFileCloseTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	w, err := CreatePacketFile(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(&core.CapturedPacket{ID: 1, Protocol: "UDP"}))

	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
	assert.ErrorIs(t, w.Write(&core.CapturedPacket{ID: 2}), ErrWriterClosed)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(raw, []byte("\n")))
}

func TestCreatePacketFileBadPath(t *testing.T) {
	_, err := CreatePacketFile(filepath.Join(t.TempDir(), "missing", "x.jsonl"))
	assert.Error(t, err)
}
