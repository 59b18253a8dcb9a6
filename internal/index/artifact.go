// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// This file persists and loads the index artifact: a clips.json holding
// the clip table and embedding metadata, with the vector table in a
// sibling binary file. Both are written atomically (temp file + rename)
// so a crashed or canceled index job can never leave a half-written
// artifact that a later render job would load.
package index

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/muziris/go-gist-video/internal/core/model"
)

const (
	// ClipsFileName is the artifact's metadata file inside the index dir.
	ClipsFileName = "clips.json"
	// VectorsFileName is the sibling vector table, row order matching the
	// clip table.
	VectorsFileName = "clip_vectors.bin"

	vecMagic = "CVF1" // clip-vector file, format version 1
)

// SaveArtifact writes the artifact and its vector table under dir,
// creating the directory if needed. len(vecs) must equal
// len(artifact.Clips).
func SaveArtifact(dir string, artifact *model.IndexArtifact, vecs [][]float32) error {
	if len(vecs) != len(artifact.Clips) {
		return fmt.Errorf("vector rows (%d) do not match clip count (%d)", len(vecs), len(artifact.Clips))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	meta, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("encode clip table: %w", err)
	}
	if err := atomicWrite(filepath.Join(dir, ClipsFileName), func(w io.Writer) error {
		_, werr := w.Write(meta)
		return werr
	}); err != nil {
		return err
	}

	return atomicWrite(filepath.Join(dir, VectorsFileName), func(w io.Writer) error {
		return writeVectors(w, vecs)
	})
}

// LoadArtifact reads the artifact and its vector table back from dir.
// A missing artifact is reported as os.ErrNotExist via the underlying
// open error, so callers can tell "never indexed" from corruption.
func LoadArtifact(dir string) (*model.IndexArtifact, [][]float32, error) {
	meta, err := os.ReadFile(filepath.Join(dir, ClipsFileName))
	if err != nil {
		return nil, nil, fmt.Errorf("read clip table: %w", err)
	}
	var artifact model.IndexArtifact
	if err := json.Unmarshal(meta, &artifact); err != nil {
		return nil, nil, fmt.Errorf("decode clip table: %w", err)
	}

	f, err := os.Open(filepath.Join(dir, VectorsFileName))
	if err != nil {
		return nil, nil, fmt.Errorf("open vector table: %w", err)
	}
	defer func() { _ = f.Close() }()
	vecs, err := readVectors(bufio.NewReader(f))
	if err != nil {
		return nil, nil, fmt.Errorf("read vector table: %w", err)
	}

	if len(vecs) != len(artifact.Clips) {
		return nil, nil, fmt.Errorf("vector rows (%d) do not match clip count (%d); rebuild the index", len(vecs), len(artifact.Clips))
	}
	return &artifact, vecs, nil
}

// atomicWrite writes through a temp file in the target directory and
// renames it into place after a successful sync.
func atomicWrite(path string, fill func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	bw := bufio.NewWriter(tmp)
	if err := fill(bw); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// writeVectors encodes the vector table: a 4-byte magic, row and
// column counts as little-endian uint32, then row-major float32 data.
// Every row must share the first row's length.
func writeVectors(w io.Writer, vecs [][]float32) error {
	if _, err := io.WriteString(w, vecMagic); err != nil {
		return err
	}
	rows := uint32(len(vecs))
	var cols uint32
	if rows > 0 {
		cols = uint32(len(vecs[0]))
	}
	if err := binary.Write(w, binary.LittleEndian, rows); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, cols); err != nil {
		return err
	}
	for i, row := range vecs {
		if uint32(len(row)) != cols {
			return fmt.Errorf("row %d has %d values, expected %d", i, len(row), cols)
		}
		if err := binary.Write(w, binary.LittleEndian, row); err != nil {
			return err
		}
	}
	return nil
}

// readVectors decodes what writeVectors produced.
func readVectors(r io.Reader) ([][]float32, error) {
	magic := make([]byte, len(vecMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, err
	}
	if string(magic) != vecMagic {
		return nil, fmt.Errorf("unrecognized vector file magic %q", magic)
	}
	var rows, cols uint32
	if err := binary.Read(r, binary.LittleEndian, &rows); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &cols); err != nil {
		return nil, err
	}
	const maxDim = 1 << 16
	if cols > maxDim {
		return nil, fmt.Errorf("implausible vector dim %d", cols)
	}
	const maxRows = 1 << 24
	if rows > maxRows {
		return nil, fmt.Errorf("implausible vector row count %d", rows)
	}
	out := make([][]float32, rows)
	for i := range out {
		row := make([]float32, cols)
		if err := binary.Read(r, binary.LittleEndian, row); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = row
	}
	return out, nil
}
