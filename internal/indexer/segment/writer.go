package segment

import (
	"bufio"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/postings"
)

// FileName returns the name of the file holding generation gen.
func FileName(gen uint64) string {
	return fmt.Sprintf("gen_%020d.spdx", gen)
}

// Writer serialises generations into .spdx files.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes generation files into dataDir.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

type countingWriter struct {
	w io.Writer
	n uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += uint64(n)
	return n, err
}

// Write atomically creates the file of generation gen. It writes to a .tmp
// file first and renames on success. The postings section is streamed
// straight from a postings.Builder.
func (w *Writer) Write(gen uint64, c Contents) (string, error) {
	if len(c.Dictionary) != len(c.Lists) {
		return "", fmt.Errorf("dictionary has %d terms for %d posting lists", len(c.Dictionary), len(c.Lists))
	}
	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating generation directory: %w", err)
	}
	finalPath := filepath.Join(w.dataDir, FileName(gen))
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp generation file: %w", err)
	}
	if err := w.writeTo(f, gen, c); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("syncing generation file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing generation file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("renaming generation file: %w", err)
	}
	return finalPath, nil
}

func (w *Writer) writeTo(f io.Writer, gen uint64, c Contents) error {
	bw := bufio.NewWriterSize(f, 256*1024)
	cw := &countingWriter{w: bw}

	header := Header{Magic: MagicBytes, Version: FormatVersion, Generation: gen}
	if _, err := cw.Write(header.encode()); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	var footer Footer
	section := func(i int, write func() error) error {
		start := cw.n
		if err := write(); err != nil {
			return fmt.Errorf("writing %s section: %w", sectionNames[i], err)
		}
		footer.Sections[i] = Section{Offset: start, Length: cw.n - start}
		return nil
	}
	writeJSON := func(v any) func() error {
		return func() error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			_, err = cw.Write(data)
			return err
		}
	}

	schemaData, err := json.Marshal(c.Schema)
	if err != nil {
		return fmt.Errorf("marshaling schema: %w", err)
	}
	footer.SchemaChecksum = crc32.ChecksumIEEE(schemaData)

	steps := []func() error{
		writeJSON(c.Documents),
		func() error { _, err := cw.Write(schemaData); return err },
		writeJSON(c.Dictionary),
		func() error {
			if c.Live == nil {
				return nil
			}
			_, err := c.Live.WriteTo(cw)
			return err
		},
		func() error {
			b := postings.NewBuilder(cw)
			for id, list := range c.Lists {
				if err := b.InsertID(uint64(id), list); err != nil {
					return err
				}
			}
			return b.Finish()
		},
	}
	for i, step := range steps {
		if err := section(i, step); err != nil {
			return err
		}
	}

	if _, err := cw.Write(footer.encode()); err != nil {
		return fmt.Errorf("writing footer: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing generation file: %w", err)
	}
	return nil
}
