package index

import "fmt"

// Chunk is a window of text and its rune offset in the source.
type Chunk struct {
	Text   string
	Offset int
}

// Chunker splits text into fixed-size rune windows that overlap by
// Overlap runes. The final window may be shorter.
type Chunker struct {
	Size    int
	Overlap int
}

func NewChunker(size, overlap int) (Chunker, error) {
	if size <= 0 {
		return Chunker{}, fmt.Errorf("chunk size must be positive: %d", size)
	}
	if overlap < 0 || overlap >= size {
		return Chunker{}, fmt.Errorf("chunk overlap must be in [0, %d): %d", size, overlap)
	}
	return Chunker{Size: size, Overlap: overlap}, nil
}

func (c Chunker) Split(text string) []Chunk {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= c.Size {
		return []Chunk{{Text: string(runes), Offset: 0}}
	}

	step := c.Size - c.Overlap
	var chunks []Chunk
	for start := 0; start < len(runes); start += step {
		end := min(start+c.Size, len(runes))
		chunks = append(chunks, Chunk{Text: string(runes[start:end]), Offset: start})
		if end == len(runes) {
			break
		}
	}
	return chunks
}
