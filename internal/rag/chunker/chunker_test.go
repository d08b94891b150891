package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// reassemble strips each chunk's overlap prefix and concatenates the rest.
func reassemble(chunks []string, overlap int) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(chunks[0])
	for i := 1; i < len(chunks); i++ {
		skip := OverlapLen(chunks[i-1], overlap)
		runes := []rune(chunks[i])
		b.WriteString(string(runes[skip:]))
	}
	return b.String()
}

func TestSplitEmptyInput(t *testing.T) {
	if got := Split("", DefaultConfig()); got != nil {
		t.Errorf("Split(\"\") = %v; want nil", got)
	}
}

func TestSplitShortDocumentSingleChunk(t *testing.T) {
	text := "黃帝內經是中醫理論的基礎。"
	chunks := Split(text, DefaultConfig())
	if len(chunks) != 1 || chunks[0] != text {
		t.Errorf("short document should yield exactly one unsplit chunk, got %v", chunks)
	}
}

func TestSplitReconstruction(t *testing.T) {
	cfg := Config{MaxSize: 50, Overlap: 10, Separators: DefaultConfig().Separators}

	texts := []string{
		strings.Repeat("春三月，此謂發陳。天地俱生，萬物以榮。", 20),
		"first paragraph about herbs\n\nsecond paragraph about pulse diagnosis\n\n" + strings.Repeat("third paragraph that keeps going and going ", 10),
		strings.Repeat("無分隔符", 40), // forces hard cuts
	}

	for _, text := range texts {
		chunks := Split(text, cfg)
		if got := reassemble(chunks, cfg.Overlap); got != text {
			t.Errorf("reassembled text differs from input\nchunks: %d\ngot len %d want len %d", len(chunks), len(got), len(text))
		}
	}
}

func TestSplitRespectsSize(t *testing.T) {
	cfg := Config{MaxSize: 50, Overlap: 10, Separators: DefaultConfig().Separators}
	text := strings.Repeat("夏三月，此謂蕃秀。", 50)

	for i, c := range Split(text, cfg) {
		if n := utf8.RuneCountInString(c); n > cfg.MaxSize+cfg.Overlap {
			t.Errorf("chunk %d has %d runes, exceeds MaxSize+Overlap", i, n)
		}
	}
}

func TestSplitOverlapShared(t *testing.T) {
	cfg := Config{MaxSize: 40, Overlap: 8, Separators: DefaultConfig().Separators}
	chunks := Split(strings.Repeat("秋三月，此謂容平。", 30), cfg)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		tail := lastRunes(chunks[i-1], cfg.Overlap)
		if !strings.HasPrefix(chunks[i], tail) {
			t.Errorf("chunk %d does not start with the previous chunk's tail", i)
		}
	}
}

func TestSplitDeterministic(t *testing.T) {
	cfg := Config{MaxSize: 60, Overlap: 12, Separators: DefaultConfig().Separators}
	text := strings.Repeat("冬三月，此謂閉藏。水冰地坼，無擾乎陽。", 15)

	first := Split(text, cfg)
	second := Split(text, cfg)
	if len(first) != len(second) {
		t.Fatalf("chunk counts differ between runs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestSplitHardCutRuneSafe(t *testing.T) {
	cfg := Config{MaxSize: 10, Overlap: 0, Separators: []string{""}}
	text := strings.Repeat("藥", 25)

	for i, c := range Split(text, cfg) {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d cut mid-codepoint: %q", i, c)
		}
	}
	if got := reassemble(Split(text, cfg), cfg.Overlap); got != text {
		t.Error("hard-cut chunks do not reassemble to the input")
	}
}
