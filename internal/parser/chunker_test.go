package parser

import (
	"strings"
	"testing"
)

func TestChunkPage_ShortContent(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantZero bool
	}{
		{"completely empty", "", true},
		{"whitespace only", "   \n\n\t  ", true},
		{"short page", "Tender No. 42/2024. Submission by 31 March 2024.", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := ChunkPage(tt.content, "1", DefaultChunkConfig())
			if tt.wantZero {
				if len(chunks) != 0 {
					t.Errorf("ChunkPage() got %d chunks, want 0", len(chunks))
				}
				return
			}
			if len(chunks) != 1 {
				t.Fatalf("ChunkPage() got %d chunks, want 1", len(chunks))
			}
			if chunks[0].PageLabel != "1" {
				t.Errorf("PageLabel = %q, want %q", chunks[0].PageLabel, "1")
			}
		})
	}
}

func TestChunkPage_LongContentSplits(t *testing.T) {
	para := strings.Repeat("The bidder shall furnish an earnest money deposit. ", 20)
	content := para + "\n\n" + para + "\n\n" + para

	chunks := ChunkPage(content, "7", DefaultChunkConfig())
	if len(chunks) < 2 {
		t.Fatalf("ChunkPage() got %d chunks, want >= 2", len(chunks))
	}
	for i, c := range chunks {
		if c.PageLabel != "7" {
			t.Errorf("chunk[%d].PageLabel = %q, want %q", i, c.PageLabel, "7")
		}
		if c.Position != i {
			t.Errorf("chunk[%d].Position = %d, want %d", i, c.Position, i)
		}
		if len(c.Text) == 0 {
			t.Errorf("chunk[%d] is empty", i)
		}
	}
}

func TestChunkPage_OverlapCarriesTail(t *testing.T) {
	cfg := ChunkConfig{Threshold: 100, TargetSize: 120, MinSize: 30, MaxSize: 150, Overlap: 40}
	sentence := "Clause one requires a bank guarantee valid for ninety days. "
	content := strings.Repeat(sentence, 10)

	chunks := ChunkPage(content, "3", cfg)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want >= 2", len(chunks))
	}
	// Each later chunk starts with text from its predecessor's tail.
	for i := 1; i < len(chunks); i++ {
		head := chunks[i].Text[:10]
		if !strings.Contains(chunks[i-1].Text+" "+chunks[i].Text, head) {
			t.Errorf("chunk[%d] does not overlap predecessor", i)
		}
	}
}

func TestConfigForTokens(t *testing.T) {
	cfg := ConfigForTokens(0, 0)
	if cfg != DefaultChunkConfig() {
		t.Errorf("zero token config should equal defaults")
	}

	cfg = ConfigForTokens(200, 25)
	if cfg.TargetSize != 800 {
		t.Errorf("TargetSize = %d, want 800", cfg.TargetSize)
	}
	if cfg.Overlap != 100 {
		t.Errorf("Overlap = %d, want 100", cfg.Overlap)
	}
	if cfg.MaxSize <= cfg.TargetSize {
		t.Errorf("MaxSize %d must exceed TargetSize %d", cfg.MaxSize, cfg.TargetSize)
	}
}
