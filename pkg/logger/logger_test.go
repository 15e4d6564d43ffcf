package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestCustomHandler(t *testing.T) {
	color.NoColor = true

	tests := []struct {
		name  string
		log   func(l *slog.Logger)
		want  []string
		empty bool
	}{
		{
			name: "plain",
			log:  func(l *slog.Logger) { l.Info("signed", "keys", 3) },
			want: []string{"INFO  > signed", " keys=3"},
		},
		{
			name: "with attrs",
			log:  func(l *slog.Logger) { l.With("bvid", "BV1xx411c7mD").Warn("coin failed") },
			want: []string{"WARN  > coin failed", " bvid=BV1xx411c7mD"},
		},
		{
			name: "with group",
			log:  func(l *slog.Logger) { l.WithGroup("wbi").Info("cache", "hit", true) },
			want: []string{" wbi.hit=true"},
		},
		{
			name:  "below level",
			log:   func(l *slog.Logger) { l.Debug("hidden") },
			empty: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := slog.New(NewCustomHandler(&buf, slog.HandlerOptions{Level: slog.LevelInfo}))
			tt.log(l)
			got := buf.String()
			if tt.empty {
				if got != "" {
					t.Errorf("expected no output, got %q", got)
				}
				return
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("output %q does not contain %q", got, w)
				}
			}
		})
	}
}
