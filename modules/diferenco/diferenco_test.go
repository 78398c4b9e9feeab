package diferenco

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHistogramDiffIdentical(t *testing.T) {
	lines := []string{"a", "b", "c"}
	changes := HistogramDiff(lines, lines)
	require.Empty(t, changes)
}

func TestHistogramDiffInsertAndDelete(t *testing.T) {
	before := []string{"a", "b", "c"}
	after := []string{"a", "x", "c"}
	changes := HistogramDiff(before, after)
	require.Len(t, changes, 1)
	require.Equal(t, Change{P1: 1, P2: 1, Del: 1, Ins: 1}, changes[0])
}

func TestHistogramDiffEmptySides(t *testing.T) {
	require.Equal(t, []Change{{Ins: 2}}, HistogramDiff(nil, []string{"a", "b"}))
	require.Equal(t, []Change{{Del: 2}}, HistogramDiff([]string{"a", "b"}, nil))
}

func TestDoUnifiedAppendedLine(t *testing.T) {
	before := "one\ntwo\nthree\n"
	after := "one\ntwo\nthree\nfour\n"
	u, err := DoUnified(context.Background(), &Options{
		From: &File{Path: "a.txt"},
		To:   &File{Path: "a.txt"},
		A:    before,
		B:    after,
	})
	require.NoError(t, err)
	require.Len(t, u.Hunks, 1)
	out := u.String()
	require.True(t, strings.Contains(out, "+four"))
	require.True(t, strings.HasPrefix(out, "--- a.txt\n+++ a.txt\n"))
}

func TestDoUnifiedNoChanges(t *testing.T) {
	text := "same\ncontent\n"
	u, err := DoUnified(context.Background(), &Options{
		From: &File{Path: "a.txt"},
		To:   &File{Path: "a.txt"},
		A:    text,
		B:    text,
	})
	require.NoError(t, err)
	require.Empty(t, u.Hunks)
	require.Equal(t, "", u.String())
}

func TestDoUnifiedNewFile(t *testing.T) {
	u, err := DoUnified(context.Background(), &Options{
		To: &File{Path: "new.txt"},
		A:  "",
		B:  "hello\n",
	})
	require.NoError(t, err)
	out := u.String()
	require.True(t, strings.Contains(out, "--- /dev/null"))
	require.True(t, strings.Contains(out, "+hello"))
}

func TestDoUnifiedCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := DoUnified(ctx, &Options{A: "a\n", B: "b\n"})
	require.Error(t, err)
}

func TestSplitWords(t *testing.T) {
	require.Equal(t, []string{"hello", ", ", "world", "!"}, SplitWords("hello, world!"))
}
