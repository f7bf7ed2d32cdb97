package components

import (
	"strings"
	"testing"
)

func TestLayoutRow(t *testing.T) {
	cases := []struct {
		total, n int
		want     []int
	}{
		{100, 4, []int{25, 25, 25, 25}},
		{10, 3, []int{4, 3, 3}},
		{7, 7, []int{1, 1, 1, 1, 1, 1, 1}},
		{5, 0, nil},
	}
	for _, c := range cases {
		got := LayoutRow(c.total, c.n)
		if len(got) != len(c.want) {
			t.Errorf("LayoutRow(%d, %d) len = %d, want %d", c.total, c.n, len(got), len(c.want))
			continue
		}
		sum := 0
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("LayoutRow(%d, %d) = %v, want %v", c.total, c.n, got, c.want)
				break
			}
			sum += got[i]
		}
		if c.n > 0 && sum != c.total {
			t.Errorf("LayoutRow(%d, %d) sums to %d", c.total, c.n, sum)
		}
	}
}

func TestCardRowHeightMatchesTallest(t *testing.T) {
	short := ContentCard("Short", "one line", 22)
	tall := ContentCard("Tall", "a\nb\nc\nd", 22)

	joined := CardRow([]string{tall, short})
	joinedLines := len(strings.Split(joined, "\n"))
	tallLines := len(strings.Split(tall, "\n"))

	if joinedLines != tallLines {
		t.Errorf("joined height = %d, want %d (tallest card)", joinedLines, tallLines)
	}
}
