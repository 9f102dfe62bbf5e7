package view

import "testing"

func TestPagerButtonCountMatchesWindow(t *testing.T) {
	t.Parallel()

	for total := 0; total <= 35; total++ {
		p := NewPager()
		for w := 1; w <= 4; w++ {
			first := (w-1)*PageSetSize + 1
			last := min(w*PageSetSize, total)
			want := max(0, last-first+1)

			if got := len(p.Buttons(1, total)); got != want {
				t.Fatalf("total=%d window=%d: expected %d buttons, got %d", total, w, want, got)
			}
			if got, want := p.NextDisabled(total), last >= total; got != want {
				t.Fatalf("total=%d window=%d: NextDisabled=%v want %v", total, w, got, want)
			}
			if !p.Next(total) {
				break
			}
		}
	}
}

func TestPagerDisablesOnlyCurrentPage(t *testing.T) {
	t.Parallel()

	p := NewPager()
	buttons := p.Buttons(4, 25)
	if len(buttons) != 10 {
		t.Fatalf("expected 10 buttons, got %d", len(buttons))
	}
	disabled := 0
	for _, b := range buttons {
		if b.Disabled {
			disabled++
			if b.Number != 4 {
				t.Fatalf("expected page 4 disabled, got %d", b.Number)
			}
		}
	}
	if disabled != 1 {
		t.Fatalf("expected exactly one disabled button, got %d", disabled)
	}
}

func TestPagerCurrentPageOutsideWindow(t *testing.T) {
	t.Parallel()

	p := NewPager()
	if !p.Next(25) {
		t.Fatalf("expected to advance to second window")
	}
	for _, b := range p.Buttons(4, 25) {
		if b.Disabled {
			t.Fatalf("no button should be disabled when current page is outside the window")
		}
	}
	w := p.Window(25)
	if w.First != 11 || w.Last != 20 {
		t.Fatalf("unexpected window: %+v", w)
	}
}

func TestPagerNextIsForwardOnlyAndStopsAtEnd(t *testing.T) {
	t.Parallel()

	p := NewPager()
	if !p.Next(25) || !p.Next(25) {
		t.Fatalf("expected two advances for 25 pages")
	}
	if p.Next(25) {
		t.Fatalf("expected Next to stop at last window")
	}
	w := p.Window(25)
	if w.Index != 3 || w.First != 21 || w.Last != 25 {
		t.Fatalf("unexpected final window: %+v", w)
	}
	if !p.NextDisabled(25) {
		t.Fatalf("expected Next disabled on last window")
	}
}

func TestPagerEmptyForNoPages(t *testing.T) {
	t.Parallel()

	p := NewPager()
	if got := p.Buttons(1, 0); len(got) != 0 {
		t.Fatalf("expected no buttons, got %d", len(got))
	}
	if got := p.Buttons(1, -3); len(got) != 0 {
		t.Fatalf("expected no buttons for negative total, got %d", len(got))
	}
	if !p.NextDisabled(0) {
		t.Fatalf("expected Next disabled with no pages")
	}
}

func TestPagerReset(t *testing.T) {
	t.Parallel()

	p := NewPager()
	p.Next(40)
	p.Next(40)
	p.Reset()
	if w := p.Window(40); w.Index != 1 || w.First != 1 || w.Last != 10 {
		t.Fatalf("expected first window after reset, got %+v", w)
	}
}

func TestPagerViewMatchesParts(t *testing.T) {
	t.Parallel()

	p := NewPager()
	p.Next(25)
	w, buttons, nextDisabled := p.View(12, 25)
	if w != p.Window(25) {
		t.Fatalf("window mismatch: %+v vs %+v", w, p.Window(25))
	}
	if len(buttons) != 10 || buttons[0].Number != 11 || !buttons[1].Disabled {
		t.Fatalf("unexpected buttons %+v", buttons)
	}
	if nextDisabled != p.NextDisabled(25) || nextDisabled {
		t.Fatalf("expected Next enabled for window %+v", w)
	}
}
