package view

import "sync"

// PageSetSize is the number of page buttons shown per window.
const PageSetSize = 10

type PageWindow struct {
	Index int `json:"index"`
	First int `json:"first"`
	Last  int `json:"last"`
}

type PageButton struct {
	Number   int  `json:"number"`
	Disabled bool `json:"disabled"`
}

// Pager windows a backend-reported page count into sets of PageSetSize.
// The window only moves forward and is not tied to the current page.
type Pager struct {
	mu    sync.Mutex
	index int
}

func NewPager() *Pager {
	return &Pager{index: 1}
}

func (p *Pager) Window(totalPages int) PageWindow {
	p.mu.Lock()
	defer p.mu.Unlock()
	return windowFor(p.index, totalPages)
}

func (p *Pager) Buttons(currentPage, totalPages int) []PageButton {
	return buttonsFor(p.Window(totalPages), currentPage)
}

func (p *Pager) NextDisabled(totalPages int) bool {
	return p.Window(totalPages).Last >= totalPages
}

// View returns the window, its buttons and the Next state from a single read
// of the window index.
func (p *Pager) View(currentPage, totalPages int) (PageWindow, []PageButton, bool) {
	w := p.Window(totalPages)
	return w, buttonsFor(w, currentPage), w.Last >= totalPages
}

// Next advances to the following window. It reports false when the current
// window already reaches the last page.
func (p *Pager) Next(totalPages int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if windowFor(p.index, totalPages).Last >= totalPages {
		return false
	}
	p.index++
	return true
}

func (p *Pager) Reset() {
	p.mu.Lock()
	p.index = 1
	p.mu.Unlock()
}

func buttonsFor(w PageWindow, currentPage int) []PageButton {
	if w.Last < w.First {
		return nil
	}
	out := make([]PageButton, 0, w.Last-w.First+1)
	for n := w.First; n <= w.Last; n++ {
		out = append(out, PageButton{Number: n, Disabled: n == currentPage})
	}
	return out
}

func windowFor(index, totalPages int) PageWindow {
	first := (index-1)*PageSetSize + 1
	last := min(index*PageSetSize, totalPages)
	return PageWindow{Index: index, First: first, Last: last}
}
