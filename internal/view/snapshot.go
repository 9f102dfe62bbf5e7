package view

// Snapshot is a consistent copy of the screen state, ready to render or to
// serve to the reveal poller.
type Snapshot struct {
	FileName   string `json:"fileName,omitempty"`
	FileMIME   string `json:"fileMime,omitempty"`
	FileSize   int64  `json:"fileSize,omitempty"`
	LocalPages int    `json:"localPages,omitempty"`

	City    string `json:"city"`
	Country string `json:"country"`

	OutputText  string  `json:"outputText"`
	VisibleText string  `json:"visibleText"`
	TotalPages  int     `json:"totalPages"`
	CurrentPage int     `json:"currentPage"`
	Loading     bool    `json:"loading"`
	Error       *string `json:"error"`
	RevealIndex int     `json:"revealIndex"`
	Revealing   bool    `json:"revealing"`

	Window       PageWindow   `json:"window"`
	Buttons      []PageButton `json:"buttons"`
	NextDisabled bool         `json:"nextDisabled"`

	WordCount int    `json:"wordCount"`
	CharCount int    `json:"charCount"`
	Seq       uint64 `json:"seq"`
}

func (a *App) Snapshot() Snapshot {
	a.mu.Lock()
	s := Snapshot{
		City:        a.city,
		Country:     a.country,
		OutputText:  a.output,
		TotalPages:  a.totalPages,
		CurrentPage: a.currentPage,
		Loading:     a.loading,
		Seq:         a.seq,
	}
	if a.file != nil {
		s.FileName = a.file.Name
		s.FileMIME = a.file.MIMEType
		s.FileSize = a.file.Size
		s.LocalPages = a.file.LocalPages
	}
	if a.errMsg != nil {
		msg := *a.errMsg
		s.Error = &msg
	}
	// apply updates output and the reveal under a.mu, so the index read here
	// belongs to s.OutputText.
	s.RevealIndex = a.reveal.Index()
	a.mu.Unlock()

	visible := revealPrefix(s.OutputText, s.RevealIndex)
	s.VisibleText = visible
	s.Revealing = len(visible) < len(s.OutputText)

	s.Window, s.Buttons, s.NextDisabled = a.pager.View(s.CurrentPage, s.TotalPages)
	s.WordCount, s.CharCount = textCounts(s.OutputText)
	return s
}

// revealPrefix returns the first n runes of text, clamped to its length.
func revealPrefix(text string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}

func textCounts(text string) (wordCount int, charCount int) {
	charCount = len([]rune(text))
	inWord := false
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			if inWord {
				wordCount++
				inWord = false
			}
			continue
		}
		inWord = true
	}
	if inWord {
		wordCount++
	}
	return
}
