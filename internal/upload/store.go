package upload

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"
)

// SelectedFile is a browser upload spooled to disk so later page turns can
// send it again.
type SelectedFile struct {
	TempDir    string
	Path       string
	Name       string
	MIMEType   string
	Size       int64
	LocalPages int
}

func (f SelectedFile) Cleanup() {
	if f.TempDir != "" {
		_ = os.RemoveAll(f.TempDir)
	}
}

func (f SelectedFile) IsPDF() bool {
	return f.MIMEType == "application/pdf"
}

func (f SelectedFile) ReadAll() ([]byte, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return b, nil
}

type Store struct {
	dir      string
	maxBytes int64
	logger   *zap.Logger
}

func NewStore(dir string, maxBytes int64, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, maxBytes: maxBytes, logger: logger}
}

// Save writes body to a fresh temp dir, sniffs its MIME type and, for PDFs,
// counts pages locally. The caller owns the returned file and must Cleanup.
func (s *Store) Save(body io.Reader, fileName string) (SelectedFile, error) {
	tmpDir, err := os.MkdirTemp(s.dir, "understand-pdf-*")
	if err != nil {
		return SelectedFile{}, fmt.Errorf("temp dir: %w", err)
	}

	safeName := strings.TrimSpace(fileName)
	if safeName == "" {
		safeName = "document.pdf"
	}
	safeName = filepath.Base(safeName)
	outPath := filepath.Join(tmpDir, safeName)

	f, err := os.Create(outPath)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return SelectedFile{}, fmt.Errorf("create: %w", err)
	}
	defer f.Close()

	lr := &io.LimitedReader{R: body, N: s.maxBytes + 1}
	n, err := io.Copy(f, lr)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return SelectedFile{}, fmt.Errorf("write: %w", err)
	}
	if n > s.maxBytes {
		_ = os.RemoveAll(tmpDir)
		return SelectedFile{}, fmt.Errorf("file exceeds %dMB limit", s.maxBytes/(1<<20))
	}

	if err := f.Sync(); err != nil {
		_ = os.RemoveAll(tmpDir)
		return SelectedFile{}, fmt.Errorf("sync: %w", err)
	}

	sel := SelectedFile{
		TempDir:  tmpDir,
		Path:     outPath,
		Name:     safeName,
		MIMEType: sniffMIMEType(outPath),
		Size:     n,
	}
	if sel.IsPDF() {
		pages, err := countPages(outPath)
		if err != nil {
			s.logger.Debug("local page count failed", zap.String("file", safeName), zap.Error(err))
		}
		sel.LocalPages = pages
	}
	return sel, nil
}

func countPages(path string) (pages int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	// pdfcpu can panic on badly broken xref tables.
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("pdfcpu: %v", r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.PageCount(f, conf)
}

func sniffMIMEType(path string) string {
	m, err := mimetype.DetectFile(path)
	if err == nil && m != nil {
		mt := strings.ToLower(strings.TrimSpace(m.String()))
		if i := strings.Index(mt, ";"); i > 0 {
			mt = strings.TrimSpace(mt[:i])
		}
		return mt
	}

	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	if n <= 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(http.DetectContentType(buf[:n])))
}
