package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultMaxResponseBytes = 10 << 20

// File is the PDF attached to a conversion request.
type File struct {
	Name     string
	Content  []byte
	MIMEType string
}

// Request mirrors the multipart form posted to /convert. When File is nil the
// form is sent without any fields.
type Request struct {
	File        *File
	City        string
	Country     string
	CurrentPage int
}

// Result is the extraction excerpt for the requested page.
type Result struct {
	Output     string `json:"output"`
	TotalPages int    `json:"total_page"`
}

type response struct {
	Output    *string `json:"output"`
	TotalPage *int    `json:"total_page"`
}

type Client struct {
	convertURL       string
	maxResponseBytes int64
	httpClient       *http.Client
	logger           *zap.Logger
}

func NewClient(convertURL string, timeout time.Duration, maxResponseBytes int64, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if maxResponseBytes <= 0 {
		maxResponseBytes = defaultMaxResponseBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		convertURL:       convertURL,
		maxResponseBytes: maxResponseBytes,
		httpClient:       &http.Client{Timeout: timeout},
		logger:           logger,
	}
}

func (c *Client) Convert(ctx context.Context, in Request) (Result, error) {
	body, contentType, err := encodeForm(in)
	if err != nil {
		return Result{}, fmt.Errorf("encode form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.convertURL, body)
	if err != nil {
		return Result{}, &TransportError{Err: err}
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "understand-pdf/1.0")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("convert transport failure",
			zap.String("requestId", requestID),
			zap.Error(err))
		return Result{}, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("convert response",
		zap.String("requestId", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return Result{}, &StatusError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return Result{}, &TransportError{Err: err}
	}
	if int64(len(bodyBytes)) > c.maxResponseBytes {
		return Result{}, &DecodeError{Err: fmt.Errorf("response exceeds %dMB limit", c.maxResponseBytes/(1<<20))}
	}

	return decodeResult(bodyBytes)
}

func decodeResult(b []byte) (Result, error) {
	var parsed response
	if err := json.Unmarshal(b, &parsed); err != nil {
		return Result{}, &DecodeError{Err: err}
	}
	if parsed.Output == nil {
		return Result{}, &DecodeError{Err: errors.New(`missing "output"`)}
	}
	if parsed.TotalPage == nil {
		return Result{}, &DecodeError{Err: errors.New(`missing "total_page"`)}
	}
	return Result{Output: *parsed.Output, TotalPages: *parsed.TotalPage}, nil
}

func encodeForm(in Request) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if in.File != nil {
		fileName := strings.TrimSpace(in.File.Name)
		if fileName == "" {
			fileName = "document.pdf"
		}
		mt := strings.TrimSpace(in.File.MIMEType)
		if mt == "" {
			mt = mimetype.Detect(in.File.Content).String()
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="pdf"; filename="%s"`, quoteEscaper.Replace(fileName)))
		h.Set("Content-Type", mt)
		fw, err := writer.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := fw.Write(in.File.Content); err != nil {
			return nil, "", err
		}

		_ = writer.WriteField("city", in.City)
		_ = writer.WriteField("country", in.Country)
		_ = writer.WriteField("current_page", strconv.Itoa(in.CurrentPage))
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")
