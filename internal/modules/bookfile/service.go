package bookfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"booksweeps/internal/domain"
	"booksweeps/internal/pkg/filesecurity"
	"booksweeps/internal/storage"
)

const DefaultMaxFileSize = 100 << 20

var ErrFileTooLarge = errors.New("file exceeds maximum allowed size")

type UploadInput struct {
	BookID         uuid.UUID
	File           *multipart.FileHeader
	DeliveryMethod string
	DownloadLimit  *int
}

type UploadResult struct {
	File     *domain.BookFile
	Method   *domain.DeliveryMethod
	Analysis *filesecurity.Analysis
}

// Service stores manuscripts in the book-files bucket after they pass the
// file security scan.
type Service struct {
	books       BookStore
	objects     ObjectStore
	scanner     FileScanner
	maxFileSize int64
	logger      *slog.Logger
}

func NewService(books BookStore, objects ObjectStore, scanner FileScanner, maxFileSize int64, logger *slog.Logger) *Service {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{books: books, objects: objects, scanner: scanner, maxFileSize: maxFileSize, logger: logger}
}

func (s *Service) CreateBook(ctx context.Context, req CreateBookRequest) (*domain.Book, error) {
	book := &domain.Book{
		Title:      strings.TrimSpace(req.Title),
		AuthorName: strings.TrimSpace(req.AuthorName),
	}
	if err := s.books.CreateBook(ctx, book); err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}
	return book, nil
}

// Upload scans and stores a book file, optionally offering it through a new
// delivery method. The stored object and its row are removed if a later
// database write fails.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	fh := in.File
	if fh == nil || fh.Size == 0 {
		return nil, errEmptyFile()
	}
	if fh.Size > s.maxFileSize {
		return nil, ErrFileTooLarge
	}

	if _, err := s.books.GetBook(ctx, in.BookID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errBookNotFound()
		}
		return nil, fmt.Errorf("load book: %w", err)
	}

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	head := make([]byte, filesecurity.MaxScanBytes)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	mimeType := declaredMime(fh, head)
	res := s.scanner.Validate(fh.Filename, mimeType, head, &filesecurity.Context{Operation: "upload"})
	if !res.Valid {
		return nil, errRejected(res.Reason)
	}

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind upload: %w", err)
	}

	objectPath := storage.ObjectPathFor(in.BookID, fh.Filename)
	size, err := s.objects.Put(ctx, objectPath, src)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	file := &domain.BookFile{
		BookID:     in.BookID,
		ObjectPath: objectPath,
		FileName:   fh.Filename,
		MimeType:   mimeType,
		Size:       size,
	}
	if err := s.books.CreateFile(ctx, file); err != nil {
		_ = s.objects.Delete(objectPath)
		return nil, fmt.Errorf("save book file: %w", err)
	}

	out := &UploadResult{File: file, Analysis: res.Analysis}
	if in.DeliveryMethod != "" {
		method := &domain.DeliveryMethod{
			BookID:        in.BookID,
			BookFileID:    file.ID,
			Kind:          in.DeliveryMethod,
			IsActive:      true,
			DownloadLimit: in.DownloadLimit,
		}
		if err := s.books.CreateDeliveryMethod(ctx, method); err != nil {
			if delErr := s.books.DeleteFile(ctx, file.ID); delErr != nil {
				s.logger.Error("book file rollback failed", "book_file_id", file.ID, "error", delErr)
			}
			_ = s.objects.Delete(objectPath)
			return nil, fmt.Errorf("create delivery method: %w", err)
		}
		out.Method = method
	}

	s.logger.Info("book file stored",
		"book_id", in.BookID,
		"book_file_id", file.ID,
		"mime_type", mimeType,
		"size", size,
	)
	return out, nil
}

// declaredMime trusts the part's Content-Type unless it is missing or
// generic, then falls back to the extension and finally to content sniffing.
func declaredMime(fh *multipart.FileHeader, head []byte) string {
	declared := strings.TrimSpace(strings.SplitN(fh.Header.Get("Content-Type"), ";", 2)[0])
	if declared != "" && declared != "application/octet-stream" {
		return strings.ToLower(declared)
	}
	if expected, ok := filesecurity.ExpectedMimeType(fh.Filename); ok {
		return expected
	}
	return strings.SplitN(mimetype.Detect(head).String(), ";", 2)[0]
}
