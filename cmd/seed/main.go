package main

import (
	"context"
	"log"
	"strings"

	"github.com/joho/godotenv"

	"booksweeps/internal/config"
	"booksweeps/internal/database"
	"booksweeps/internal/domain"
	"booksweeps/internal/logging"
	"booksweeps/internal/pkg/filesecurity"
	"booksweeps/internal/pkg/signedurl"
	"booksweeps/internal/repository"
	"booksweeps/internal/storage"
)

const samplePDF = `%PDF-1.4
1 0 obj << /Type /Catalog /Pages 2 0 R >> endobj
2 0 obj << /Type /Pages /Kids [3 0 R] /Count 1 >> endobj
3 0 obj << /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >> endobj
trailer << /Root 1 0 R >>
%%EOF
`

var seedBooks = []struct {
	title, author, fileName string
	limit                   *int
}{
	{"The Lighthouse Keeper", "Mara Ellison", "lighthouse-keeper.pdf", nil},
	{"Tide Tables", "Mara Ellison", "tide-tables.pdf", intPtr(100)},
}

func intPtr(n int) *int { return &n }

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(logging.Options{Level: cfg.LogLevel})

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("DB connection failed:", err)
	}
	log.Println("Running AutoMigrate...")
	if err := database.Migrate(db); err != nil {
		log.Fatal("AutoMigrate failed:", err)
	}

	log.Println("Cleaning old data...")
	db.Exec("DELETE FROM reader_deliveries")
	db.Exec("DELETE FROM book_delivery_methods")
	db.Exec("DELETE FROM book_files")
	db.Exec("DELETE FROM books")

	ctx := context.Background()
	books := repository.NewBookRepository(db)
	bucket := storage.NewBucket(cfg.StorageBucket, cfg.StorageDir, cfg.PublicBaseURL,
		signedurl.New(cfg.SignedURLSecret, cfg.StorageBucket))
	scanner := filesecurity.New(logger)

	for _, sb := range seedBooks {
		if res := scanner.Validate(sb.fileName, filesecurity.MimePDF, []byte(samplePDF), &filesecurity.Context{Operation: "seed"}); !res.Valid {
			log.Fatalf("sample file %s rejected: %s", sb.fileName, res.Reason)
		}

		book := &domain.Book{Title: sb.title, AuthorName: sb.author}
		if err := books.CreateBook(ctx, book); err != nil {
			log.Fatalf("create book %q: %v", sb.title, err)
		}

		objectPath := storage.ObjectPathFor(book.ID, sb.fileName)
		size, err := bucket.Put(ctx, objectPath, strings.NewReader(samplePDF))
		if err != nil {
			log.Fatalf("store %s: %v", sb.fileName, err)
		}

		file := &domain.BookFile{BookID: book.ID, ObjectPath: objectPath, FileName: sb.fileName, MimeType: filesecurity.MimePDF, Size: size}
		if err := books.CreateFile(ctx, file); err != nil {
			log.Fatalf("create book file: %v", err)
		}

		method := &domain.DeliveryMethod{
			BookID:        book.ID,
			BookFileID:    file.ID,
			Kind:          domain.DeliveryKindEbook,
			IsActive:      true,
			DownloadLimit: sb.limit,
		}
		if err := books.CreateDeliveryMethod(ctx, method); err != nil {
			log.Fatalf("create delivery method: %v", err)
		}

		log.Printf("✓ %s: delivery_method_id=%s", sb.title, method.ID)
	}

	log.Println("Seed completed.")
}
