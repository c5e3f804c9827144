package evidence

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLen is how many leading bytes are inspected to detect the content type.
const sniffLen = 3072

var (
	allowedExtensions = map[Category][]string{
		CategoryWord:  {"doc", "docx"},
		CategoryExcel: {"xls", "xlsx"},
		CategoryPdf:   {"pdf"},
	}

	// OLE2 & zip containers are accepted as-is: older office suites write .doc/.xls files that
	// are only recognized as generic OLE storage, and .docx/.xlsx are zip archives.
	allowedMimes = map[Category][]string{
		CategoryWord: {
			"application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"application/x-ole-storage",
			"application/zip",
		},
		CategoryExcel: {
			"application/vnd.ms-excel",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			"application/x-ole-storage",
			"application/zip",
		},
		CategoryPdf: {"application/pdf"},
	}
)

// CheckExtension checks `filename` against the extension allow-list of `category`.
func CheckExtension(category Category, filename string) error {
	ext := fileFormat(filepath.Base(filename))
	for _, allowed := range allowedExtensions[category] {
		if ext == allowed {
			return nil
		}
	}
	return invalidInput("archivo", fmt.Sprintf(
		"invalid file extension for %s documents, allowed: .%s",
		category, strings.Join(allowedExtensions[category], ", ."),
	))
}

// sniff detects the content type of `r` and checks it is allowed for `category`.
// The returned reader yields the whole content, inspected bytes included.
func sniff(category Category, r io.Reader) (io.Reader, error) {
	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, &StorageError{Op: "read", Err: err}
	}

	for mtype := mimetype.Detect(head); mtype != nil; mtype = mtype.Parent() {
		for _, allowed := range allowedMimes[category] {
			if mtype.Is(allowed) {
				return br, nil
			}
		}
	}
	return nil, invalidInput("archivo", fmt.Sprintf("file content is not a valid %s document", category))
}

// checkFile applies the boundary checks to an uploaded file: extension, size & optionally content.
func (svc *service) checkFile(category Category, filename string, size int64, content io.Reader) (io.Reader, error) {
	if content == nil || filename == "" {
		return nil, invalidInput("archivo", "this field is required")
	}
	if err := CheckExtension(category, filename); err != nil {
		return nil, err
	}
	if svc.opts.MaxUploadSize > 0 && size > svc.opts.MaxUploadSize {
		return nil, invalidInput("archivo", fmt.Sprintf("file is larger than %d bytes", svc.opts.MaxUploadSize))
	}
	if !svc.opts.SniffContent {
		return content, nil
	}
	return sniff(category, content)
}
