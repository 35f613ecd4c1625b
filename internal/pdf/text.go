package pdf

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractText extracts all text from the first N pages of a PDF.
// maxPages <= 0 reads every page.
func ExtractText(filePath string, maxPages int) (text string, err error) {
	defer recoverParse(&err)

	f, r, err := pdf.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return pageText(r, maxPages), nil
}

// ExtractTextReader extracts text from a PDF reader.
func ExtractTextReader(r io.ReaderAt, size int64, maxPages int) (text string, err error) {
	defer recoverParse(&err)

	pdfReader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", err
	}
	return pageText(pdfReader, maxPages), nil
}

func pageText(r *pdf.Reader, maxPages int) string {
	if maxPages <= 0 || maxPages > r.NumPage() {
		maxPages = r.NumPage()
	}

	var builder strings.Builder
	for i := 1; i <= maxPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		builder.WriteString(text)
		builder.WriteString("\n")
	}
	return builder.String()
}

// recoverParse turns a panic inside the PDF parser into an error.
// Malformed files can panic deep in the object decoder.
func recoverParse(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("parsing pdf: %v", r)
	}
}

var (
	whitespaceRun   = regexp.MustCompile(`\s+`)
	abstractHeading = regexp.MustCompile(`(?i)\babstract\b[\s:.\-]*`)
	sectionEnd      = regexp.MustCompile(`(?i)\b(keywords?|introduction|background|1\.\s+introduction)\b`)
)

// minAbstractChars is the shortest abstract section accepted before falling
// back to the opening text of the document.
const minAbstractChars = 100

// ExtractAbstract picks abstract-like text out of full document text: the
// section following an "Abstract" heading, up to the keywords or
// introduction. Without a usable heading it returns the first maxChars
// characters. The result is whitespace-normalised.
func ExtractAbstract(text string, maxChars int) string {
	text = strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	if text == "" {
		return ""
	}

	if loc := abstractHeading.FindStringIndex(text); loc != nil {
		rest := text[loc[1]:]
		if end := sectionEnd.FindStringIndex(rest); end != nil {
			rest = rest[:end[0]]
		}
		rest = strings.TrimSpace(rest)
		if len([]rune(rest)) >= minAbstractChars {
			return truncate(rest, maxChars)
		}
	}

	return truncate(text, maxChars)
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return strings.TrimSpace(string(runes[:maxChars]))
}
