// Package pdf renders guide HTML to PDF with a headless Chrome (go-rod) and
// stores the files on local disk or S3.
package pdf
