// Package mailing renders and delivers transactional email.
//
// Templates are Liquid (osteele/liquid) with a few French formatting filters.
// Delivery goes through the Sender interface, implemented over SMTP
// (go-mail), Amazon SES (sesv2) and a log-only sender for development.
package mailing
